package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/possync/internal/ingest/store"
	jobmetrics "github.com/odyssey-erp/possync/internal/jobs"
)

// DefaultBacklogAge is how long a record may wait for review before it
// counts as backlog.
const DefaultBacklogAge = 24 * time.Hour

// Each worker replica runs a scheduler, so one cron tick may deliver
// several scans.
const (
	backlogLockKey = "possync:lock:review-backlog"
	backlogLockTTL = 2 * time.Minute
)

// BacklogCounter counts unreviewed records older than a cutoff.
type BacklogCounter interface {
	CountBacklog(ctx context.Context, cutoff time.Time) ([]store.BacklogCount, error)
}

// ReviewBacklogJob publishes the pending-review backlog per scope. Locker is
// optional; without it every delivery runs a scan.
type ReviewBacklogJob struct {
	Counter BacklogCounter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	MaxAge  time.Duration
	Locker  *redislock.Client
	clock   func() time.Time
}

// NewReviewBacklogJob initialises the backlog scan handler.
func NewReviewBacklogJob(counter BacklogCounter, logger *slog.Logger, metrics *jobmetrics.Metrics, maxAge time.Duration) *ReviewBacklogJob {
	return &ReviewBacklogJob{
		Counter: counter,
		Logger:  logger,
		Metrics: metrics,
		MaxAge:  maxAge,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one backlog scan.
func (j *ReviewBacklogJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Counter == nil {
		return errors.New("review backlog: handler not configured")
	}
	var payload ReviewBacklogPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	maxAge := payload.MaxAge
	if maxAge <= 0 {
		maxAge = j.MaxAge
	}
	if maxAge <= 0 {
		maxAge = DefaultBacklogAge
	}

	tracker := j.metrics().Track(TaskReviewBacklog)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Duration("max_age", maxAge))
	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, backlogLockKey, backlogLockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("backlog scan already running")
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			_ = lock.Release(context.WithoutCancel(ctx))
		}()
	}

	counts, err := j.Counter.CountBacklog(ctx, j.now().Add(-maxAge))
	if err != nil {
		logger.Error("backlog scan failed", slog.Any("error", err))
		return err
	}

	metrics := j.metrics()
	metrics.ResetBacklog()
	var total int64
	for _, c := range counts {
		metrics.SetBacklog(string(c.Kind), c.TenantID, c.BranchID, c.Count)
		total += c.Count
		logger.Warn("records awaiting review",
			slog.String("kind", string(c.Kind)),
			slog.String("tenant_id", c.TenantID),
			slog.String("branch_id", c.BranchID),
			slog.Int64("count", c.Count))
	}
	logger.Info("backlog scan complete", slog.Int("scopes", len(counts)), slog.Int64("records", total))
	return nil
}

func (j *ReviewBacklogJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReviewBacklog))
	}
	return slog.Default().With(slog.String("job", TaskReviewBacklog))
}

func (j *ReviewBacklogJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReviewBacklogJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
