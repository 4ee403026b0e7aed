package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/possync/internal/jobs"
	"github.com/odyssey-erp/possync/internal/shared"
)

// AuditWriter persists audit_logs entries.
type AuditWriter interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SyncAuditJob turns accepted submissions into audit trail entries.
type SyncAuditJob struct {
	Audit   AuditWriter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSyncAuditJob initialises the sync audit handler.
func NewSyncAuditJob(audit AuditWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *SyncAuditJob {
	return &SyncAuditJob{
		Audit:   audit,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle writes one audit entry.
func (j *SyncAuditJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Audit == nil {
		return errors.New("sync audit: handler not configured")
	}
	var payload SyncAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Kind == "" || payload.GlobalID == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSyncAudit)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	entry := AuditEntry(payload, j.now())
	if err := j.Audit.Record(ctx, entry); err != nil {
		j.logger().Error("sync audit failed",
			slog.String("kind", payload.Kind),
			slog.String("global_id", payload.GlobalID),
			slog.Any("error", err))
		return err
	}
	return nil
}

// AuditEntry maps a payload onto the audit_logs row it produces.
func AuditEntry(payload SyncAuditPayload, at time.Time) shared.AuditLog {
	actor := "possync"
	if payload.TerminalID != "" {
		actor = "terminal:" + payload.TerminalID
	}
	return shared.AuditLog{
		Actor:    actor,
		Action:   "sync." + payload.Outcome,
		Entity:   payload.Kind,
		EntityID: payload.GlobalID,
		Meta: map[string]any{
			"tenant_id":    payload.TenantID,
			"branch_id":    payload.BranchID,
			"record_id":    payload.RecordID,
			"class":        payload.Class,
			"local_op_seq": payload.LocalOpSeq,
		},
		At: at,
	}
}

func (j *SyncAuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSyncAudit))
	}
	return slog.Default().With(slog.String("job", TaskSyncAudit))
}

func (j *SyncAuditJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SyncAuditJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
