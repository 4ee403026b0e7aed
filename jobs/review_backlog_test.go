package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/possync/internal/ingest"
	"github.com/odyssey-erp/possync/internal/ingest/store"
	jobmetrics "github.com/odyssey-erp/possync/internal/jobs"
)

type fakeBacklogCounter struct {
	cutoff time.Time
	calls  int
	counts []store.BacklogCount
	err    error
}

func (f *fakeBacklogCounter) CountBacklog(_ context.Context, cutoff time.Time) ([]store.BacklogCount, error) {
	f.calls++
	f.cutoff = cutoff
	return f.counts, f.err
}

func backlogGauge(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "possync_review_backlog" {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := ""
			for _, lp := range m.GetLabel() {
				key += lp.GetName() + "=" + lp.GetValue() + ";"
			}
			out[key] = m.GetGauge().GetValue()
		}
	}
	return out
}

func TestReviewBacklogPublishesCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	counter := &fakeBacklogCounter{counts: []store.BacklogCount{
		{Kind: ingest.KindExpenses, TenantID: "t1", BranchID: "b1", Count: 3},
		{Kind: ingest.KindDeposits, TenantID: "t1", BranchID: "b2", Count: 1},
	}}
	job := NewReviewBacklogJob(counter, nil, jobmetrics.NewMetrics(reg), 0)
	job.clock = func() time.Time { return now }

	task, err := NewReviewBacklogTask(ReviewBacklogPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, now.Add(-DefaultBacklogAge), counter.cutoff)
	gauge := backlogGauge(t, reg)
	assert.Equal(t, 3.0, gauge["branch=b1;kind=expenses;tenant=t1;"])
	assert.Equal(t, 1.0, gauge["branch=b2;kind=deposits;tenant=t1;"])

	// A drained scope stops reporting.
	counter.counts = counter.counts[:1]
	require.NoError(t, job.Handle(context.Background(), task))
	gauge = backlogGauge(t, reg)
	assert.Len(t, gauge, 1)
}

func TestReviewBacklogAgeOverrides(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	counter := &fakeBacklogCounter{}
	job := NewReviewBacklogJob(counter, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), 6*time.Hour)
	job.clock = func() time.Time { return now }

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskReviewBacklog, nil)))
	assert.Equal(t, now.Add(-6*time.Hour), counter.cutoff)

	task, err := NewReviewBacklogTask(ReviewBacklogPayload{MaxAge: time.Hour})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, now.Add(-time.Hour), counter.cutoff)
}

func TestReviewBacklogFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := &fakeBacklogCounter{err: errors.New("timeout")}
	job := NewReviewBacklogJob(counter, nil, jobmetrics.NewMetrics(reg), 0)

	assert.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskReviewBacklog, nil)))
	assert.Equal(t, 1.0, jobRuns(t, reg, TaskReviewBacklog, "failure"))
	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskReviewBacklog, []byte("nope"))), asynq.SkipRetry)
}

func TestReviewBacklogSkipsWhenLocked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := redislock.New(client)

	counter := &fakeBacklogCounter{}
	job := NewReviewBacklogJob(counter, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), 0)
	job.Locker = locker

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskReviewBacklog, nil)))
	assert.Equal(t, 1, counter.calls)
	assert.False(t, mr.Exists(backlogLockKey), "lock released after the scan")

	held, err := locker.Obtain(context.Background(), backlogLockKey, time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = held.Release(context.Background()) })

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskReviewBacklog, nil)))
	assert.Equal(t, 1, counter.calls)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestJobsHealth(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		body      string
	}{
		{name: "no inspector", status: http.StatusOK, body: `"queue":"default"`},
		{name: "queue info", inspector: fakeInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4}}, status: http.StatusOK, body: `"pending":4`},
		{name: "redis down", inspector: fakeInspector{err: errors.New("dial")}, status: http.StatusServiceUnavailable, body: `"success":false`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, nil).MountRoutes(r)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestClientRequiresConfiguration(t *testing.T) {
	var c *Client
	_, err := c.EnqueueSyncAudit(context.Background(), SyncAuditPayload{})
	assert.Error(t, err)
	assert.NoError(t, c.Close())
}
