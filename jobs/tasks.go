package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/possync/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSyncAudit writes the audit trail entry of one accepted submission.
	TaskSyncAudit = "sync:audit"
	// TaskReviewBacklog scans for records waiting too long for review.
	TaskReviewBacklog = "sync:review-backlog"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SyncAuditPayload describes one accepted submission.
type SyncAuditPayload struct {
	Kind       string `json:"kind"`
	TenantID   string `json:"tenantId"`
	BranchID   string `json:"branchId"`
	GlobalID   string `json:"globalId"`
	RecordID   int64  `json:"recordId"`
	Class      string `json:"class"`
	Outcome    string `json:"outcome"`
	TerminalID string `json:"terminalId"`
	LocalOpSeq int64  `json:"localOpSeq"`
}

// NewSyncAuditTask constructs an Asynq task.
func NewSyncAuditTask(payload SyncAuditPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncAudit, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// ReviewBacklogPayload tunes one backlog scan. A zero MaxAge uses the job default.
type ReviewBacklogPayload struct {
	MaxAge time.Duration `json:"maxAge"`
}

// NewReviewBacklogTask constructs an Asynq task.
func NewReviewBacklogTask(payload ReviewBacklogPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReviewBacklog, data, asynq.MaxRetry(1), asynq.Timeout(5*time.Minute)), nil
}
