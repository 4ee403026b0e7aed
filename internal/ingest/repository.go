package ingest

import (
	"context"
	"time"
)

// PendingReviewLimit caps the pending-review queue returned to terminals.
const PendingReviewLimit = 200

// Repository is the durable store behind the pipeline.
type Repository interface {
	// InsertIfAbsent writes the draft unless (tenant, branch, globalId)
	// already exists. In both cases the stored row is returned; the bool
	// reports whether it already existed.
	InsertIfAbsent(ctx context.Context, draft Draft) (Record, bool, error)
	PendingReview(ctx context.Context, kind Kind, scope Scope, employeeID string, limit int) ([]Record, error)
	// Approve and Reject return ErrRecordNotFound or ErrReviewConflict.
	// The bool is false when the record was already in the target state.
	Approve(ctx context.Context, kind Kind, scope Scope, globalID string, at time.Time) (Record, bool, error)
	Reject(ctx context.Context, kind Kind, scope Scope, globalID string, at time.Time) (Record, bool, error)
}

// OutcomeRecorder counts sync outcomes.
type OutcomeRecorder interface {
	RecordSync(kind, class, outcome string)
}

// TerminalObserver tracks the highest localOpSeq seen per terminal. Observe
// returns the previous maximum, or -1 when the terminal is new.
type TerminalObserver interface {
	Observe(ctx context.Context, tenantID, branchID, terminalID string, seq int64, seenAt time.Time) (int64, error)
}

// SyncEvent describes one accepted submission for the audit trail.
type SyncEvent struct {
	Kind       Kind
	Scope      Scope
	GlobalID   string
	RecordID   int64
	Class      ClientClass
	Outcome    Outcome
	TerminalID string
	LocalOpSeq int64
}

// AuditSink receives sync events asynchronously.
type AuditSink interface {
	EnqueueSyncAudit(ctx context.Context, event SyncEvent) error
}

// ReviewEvent describes one review state transition.
type ReviewEvent struct {
	Kind     Kind
	Scope    Scope
	GlobalID string
	RecordID int64
	Action   string
	Actor    string
	Note     string
	At       time.Time
}

// ReviewRecorder keeps the approval history of review transitions.
type ReviewRecorder interface {
	RecordReview(ctx context.Context, event ReviewEvent) error
}
