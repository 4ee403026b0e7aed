package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const sideEffectTimeout = 3 * time.Second

// ServiceConfig wires the pipeline collaborators. Only Repository is required.
type ServiceConfig struct {
	Repository       Repository
	Logger           *slog.Logger
	Metrics          OutcomeRecorder
	Terminals        TerminalObserver
	Audit            AuditSink
	Approvals        ReviewRecorder
	Clock            func() time.Time
	NewID            func() (string, error)
	BatchConcurrency int
}

// Service runs submissions through scope, classification, identity,
// validation, review defaulting and the insert-if-absent write.
type Service struct {
	repo             Repository
	logger           *slog.Logger
	metrics          OutcomeRecorder
	terminals        TerminalObserver
	audit            AuditSink
	approvals        ReviewRecorder
	now              func() time.Time
	identity         *IdentityResolver
	gate             *ValidationGate
	batchConcurrency int
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		repo:             cfg.Repository,
		logger:           logger,
		metrics:          cfg.Metrics,
		terminals:        cfg.Terminals,
		audit:            cfg.Audit,
		approvals:        cfg.Approvals,
		now:              now,
		identity:         NewIdentityResolver(now, cfg.NewID),
		gate:             NewValidationGate(),
		batchConcurrency: concurrency,
	}
}

// Prepare runs scope resolution, classification, identity resolution,
// validation and review defaulting without touching storage. On error the
// returned draft still carries the kind and class.
func (s *Service) Prepare(policy KindPolicy, sub Submission) (Draft, error) {
	draft := Draft{Kind: policy.Kind, Class: Classify(sub)}
	if sub.decodeErr != nil {
		return draft, sub.decodeErr
	}
	scope, err := ResolveScope(sub)
	if err != nil {
		return draft, err
	}
	identity, err := s.identity.Resolve(draft.Class, sub)
	if err != nil {
		return draft, err
	}
	fields, err := s.gate.Check(policy, sub, identity.CreatedLocalUTC)
	if err != nil {
		return draft, err
	}
	draft.Scope = scope
	draft.Identity = identity
	draft.Fields = fields
	draft.ReviewedByDesktop = ResolveReview(sub)
	return draft, nil
}

// Submit processes one submission. Client errors are ScopeError,
// IdentityError or ValidationError; storage failures are PersistenceError.
// A duplicate globalId is reported through Result.Deduplicated.
func (s *Service) Submit(ctx context.Context, policy KindPolicy, sub Submission) (Result, error) {
	draft, err := s.Prepare(policy, sub)
	if err != nil {
		return Result{}, s.reject(policy.Kind, draft.Class, sub, err)
	}
	scope, class, identity := draft.Scope, draft.Class, draft.Identity

	record, existed, err := s.repo.InsertIfAbsent(ctx, draft)
	if err != nil {
		var persistErr *PersistenceError
		if !errors.As(err, &persistErr) {
			err = &PersistenceError{Op: "insert " + string(policy.Kind), Err: err}
		}
		s.logger.Error("sync failed",
			slogScope(scope),
			"kind", policy.Kind,
			"class", class.String(),
			"global_id", identity.GlobalID,
			"terminal_id", identity.TerminalID,
			"outcome", OutcomeFailed,
			"error", err,
		)
		s.count(policy.Kind, class, OutcomeFailed)
		return Result{}, err
	}

	outcome := OutcomePersisted
	if existed {
		outcome = OutcomeDeduplicated
	}
	s.logger.Info("sync accepted",
		slogScope(scope),
		"kind", policy.Kind,
		"class", class.String(),
		"global_id", record.GlobalID,
		"terminal_id", record.TerminalID,
		"local_op_seq", record.LocalOpSeq,
		"record_id", record.ID,
		"outcome", outcome,
	)
	s.count(policy.Kind, class, outcome)
	s.afterPersist(ctx, draft, record, outcome)

	return Result{Record: record, Class: class, Deduplicated: existed}, nil
}

// afterPersist runs the best-effort side effects of an accepted submission.
// They survive request cancellation and never fail the request.
func (s *Service) afterPersist(ctx context.Context, draft Draft, record Record, outcome Outcome) {
	if s.terminals == nil && s.audit == nil {
		return
	}
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if s.terminals != nil && draft.Class == OfflineCapable && outcome == OutcomePersisted {
		prev, err := s.terminals.Observe(sideCtx, draft.Scope.TenantID, draft.Scope.BranchID, record.TerminalID, record.LocalOpSeq, s.now())
		switch {
		case err != nil:
			s.logger.Warn("terminal watermark update failed", "terminal_id", record.TerminalID, "error", err)
		case prev >= 0 && record.LocalOpSeq <= prev:
			s.logger.Info("out-of-order arrival",
				slogScope(draft.Scope),
				"kind", draft.Kind,
				"terminal_id", record.TerminalID,
				"local_op_seq", record.LocalOpSeq,
				"max_seen_seq", prev,
			)
		}
	}

	if s.audit != nil {
		event := SyncEvent{
			Kind:       draft.Kind,
			Scope:      draft.Scope,
			GlobalID:   record.GlobalID,
			RecordID:   record.ID,
			Class:      draft.Class,
			Outcome:    outcome,
			TerminalID: record.TerminalID,
			LocalOpSeq: record.LocalOpSeq,
		}
		if err := s.audit.EnqueueSyncAudit(sideCtx, event); err != nil {
			s.logger.Warn("enqueue sync audit", "global_id", record.GlobalID, "error", err)
		}
	}
}

func (s *Service) reject(kind Kind, class ClientClass, sub Submission, err error) error {
	s.logger.Info("sync rejected",
		"tenant_id", string(sub.TenantID),
		"branch_id", string(sub.BranchID),
		"kind", kind,
		"class", class.String(),
		"global_id", string(sub.GlobalID),
		"terminal_id", string(sub.TerminalID),
		"outcome", OutcomeRejected,
		"reason", err.Error(),
	)
	s.count(kind, class, OutcomeRejected)
	return err
}

func (s *Service) count(kind Kind, class ClientClass, outcome Outcome) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSync(string(kind), class.String(), string(outcome))
}

func slogScope(scope Scope) slog.Attr {
	return slog.Group("scope", slog.String("tenant_id", scope.TenantID), slog.String("branch_id", scope.BranchID))
}
