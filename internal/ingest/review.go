package ingest

import (
	"context"
	"errors"
	"strings"
)

const (
	ReviewActionApprove = "approve"
	ReviewActionReject  = "reject"
)

// ResolveReview returns reviewedByDesktop as sent, or false when absent.
// Classification does not influence the default.
func ResolveReview(sub Submission) bool {
	if sub.ReviewedByDesktop == nil {
		return false
	}
	return *sub.ReviewedByDesktop
}

// ReviewRequest is the body of an approve or reject call.
type ReviewRequest struct {
	TenantID FlexString `json:"tenantId"`
	BranchID FlexString `json:"branchId"`
	Actor    string     `json:"actor" validate:"required,max=128"`
	Note     string     `json:"note" validate:"max=1000"`
}

// PendingReview lists unreviewed, unrejected records of a scope.
func (s *Service) PendingReview(ctx context.Context, kind Kind, scope Scope, employeeID string) ([]Record, error) {
	records, err := s.repo.PendingReview(ctx, kind, scope, strings.TrimSpace(employeeID), PendingReviewLimit)
	if err != nil {
		return nil, &PersistenceError{Op: "pending review", Err: err}
	}
	return records, nil
}

// Approve marks a record as reviewed. Approving twice is a no-op.
func (s *Service) Approve(ctx context.Context, kind Kind, globalID string, req ReviewRequest) (Record, error) {
	return s.transition(ctx, kind, globalID, req, ReviewActionApprove)
}

// Reject soft-rejects an unreviewed record. The row is kept for deduplication.
func (s *Service) Reject(ctx context.Context, kind Kind, globalID string, req ReviewRequest) (Record, error) {
	return s.transition(ctx, kind, globalID, req, ReviewActionReject)
}

func (s *Service) transition(ctx context.Context, kind Kind, globalID string, req ReviewRequest, action string) (Record, error) {
	scope, err := scopeFrom(string(req.TenantID), string(req.BranchID))
	if err != nil {
		return Record{}, err
	}
	globalID = strings.TrimSpace(globalID)
	if globalID == "" {
		return Record{}, &IdentityError{Field: "globalId", Reason: "must not be blank"}
	}
	req.Actor = strings.TrimSpace(req.Actor)
	if err := s.gate.run(req); err != nil {
		return Record{}, err
	}

	at := s.now().UTC()
	var (
		record  Record
		changed bool
	)
	if action == ReviewActionApprove {
		record, changed, err = s.repo.Approve(ctx, kind, scope, globalID, at)
	} else {
		record, changed, err = s.repo.Reject(ctx, kind, scope, globalID, at)
	}
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrReviewConflict) {
			return Record{}, err
		}
		s.logger.Error("review transition failed", "kind", kind, "action", action, "global_id", globalID, "error", err)
		return Record{}, &PersistenceError{Op: action, Err: err}
	}
	if !changed {
		return record, nil
	}

	s.logger.Info("record reviewed",
		slogScope(scope),
		"kind", kind,
		"action", action,
		"global_id", globalID,
		"actor", req.Actor,
	)
	if s.approvals != nil {
		event := ReviewEvent{
			Kind:     kind,
			Scope:    scope,
			GlobalID: globalID,
			RecordID: record.ID,
			Action:   action,
			Actor:    req.Actor,
			Note:     strings.TrimSpace(req.Note),
			At:       at,
		}
		if err := s.approvals.RecordReview(ctx, event); err != nil {
			s.logger.Warn("record review history", "kind", kind, "global_id", globalID, "error", err)
		}
	}
	return record, nil
}
