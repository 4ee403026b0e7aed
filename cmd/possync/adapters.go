package main

import (
	"context"

	"github.com/odyssey-erp/possync/internal/ingest"
	"github.com/odyssey-erp/possync/internal/shared"
	"github.com/odyssey-erp/possync/jobs"
)

type syncAuditEnqueuer struct {
	client *jobs.Client
}

func (e syncAuditEnqueuer) EnqueueSyncAudit(ctx context.Context, event ingest.SyncEvent) error {
	_, err := e.client.EnqueueSyncAudit(ctx, syncAuditPayload(event))
	return err
}

func syncAuditPayload(event ingest.SyncEvent) jobs.SyncAuditPayload {
	return jobs.SyncAuditPayload{
		Kind:       string(event.Kind),
		TenantID:   event.Scope.TenantID,
		BranchID:   event.Scope.BranchID,
		GlobalID:   event.GlobalID,
		RecordID:   event.RecordID,
		Class:      event.Class.String(),
		Outcome:    string(event.Outcome),
		TerminalID: event.TerminalID,
		LocalOpSeq: event.LocalOpSeq,
	}
}

type approvalLogger interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

type reviewApprovals struct {
	recorder approvalLogger
}

func (a reviewApprovals) RecordReview(ctx context.Context, event ingest.ReviewEvent) error {
	return a.recorder.Record(ctx, approvalLog(event))
}

func approvalLog(event ingest.ReviewEvent) shared.ApprovalLog {
	action := shared.ApprovalApprove
	if event.Action == ingest.ReviewActionReject {
		action = shared.ApprovalReject
	}
	return shared.ApprovalLog{
		Module: "possync." + string(event.Kind),
		RefID:  event.Scope.TenantID + "/" + event.Scope.BranchID + "/" + event.GlobalID,
		Actor:  event.Actor,
		Action: action,
		Note:   event.Note,
		At:     event.At,
	}
}
