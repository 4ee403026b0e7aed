package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/possync/internal/ingest"
	"github.com/odyssey-erp/possync/internal/shared"
	_ "github.com/odyssey-erp/possync/testing"
)

func TestSyncAuditPayload(t *testing.T) {
	payload := syncAuditPayload(ingest.SyncEvent{
		Kind:       ingest.KindWithdrawals,
		Scope:      ingest.Scope{TenantID: "t1", BranchID: "b1"},
		GlobalID:   "g-9",
		RecordID:   7,
		Class:      ingest.OfflineCapable,
		Outcome:    ingest.OutcomeDeduplicated,
		TerminalID: "pos-2",
		LocalOpSeq: 11,
	})
	assert.Equal(t, "withdrawals", payload.Kind)
	assert.Equal(t, "t1", payload.TenantID)
	assert.Equal(t, "offline_capable", payload.Class)
	assert.Equal(t, "deduplicated", payload.Outcome)
	assert.Equal(t, int64(11), payload.LocalOpSeq)
}

type captureApprovals struct {
	logs []shared.ApprovalLog
}

func (c *captureApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	c.logs = append(c.logs, log)
	return nil
}

func TestReviewApprovals(t *testing.T) {
	recorder := &captureApprovals{}
	approvals := reviewApprovals{recorder: recorder}
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, approvals.RecordReview(context.Background(), ingest.ReviewEvent{
		Kind:     ingest.KindExpenses,
		Scope:    ingest.Scope{TenantID: "t1", BranchID: "b1"},
		GlobalID: "g-1",
		Action:   ingest.ReviewActionReject,
		Actor:    "supervisor",
		Note:     "duplicate receipt",
		At:       at,
	}))
	require.Len(t, recorder.logs, 1)
	log := recorder.logs[0]
	assert.Equal(t, "possync.expenses", log.Module)
	assert.Equal(t, "t1/b1/g-1", log.RefID)
	assert.Equal(t, shared.ApprovalReject, log.Action)
	assert.Equal(t, "duplicate receipt", log.Note)
	assert.Equal(t, at, log.At)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{{"serve"}, {"validate"}, {"jobs", "trigger"}, {"jobs", "stats"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
