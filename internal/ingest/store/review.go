package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/possync/internal/ingest"
)

// Approve flips reviewed_by_desktop on an unreviewed, unrejected record.
func (r *Repository) Approve(ctx context.Context, kind ingest.Kind, scope ingest.Scope, globalID string, at time.Time) (ingest.Record, bool, error) {
	return r.transition(ctx, kind, scope, globalID, `reviewed_by_desktop = TRUE, reviewed_at = $4`, func(rec ingest.Record) error {
		if rec.RejectedAt != nil {
			return ingest.ErrReviewConflict
		}
		return nil
	}, at)
}

// Reject marks an unreviewed record as rejected. The row stays in place so
// replays of its globalId keep deduplicating.
func (r *Repository) Reject(ctx context.Context, kind ingest.Kind, scope ingest.Scope, globalID string, at time.Time) (ingest.Record, bool, error) {
	return r.transition(ctx, kind, scope, globalID, `rejected_at = $4`, func(rec ingest.Record) error {
		if rec.ReviewedByDesktop {
			return ingest.ErrReviewConflict
		}
		return nil
	}, at)
}

// transition applies a conditional update guarded on the unreviewed state.
// When nothing matched, the current row decides between not found, conflict
// and already in the target state.
func (r *Repository) transition(ctx context.Context, kind ingest.Kind, scope ingest.Scope, globalID, set string, check func(ingest.Record) error, at time.Time) (ingest.Record, bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return ingest.Record{}, false, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, fmt.Sprintf(`UPDATE %s SET %s
WHERE tenant_id = $1 AND branch_id = $2 AND global_id = $3
  AND reviewed_by_desktop = FALSE AND rejected_at IS NULL
RETURNING id`, table, set), scope.TenantID, scope.BranchID, globalID, at).Scan(&id)
	changed := true
	if errors.Is(err, pgx.ErrNoRows) {
		changed = false
	} else if err != nil {
		return ingest.Record{}, false, fmt.Errorf("store: update %s review: %w", table, err)
	}

	rec, err := selectByKey(ctx, r.pool, kind, table, scope, globalID)
	if err != nil {
		return ingest.Record{}, false, err
	}
	if !changed {
		if err := check(rec); err != nil {
			return ingest.Record{}, false, err
		}
	}
	return rec, changed, nil
}
