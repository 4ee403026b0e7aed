// Package store persists sync records in PostgreSQL. Deduplication relies on
// the (tenant_id, branch_id, global_id) unique constraint of each kind table.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/possync/internal/ingest"
	"github.com/odyssey-erp/possync/internal/platform/db"
)

var tables = map[ingest.Kind]string{
	ingest.KindExpenses:    "expenses",
	ingest.KindDeposits:    "deposits",
	ingest.KindWithdrawals: "withdrawals",
}

const recordColumns = `t.id, t.tenant_id, t.branch_id, t.global_id, t.terminal_id, t.local_op_seq,
t.created_local_utc, t.device_event_raw, t.category_id, COALESCE(c.name, ''), t.description,
t.amount, t.quantity, t.payment_type_id, t.shift_id, t.employee_id, t.recorded_at,
t.reviewed_by_desktop, t.reviewed_at, t.rejected_at, t.synced_at, t.created_at`

// Repository implements ingest.Repository on a pgx pool.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{pool: pool, logger: logger}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func tableFor(kind ingest.Kind) (string, error) {
	table, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("store: unknown kind %q", kind)
	}
	return table, nil
}

// InsertIfAbsent resolves references and writes the draft with
// INSERT ... ON CONFLICT DO NOTHING. When no row comes back the existing row
// is read by key inside the same READ COMMITTED transaction, so it is visible
// even if a concurrent writer committed it a moment earlier.
func (r *Repository) InsertIfAbsent(ctx context.Context, draft ingest.Draft) (ingest.Record, bool, error) {
	table, err := tableFor(draft.Kind)
	if err != nil {
		return ingest.Record{}, false, err
	}

	var (
		record  ingest.Record
		existed bool
	)
	err = db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		categoryID, err := r.ensureCategory(ctx, tx, draft.Scope.TenantID, draft.Fields.Category)
		if err != nil {
			return err
		}
		employeeID, err := r.resolveEmployee(ctx, tx, draft.Scope.TenantID, draft.Fields)
		if err != nil {
			return err
		}
		shiftID, err := r.resolveShift(ctx, tx, draft.Scope.TenantID, draft.Fields)
		if err != nil {
			return err
		}

		var quantity decimal.NullDecimal
		if draft.Fields.Quantity != nil {
			quantity = decimal.NullDecimal{Decimal: *draft.Fields.Quantity, Valid: true}
		}
		var id int64
		err = tx.QueryRow(ctx, fmt.Sprintf(`INSERT INTO %s (
    tenant_id, branch_id, global_id, terminal_id, local_op_seq, created_local_utc, device_event_raw,
    category_id, description, amount, quantity, payment_type_id, shift_id, employee_id,
    recorded_at, reviewed_by_desktop, synced_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
ON CONFLICT (tenant_id, branch_id, global_id) DO NOTHING
RETURNING id`, table),
			draft.Scope.TenantID, draft.Scope.BranchID, draft.Identity.GlobalID, draft.Identity.TerminalID,
			draft.Identity.LocalOpSeq, draft.Identity.CreatedLocalUTC, draft.Identity.DeviceEventRaw,
			categoryID, draft.Fields.Description, draft.Fields.Amount, quantity,
			draft.Fields.PaymentTypeID, shiftID, employeeID,
			draft.Fields.RecordedAt, draft.ReviewedByDesktop,
		).Scan(&id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			existed = true
		case err != nil:
			return fmt.Errorf("insert %s: %w", table, err)
		}

		record, err = selectByKey(ctx, tx, draft.Kind, table, draft.Scope, draft.Identity.GlobalID)
		return err
	})
	if err != nil && isUniqueViolation(err) {
		// A constraint other than the ON CONFLICT target fired; the row may
		// still have been written by the concurrent winner.
		record, err = selectByKey(ctx, r.pool, draft.Kind, table, draft.Scope, draft.Identity.GlobalID)
		existed = err == nil
	}
	if err != nil {
		return ingest.Record{}, false, &ingest.PersistenceError{Op: "insert " + table, Err: err}
	}
	if existed {
		r.warnOnDivergence(draft, record)
	}
	return record, existed, nil
}

func (r *Repository) warnOnDivergence(draft ingest.Draft, stored ingest.Record) {
	if stored.Amount.Equal(draft.Fields.Amount.Round(2)) {
		return
	}
	r.logger.Warn("replay diverges from stored record",
		slog.String("kind", string(draft.Kind)),
		slog.String("tenant_id", draft.Scope.TenantID),
		slog.String("branch_id", draft.Scope.BranchID),
		slog.String("global_id", draft.Identity.GlobalID),
		slog.String("stored_amount", stored.Amount.String()),
		slog.String("replayed_amount", draft.Fields.Amount.String()),
	)
}

func (r *Repository) ensureCategory(ctx context.Context, q querier, tenantID, name string) (*int64, error) {
	if name == "" {
		return nil, nil
	}
	if _, err := q.Exec(ctx, `INSERT INTO expense_categories (tenant_id, name) VALUES ($1, $2)
ON CONFLICT (tenant_id, (lower(name))) DO NOTHING`, tenantID, name); err != nil {
		return nil, fmt.Errorf("upsert category: %w", err)
	}
	var id int64
	if err := q.QueryRow(ctx, `SELECT id FROM expense_categories WHERE tenant_id = $1 AND lower(name) = lower($2)`, tenantID, name).Scan(&id); err != nil {
		return nil, fmt.Errorf("select category: %w", err)
	}
	return &id, nil
}

func (r *Repository) resolveEmployee(ctx context.Context, q querier, tenantID string, fields ingest.Fields) (*string, error) {
	if fields.EmployeeID != nil || fields.UserEmail == "" {
		return fields.EmployeeID, nil
	}
	var id string
	err := q.QueryRow(ctx, `SELECT id::text FROM employees WHERE tenant_id = $1 AND lower(email) = $2 ORDER BY id LIMIT 1`, tenantID, fields.UserEmail).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve employee: %w", err)
	}
	return &id, nil
}

func (r *Repository) resolveShift(ctx context.Context, q querier, tenantID string, fields ingest.Fields) (*string, error) {
	if fields.ShiftID != nil || fields.ShiftGlobalID == "" {
		return fields.ShiftID, nil
	}
	var id string
	err := q.QueryRow(ctx, `SELECT id::text FROM shifts WHERE tenant_id = $1 AND global_id = $2`, tenantID, fields.ShiftGlobalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Debug("shift not found", slog.String("shift_global_id", fields.ShiftGlobalID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve shift: %w", err)
	}
	return &id, nil
}

// PendingReview lists unreviewed records, newest first.
func (r *Repository) PendingReview(ctx context.Context, kind ingest.Kind, scope ingest.Scope, employeeID string, limit int) ([]ingest.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s
FROM %s t LEFT JOIN expense_categories c ON c.id = t.category_id
WHERE t.tenant_id = $1 AND t.branch_id = $2
  AND t.reviewed_by_desktop = FALSE AND t.rejected_at IS NULL
  AND ($3::text = '' OR t.employee_id = $3::text)
ORDER BY t.created_at DESC, t.id DESC
LIMIT $4`, recordColumns, table), scope.TenantID, scope.BranchID, employeeID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: pending review: %w", err)
	}
	defer rows.Close()

	var records []ingest.Record
	for rows.Next() {
		rec, err := scanRecord(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("store: scan pending review: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: pending review rows: %w", err)
	}
	return records, nil
}

func selectByKey(ctx context.Context, q querier, kind ingest.Kind, table string, scope ingest.Scope, globalID string) (ingest.Record, error) {
	row := q.QueryRow(ctx, fmt.Sprintf(`SELECT %s
FROM %s t LEFT JOIN expense_categories c ON c.id = t.category_id
WHERE t.tenant_id = $1 AND t.branch_id = $2 AND t.global_id = $3`, recordColumns, table), scope.TenantID, scope.BranchID, globalID)
	rec, err := scanRecord(row, kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.Record{}, ingest.ErrRecordNotFound
	}
	if err != nil {
		return ingest.Record{}, fmt.Errorf("select %s by key: %w", table, err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row, kind ingest.Kind) (ingest.Record, error) {
	var (
		rec      ingest.Record
		quantity decimal.NullDecimal
	)
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.BranchID, &rec.GlobalID, &rec.TerminalID, &rec.LocalOpSeq,
		&rec.CreatedLocalUTC, &rec.DeviceEventRaw, &rec.CategoryID, &rec.Category, &rec.Description,
		&rec.Amount, &quantity, &rec.PaymentTypeID, &rec.ShiftID, &rec.EmployeeID, &rec.RecordedAt,
		&rec.ReviewedByDesktop, &rec.ReviewedAt, &rec.RejectedAt, &rec.SyncedAt, &rec.CreatedAt,
	)
	if err != nil {
		return ingest.Record{}, err
	}
	rec.Kind = kind
	if quantity.Valid {
		q := quantity.Decimal
		rec.Quantity = &q
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// BacklogCount is the number of unreviewed records of one scope.
type BacklogCount struct {
	Kind     ingest.Kind
	TenantID string
	BranchID string
	Count    int64
}

// CountBacklog counts unreviewed, unrejected records synced before cutoff,
// grouped by kind and scope.
func (r *Repository) CountBacklog(ctx context.Context, cutoff time.Time) ([]BacklogCount, error) {
	var out []BacklogCount
	for _, kind := range ingest.Kinds() {
		table, err := tableFor(kind)
		if err != nil {
			return nil, err
		}
		rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT tenant_id, branch_id, COUNT(*)
FROM %s
WHERE reviewed_by_desktop = FALSE AND rejected_at IS NULL AND synced_at < $1
GROUP BY tenant_id, branch_id
ORDER BY tenant_id, branch_id`, table), cutoff)
		if err != nil {
			return nil, fmt.Errorf("store: count backlog %s: %w", table, err)
		}
		counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (BacklogCount, error) {
			c := BacklogCount{Kind: kind}
			err := row.Scan(&c.TenantID, &c.BranchID, &c.Count)
			return c, err
		})
		if err != nil {
			return nil, fmt.Errorf("store: scan backlog %s: %w", table, err)
		}
		out = append(out, counts...)
	}
	return out, nil
}
