package ingest

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

// mockRepository keeps rows in memory. InsertIfAbsent holds the lock across
// the existence check and the insert, which is what the unique constraint
// gives the real store.
type mockRepository struct {
	mu      sync.Mutex
	rows    map[string]*Record
	nextID  int64
	inserts int

	insertError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{rows: make(map[string]*Record), nextID: 1}
}

func rowKey(kind Kind, tenantID, branchID, globalID string) string {
	return string(kind) + "|" + tenantID + "|" + branchID + "|" + globalID
}

func (m *mockRepository) InsertIfAbsent(ctx context.Context, draft Draft) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertError != nil {
		return Record{}, false, m.insertError
	}
	key := rowKey(draft.Kind, draft.Scope.TenantID, draft.Scope.BranchID, draft.Identity.GlobalID)
	if existing, ok := m.rows[key]; ok {
		return *existing, true, nil
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &Record{
		ID:                m.nextID,
		Kind:              draft.Kind,
		TenantID:          draft.Scope.TenantID,
		BranchID:          draft.Scope.BranchID,
		GlobalID:          draft.Identity.GlobalID,
		TerminalID:        draft.Identity.TerminalID,
		LocalOpSeq:        draft.Identity.LocalOpSeq,
		CreatedLocalUTC:   draft.Identity.CreatedLocalUTC,
		DeviceEventRaw:    draft.Identity.DeviceEventRaw,
		Category:          draft.Fields.Category,
		Description:       draft.Fields.Description,
		Amount:            draft.Fields.Amount,
		Quantity:          draft.Fields.Quantity,
		PaymentTypeID:     draft.Fields.PaymentTypeID,
		ShiftID:           draft.Fields.ShiftID,
		EmployeeID:        draft.Fields.EmployeeID,
		RecordedAt:        draft.Fields.RecordedAt,
		ReviewedByDesktop: draft.ReviewedByDesktop,
		SyncedAt:          now,
		CreatedAt:         now,
	}
	m.nextID++
	m.inserts++
	m.rows[key] = rec
	return *rec, false, nil
}

func (m *mockRepository) PendingReview(ctx context.Context, kind Kind, scope Scope, employeeID string, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.rows {
		if rec.Kind != kind || rec.TenantID != scope.TenantID || rec.BranchID != scope.BranchID {
			continue
		}
		if rec.ReviewedByDesktop || rec.RejectedAt != nil {
			continue
		}
		if employeeID != "" && (rec.EmployeeID == nil || *rec.EmployeeID != employeeID) {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepository) Approve(ctx context.Context, kind Kind, scope Scope, globalID string, at time.Time) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[rowKey(kind, scope.TenantID, scope.BranchID, globalID)]
	if !ok {
		return Record{}, false, ErrRecordNotFound
	}
	if rec.RejectedAt != nil {
		return Record{}, false, ErrReviewConflict
	}
	if rec.ReviewedByDesktop {
		return *rec, false, nil
	}
	rec.ReviewedByDesktop = true
	rec.ReviewedAt = &at
	return *rec, true, nil
}

func (m *mockRepository) Reject(ctx context.Context, kind Kind, scope Scope, globalID string, at time.Time) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[rowKey(kind, scope.TenantID, scope.BranchID, globalID)]
	if !ok {
		return Record{}, false, ErrRecordNotFound
	}
	if rec.ReviewedByDesktop {
		return Record{}, false, ErrReviewConflict
	}
	if rec.RejectedAt != nil {
		return *rec, false, nil
	}
	rec.RejectedAt = &at
	return *rec, true, nil
}

func (m *mockRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type recordedOutcome struct {
	kind, class, outcome string
}

type mockMetrics struct {
	mu       sync.Mutex
	outcomes []recordedOutcome
}

func (m *mockMetrics) RecordSync(kind, class, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, recordedOutcome{kind, class, outcome})
}

type mockTerminals struct {
	mu   sync.Mutex
	max  map[string]int64
	seen []int64
	err  error
}

func (m *mockTerminals) Observe(ctx context.Context, tenantID, branchID, terminalID string, seq int64, seenAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.max == nil {
		m.max = make(map[string]int64)
	}
	key := tenantID + "|" + branchID + "|" + terminalID
	prev, ok := m.max[key]
	if !ok {
		prev = -1
	}
	if seq > prev {
		m.max[key] = seq
	}
	m.seen = append(m.seen, seq)
	return prev, nil
}

type mockAudit struct {
	mu     sync.Mutex
	events []SyncEvent
	err    error
}

func (m *mockAudit) EnqueueSyncAudit(ctx context.Context, event SyncEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

type mockApprovals struct {
	mu     sync.Mutex
	events []ReviewEvent
}

func (m *mockApprovals) RecordReview(ctx context.Context, event ReviewEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}
