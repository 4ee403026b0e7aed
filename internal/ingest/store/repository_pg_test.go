package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/possync/internal/ingest"
	"github.com/odyssey-erp/possync/internal/platform/db"
)

// RepositoryPGSuite runs against a real PostgreSQL when POSSYNC_TEST_PG_DSN is set.
type RepositoryPGSuite struct {
	suite.Suite
	repo   *Repository
	ctx    context.Context
	tenant string
}

func TestRepositoryPGSuite(t *testing.T) {
	dsn := os.Getenv("POSSYNC_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("POSSYNC_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 20})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))

	suite.Run(t, &RepositoryPGSuite{repo: NewRepository(pool, nil), ctx: ctx})
}

func (s *RepositoryPGSuite) SetupTest() {
	s.tenant = "it-" + uuid.NewString()
}

func (s *RepositoryPGSuite) draft(globalID string) ingest.Draft {
	payment := "cash"
	return ingest.Draft{
		Kind:  ingest.KindExpenses,
		Scope: ingest.Scope{TenantID: s.tenant, BranchID: "B1"},
		Class: ingest.OfflineCapable,
		Identity: ingest.Identity{
			GlobalID:        globalID,
			TerminalID:      "term-7",
			LocalOpSeq:      42,
			CreatedLocalUTC: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
			DeviceEventRaw:  123456,
		},
		Fields: ingest.Fields{
			Category:      "Fuel",
			Amount:        decimal.RequireFromString("450.50"),
			PaymentTypeID: &payment,
			RecordedAt:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func (s *RepositoryPGSuite) TestInsertIfAbsentIsIdempotent() {
	first, existed, err := s.repo.InsertIfAbsent(s.ctx, s.draft("uuid-123"))
	s.Require().NoError(err)
	s.False(existed)
	s.Equal("term-7", first.TerminalID)
	s.Equal(int64(42), first.LocalOpSeq)
	s.False(first.ReviewedByDesktop)
	s.Equal("Fuel", first.Category)
	s.True(first.Amount.Equal(decimal.RequireFromString("450.5")))

	second, existed, err := s.repo.InsertIfAbsent(s.ctx, s.draft("uuid-123"))
	s.Require().NoError(err)
	s.True(existed)
	s.Equal(first.ID, second.ID)
}

func (s *RepositoryPGSuite) TestConcurrentInsertsProduceOneRow() {
	const writers = 16
	ids := make([]int64, writers)
	fresh := make([]bool, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, existed, err := s.repo.InsertIfAbsent(s.ctx, s.draft("race-1"))
			s.NoError(err)
			ids[i] = rec.ID
			fresh[i] = !existed
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range ids {
		s.Equal(ids[0], ids[i])
		if fresh[i] {
			created++
		}
	}
	s.Equal(1, created)
}

func (s *RepositoryPGSuite) TestCategoryIsCaseInsensitive() {
	a := s.draft("cat-1")
	b := s.draft("cat-2")
	b.Fields.Category = "FUEL"
	recA, _, err := s.repo.InsertIfAbsent(s.ctx, a)
	s.Require().NoError(err)
	recB, _, err := s.repo.InsertIfAbsent(s.ctx, b)
	s.Require().NoError(err)
	s.Require().NotNil(recA.CategoryID)
	s.Equal(*recA.CategoryID, *recB.CategoryID)
}

func (s *RepositoryPGSuite) TestReviewTransitions() {
	_, _, err := s.repo.InsertIfAbsent(s.ctx, s.draft("rev-1"))
	s.Require().NoError(err)
	scope := ingest.Scope{TenantID: s.tenant, BranchID: "B1"}

	pending, err := s.repo.PendingReview(s.ctx, ingest.KindExpenses, scope, "", 200)
	s.Require().NoError(err)
	s.Len(pending, 1)

	rec, changed, err := s.repo.Approve(s.ctx, ingest.KindExpenses, scope, "rev-1", time.Now())
	s.Require().NoError(err)
	s.True(changed)
	s.True(rec.ReviewedByDesktop)

	_, changed, err = s.repo.Approve(s.ctx, ingest.KindExpenses, scope, "rev-1", time.Now())
	s.Require().NoError(err)
	s.False(changed)

	_, _, err = s.repo.Reject(s.ctx, ingest.KindExpenses, scope, "rev-1", time.Now())
	s.ErrorIs(err, ingest.ErrReviewConflict)

	_, _, err = s.repo.Approve(s.ctx, ingest.KindExpenses, scope, "missing", time.Now())
	s.ErrorIs(err, ingest.ErrRecordNotFound)
}
