//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"padron/internal/records"
	"padron/internal/records/store/postgres"
	"padron/pkg/platform/sentinel"
	txcontext "padron/pkg/platform/tx"
	"padron/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	container *containers.PostgresContainer
	store     *postgres.Store
	ctx       context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.container = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.EnsureSchema(s.ctx, s.container.DB))
	s.store = postgres.New(s.container.DB)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.DB.Close()
		_ = s.container.Container.Terminate(s.ctx)
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.container.TruncateAll(s.ctx))
}

func (s *PostgresStoreSuite) insertClient(name, email string) records.Client {
	c, err := s.store.InsertClient(s.ctx, records.NewClient{
		Name:         name,
		Phone:        "555-0100",
		Email:        email,
		RegisteredAt: time.Now().UTC(),
		Active:       true,
	})
	s.Require().NoError(err)
	return c
}

// TestClientRoundTrip verifies inserts, nullable birth dates, and lookups.
func (s *PostgresStoreSuite) TestClientRoundTrip() {
	bd := time.Date(1990, 6, 2, 0, 0, 0, 0, time.UTC)
	created, err := s.store.InsertClient(s.ctx, records.NewClient{
		Name:         "Ana García",
		Phone:        "555-0100",
		Email:        "ana@example.com",
		BirthDate:    &bd,
		RegisteredAt: time.Now().UTC(),
		Active:       true,
	})
	s.Require().NoError(err)
	s.Positive(created.ID)

	found, err := s.store.GetClient(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("Ana García", found.Name)
	s.Require().NotNil(found.BirthDate)
	s.Equal("1990-06-02", found.BirthDate.Format("2006-01-02"))

	noBirth := s.insertClient("Luis Pérez", "luis@example.com")
	found, err = s.store.GetClient(s.ctx, noBirth.ID)
	s.Require().NoError(err)
	s.Nil(found.BirthDate)

	_, err = s.store.GetClient(s.ctx, 999999)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentEmailCollision verifies the unique constraint arbitrates
// concurrent inserts down to exactly one winner.
func (s *PostgresStoreSuite) TestConcurrentEmailCollision() {
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.InsertClient(s.ctx, records.NewClient{
				Name:         "Ana García",
				Phone:        "555-0100",
				Email:        "race@example.com",
				RegisteredAt: time.Now().UTC(),
				Active:       true,
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case s.ErrorIs(err, sentinel.ErrConflict):
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

// TestUpdateAndSoftDelete verifies full-field updates and the activo flag.
func (s *PostgresStoreSuite) TestUpdateAndSoftDelete() {
	c := s.insertClient("Ana García", "upd@example.com")

	updated, err := s.store.UpdateClient(s.ctx, c.ID, records.ClientPatch{
		Name: "Ana G. de la Torre", Phone: "555-0199", Email: "upd@example.com", Active: true,
	})
	s.Require().NoError(err)
	s.Equal("Ana G. de la Torre", updated.Name)

	_, err = s.store.UpdateClient(s.ctx, 999999, records.ClientPatch{
		Name: "X", Phone: "1", Email: "x@example.com", Active: true,
	})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	other := s.insertClient("Luis Pérez", "other@example.com")
	_, err = s.store.UpdateClient(s.ctx, other.ID, records.ClientPatch{
		Name: other.Name, Phone: other.Phone, Email: "upd@example.com", Active: true,
	})
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	deactivated, err := s.store.SetClientActive(s.ctx, c.ID, false)
	s.Require().NoError(err)
	s.False(deactivated.Active)

	// Row is still there.
	found, err := s.store.GetClient(s.ctx, c.ID)
	s.Require().NoError(err)
	s.False(found.Active)
}

// TestSearchAndPagination verifies ILIKE filtering and LIMIT/OFFSET windows.
func (s *PostgresStoreSuite) TestSearchAndPagination() {
	s.insertClient("Ana García", "ana@example.com")
	s.insertClient("Mariana López", "mlopez@example.com")
	s.insertClient("Luis Pérez", "luis@example.com")

	matched, err := s.store.ListClients(s.ctx, records.Filter{Name: "ANA"}, records.Page{})
	s.Require().NoError(err)
	s.Len(matched, 2)

	matched, err = s.store.ListClients(s.ctx, records.Filter{Name: "ana", Email: "mlopez"}, records.Page{})
	s.Require().NoError(err)
	s.Require().Len(matched, 1)
	s.Equal("Mariana López", matched[0].Name)

	page, err := s.store.ListClients(s.ctx, records.Filter{}, records.Page{Skip: 1, Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal("Mariana López", page[0].Name)

	empty, err := s.store.ListClients(s.ctx, records.Filter{}, records.Page{Skip: 50, Limit: 10})
	s.Require().NoError(err)
	s.Empty(empty)
}

// TestChildrenAndCascade verifies FK enforcement and ON DELETE CASCADE.
func (s *PostgresStoreSuite) TestChildrenAndCascade() {
	_, err := s.store.InsertConsent(s.ctx, records.NewConsent{
		ClientID: 999999, AcceptsTerms: true, ConsentedAt: time.Now().UTC(),
	})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	c := s.insertClient("Ana García", "cascade@example.com")

	_, err = s.store.InsertConsent(s.ctx, records.NewConsent{
		ClientID: c.ID, AcceptsTerms: true, ConsentedAt: time.Now().UTC(),
	})
	s.Require().NoError(err)
	_, err = s.store.InsertAuditEntry(s.ctx, records.NewAuditEntry{
		ClientID: c.ID, Action: records.ActionClientCreated, OccurredAt: time.Now().UTC(),
	})
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteClient(s.ctx, c.ID))

	consents, err := s.store.ListConsents(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Empty(consents)

	audit, err := s.store.ListAuditByClient(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Empty(audit)

	s.Require().ErrorIs(s.store.DeleteClient(s.ctx, c.ID), sentinel.ErrNotFound)
}

// TestTransactionRollback verifies a tx carried in context makes the client and
// audit writes atomic.
func (s *PostgresStoreSuite) TestTransactionRollback() {
	tx, err := s.container.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)

	ctx := txcontext.WithTx(s.ctx, tx)
	created, err := s.store.InsertClient(ctx, records.NewClient{
		Name: "Fantasma", Phone: "555-0100", Email: "ghost@example.com",
		RegisteredAt: time.Now().UTC(), Active: true,
	})
	s.Require().NoError(err)
	_, err = s.store.InsertAuditEntry(ctx, records.NewAuditEntry{
		ClientID: created.ID, Action: records.ActionClientCreated, OccurredAt: time.Now().UTC(),
	})
	s.Require().NoError(err)

	s.Require().NoError(tx.Rollback())

	_, err = s.store.GetClient(s.ctx, created.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	audit, err := s.store.ListAudit(s.ctx, records.Page{})
	s.Require().NoError(err)
	s.Empty(audit)
}
