//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/cernops/keystone/internal/domains/models"
	"github.com/cernops/keystone/internal/domains/store"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/sentinel"
	txcontext "github.com/cernops/keystone/pkg/platform/tx"
	"github.com/cernops/keystone/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"grants", "memberships", "credentials", "identity_resources", "roles", "domains")
	s.Require().NoError(err)
}

func newTestDomain(name string, enabled bool) *models.Domain {
	d, _ := models.NewDomain(ids.NewDomainID(), name, "", enabled, time.Now().UTC().Truncate(time.Microsecond))
	return d
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	d := newTestDomain("RoundTrip", true)
	d.Description = "with description"
	s.Require().NoError(s.store.Create(ctx, d))

	found, err := s.store.FindByID(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(d.Name, found.Name)
	s.Equal(d.Description, found.Description)
	s.True(found.Enabled)
	s.True(d.CreatedAt.Equal(found.CreatedAt))

	byName, err := s.store.FindByName(ctx, "roundtrip")
	s.Require().NoError(err)
	s.Equal(d.ID, byName.ID)

	_, err = s.store.FindByID(ctx, ids.NewDomainID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentUniqueNameViolation verifies that concurrent creation with
// the same name yields exactly one success.
func (s *PostgresStoreSuite) TestConcurrentUniqueNameViolation() {
	ctx := context.Background()
	name := "Concurrent " + uuid.NewString()[:8]
	const goroutines = 30

	var wg sync.WaitGroup
	var successes, conflicts atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, newTestDomain(name, true))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestCaseInsensitiveUniqueness() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestDomain("MixedCase", true)))
	s.ErrorIs(s.store.Create(ctx, newTestDomain("MIXEDCASE", true)), sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestListFiltersAndOrder() {
	ctx := context.Background()
	for _, n := range []string{"charlie", "Alpha", "bravo"} {
		s.Require().NoError(s.store.Create(ctx, newTestDomain(n, n != "bravo")))
	}

	all, err := s.store.List(ctx, models.Filter{}, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("Alpha", all[0].Name)
	s.Equal("charlie", all[2].Name)

	limited, err := s.store.List(ctx, models.Filter{}, 2)
	s.Require().NoError(err)
	s.Len(limited, 2)

	disabled := false
	off, err := s.store.List(ctx, models.Filter{Enabled: &disabled}, 0)
	s.Require().NoError(err)
	s.Require().Len(off, 1)
	s.Equal("bravo", off[0].Name)

	byName, err := s.store.List(ctx, models.Filter{Name: "CHARLIE"}, 0)
	s.Require().NoError(err)
	s.Len(byName, 1)
}

func (s *PostgresStoreSuite) TestExecute() {
	ctx := context.Background()
	a := newTestDomain("Execute A", true)
	b := newTestDomain("Execute B", true)
	s.Require().NoError(s.store.Create(ctx, a))
	s.Require().NoError(s.store.Create(ctx, b))

	s.Run("persists mutation", func() {
		updated, err := s.store.Execute(ctx, a.ID, nil, func(d *models.Domain) {
			d.Enabled = false
			d.UpdatedAt = time.Now().UTC()
		})
		s.Require().NoError(err)
		s.False(updated.Enabled)

		found, _ := s.store.FindByID(ctx, a.ID)
		s.False(found.Enabled)
	})

	s.Run("rename onto existing name is ErrAlreadyUsed", func() {
		_, err := s.store.Execute(ctx, b.ID, nil, func(d *models.Domain) { d.Name = "execute a" })
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("unknown ID is ErrNotFound", func() {
		_, err := s.store.Execute(ctx, ids.NewDomainID(), nil, nil)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestDeleteInsideTransaction() {
	ctx := context.Background()
	d := newTestDomain("Tx Delete", false)
	s.Require().NoError(s.store.Create(ctx, d))

	runner := txcontext.NewSQLRunner(s.postgres.DB, 0)
	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Delete(ctx, d.ID); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	})
	s.ErrorIs(err, sentinel.ErrInvalidState)

	_, err = s.store.FindByID(ctx, d.ID)
	s.Require().NoError(err, "rolled back delete must keep the domain")

	s.Require().NoError(s.store.Delete(ctx, d.ID))
	s.ErrorIs(s.store.Delete(ctx, d.ID), sentinel.ErrNotFound)
}
