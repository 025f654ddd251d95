//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/auth"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/bill"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/customer"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/events"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("retail_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(dsn))
	// Second run must be a no-op.
	require.NoError(t, RunMigrations(dsn))

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestRepositories(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	customers := NewCustomerRepository(pool)
	bills := NewBillRepository(pool)
	outbox := NewOutboxRepository(pool)
	keys := NewAPIKeyRepository(pool)

	emp, err := customer.New("EMP001", customer.TierEmployee, time.Now().AddDate(-3, 0, 0))
	require.NoError(t, err)

	t.Run("customer round trip", func(t *testing.T) {
		require.NoError(t, customers.Save(ctx, emp))
		require.NoError(t, customers.Save(ctx, emp))

		got, err := customers.FindByID(ctx, "EMP001")
		require.NoError(t, err)
		assert.Equal(t, emp, got)

		_, err = customers.FindByID(ctx, "missing")
		require.ErrorIs(t, err, customer.ErrNotFound)
	})

	var saved *bill.Bill
	t.Run("bill with outbox", func(t *testing.T) {
		items, err := bill.MapItems([]bill.ItemInput{
			{Name: "TV", Category: "ELECTRONICS", UnitPrice: decimal.RequireFromString("1000"), Quantity: 1},
			{Name: "Food", Category: "GROCERY", UnitPrice: decimal.RequireFromString("200"), Quantity: 1},
		})
		require.NoError(t, err)

		b, err := bill.Create(emp, items)
		require.NoError(t, err)
		want, err := b.CalculateDiscount()
		require.NoError(t, err)

		require.NoError(t, bills.Save(ctx, b))
		assert.Empty(t, b.PeekEvents())
		saved = b

		got, err := bills.FindByID(ctx, b.ID())
		require.NoError(t, err)
		assert.True(t, got.IsCalculated())
		assert.Empty(t, got.PeekEvents())

		bd, ok := got.Breakdown()
		require.True(t, ok)
		assert.Equal(t, want.NetPayable.String(), bd.NetPayable.String())
		assert.Equal(t, want.TotalDiscount.String(), bd.TotalDiscount.String())
		assert.Equal(t, 30, bd.PercentageDiscountRate)
		require.Len(t, got.Items(), 2)
		assert.Equal(t, bill.CategoryGrocery, got.Items()[1].Category())

		_, err = bills.FindByID(ctx, "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, bill.ErrNotFound)

		for _, id := range []string{"not-a-uuid", "missing", "1"} {
			_, err = bills.FindByID(ctx, id)
			require.ErrorIs(t, err, bill.ErrNotFound, id)
		}
	})

	t.Run("bill lists", func(t *testing.T) {
		list, err := bills.ListByCustomer(ctx, "EMP001")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, saved.ID(), list[0].ID())

		list, err = bills.ListByCustomerBetween(ctx, "EMP001", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = bills.ListByCustomerBetween(ctx, "EMP001", time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, list)

		list, err = bills.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("outbox claim and update", func(t *testing.T) {
		now := time.Now()
		claimed, err := outbox.Claim(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		assert.Equal(t, bill.EventCreated, claimed[0].EventType)
		assert.Equal(t, bill.EventCalculated, claimed[1].EventType)
		assert.Equal(t, events.StatusProcessing, claimed[0].Status)

		ev, err := events.Decode(claimed[1].EventType, claimed[1].Payload)
		require.NoError(t, err)
		assert.Equal(t, saved.ID(), ev.AggregateID())

		again, err := outbox.Claim(ctx, now, 10)
		require.NoError(t, err)
		assert.Empty(t, again)

		claimed[0].MarkSent(now)
		require.NoError(t, outbox.Update(ctx, claimed[0]))
		claimed[1].MarkFailed("broker down", now)
		require.NoError(t, outbox.Update(ctx, claimed[1]))

		retry, err := outbox.Claim(ctx, now.Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, retry, 1)
		assert.Equal(t, 1, retry[0].RetryCount)
		assert.Equal(t, "broker down", retry[0].LastError)
	})

	t.Run("api keys", func(t *testing.T) {
		pepper := []byte("pepper")
		require.NoError(t, keys.Save(ctx, auth.APIKeyInfo{
			ID:         "k1",
			KeyHash:    auth.HashKey(pepper, "secret"),
			Name:       "pos",
			Scopes:     []string{auth.ScopeBillsRead, auth.ScopeBillsWrite},
			CustomerID: "EMP001",
		}))

		info, err := auth.NewAuthenticator(keys, pepper).Authenticate(ctx, "secret")
		require.NoError(t, err)
		assert.Equal(t, "EMP001", info.CustomerID)
		assert.True(t, info.HasScope(auth.ScopeBillsWrite))

		_, err = keys.FindByHash(ctx, auth.HashKey(pepper, "other"))
		require.Error(t, err)
	})
}
