package main

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/auth"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/customer"
)

// --- Mock implementations ---

type memCustomers struct {
	saved map[string]customer.Customer
	err   error
}

func (m *memCustomers) FindByID(_ context.Context, id string) (customer.Customer, error) {
	c, ok := m.saved[id]
	if !ok {
		return customer.Customer{}, customer.NotFound(id)
	}
	return c, nil
}

func (m *memCustomers) Save(_ context.Context, c customer.Customer) error {
	if m.err != nil {
		return m.err
	}
	m.saved[c.ID()] = c
	return nil
}

type memKeys struct {
	saved []auth.APIKeyInfo
}

func (m *memKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	for i := range m.saved {
		if m.saved[i].KeyHash == hash {
			return &m.saved[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (m *memKeys) Save(_ context.Context, k auth.APIKeyInfo) error {
	m.saved = append(m.saved, k)
	return nil
}

func TestSeedCustomers(t *testing.T) {
	today := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	customers := &memCustomers{saved: map[string]customer.Customer{}}
	s := seeder{customers: customers, lg: zap.NewNop(), now: func() time.Time { return today }}

	require.NoError(t, s.seedCustomers(context.Background()))
	// Seeding twice is an upsert.
	require.NoError(t, s.seedCustomers(context.Background()))
	require.Len(t, customers.saved, 4)

	tests := []struct {
		id       string
		wantRate int
	}{
		{"EMP001", 30},
		{"AFF001", 10},
		{"CUST001", 5},
		{"CUST002", 0},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			c, ok := customers.saved[tt.id]
			require.True(t, ok)
			assert.Equal(t, tt.wantRate, c.DiscountRate(today))
		})
	}
}

func TestSeedCustomers_SaveError(t *testing.T) {
	customers := &memCustomers{saved: map[string]customer.Customer{}, err: errors.New("db down")}
	s := seeder{customers: customers, lg: zap.NewNop()}

	err := s.seedCustomers(context.Background())
	require.ErrorContains(t, err, "upsert customer EMP001")
}

func TestSeedAPIKey(t *testing.T) {
	keys := &memKeys{}
	s := seeder{keys: keys, lg: zap.NewNop()}
	pepper := []byte("pepper")

	require.NoError(t, s.seedAPIKey(context.Background(), "secret", pepper, "EMP001"))

	info, err := auth.NewAuthenticator(keys, pepper).Authenticate(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, "EMP001", info.CustomerID)
	assert.True(t, info.HasScope(auth.ScopeBillsWrite))
	assert.True(t, info.HasScope(auth.ScopeBillsRead))
}
