package main

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/auth"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/customer"
)

// demoCustomer registers relative to the seeding day so tenure stays stable.
type demoCustomer struct {
	id     string
	tier   customer.Tier
	years  int
	months int
}

var demoCustomers = []demoCustomer{
	{id: "EMP001", tier: customer.TierEmployee, years: 3},
	{id: "AFF001", tier: customer.TierAffiliate, years: 2},
	{id: "CUST001", tier: customer.TierRegular, years: 3},
	{id: "CUST002", tier: customer.TierRegular, months: 6},
}

type seeder struct {
	customers customer.Repository
	keys      auth.Repository
	lg        *zap.Logger
	now       func() time.Time
}

func (s seeder) today() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s seeder) seedCustomers(ctx context.Context) error {
	today := s.today()
	for _, d := range demoCustomers {
		c, err := customer.New(d.id, d.tier, today.AddDate(-d.years, -d.months, 0))
		if err != nil {
			return errors.Wrapf(err, "build customer %s", d.id)
		}
		if err := s.customers.Save(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert customer %s", d.id)
		}
		s.lg.Info("Upserted customer",
			zap.String("id", c.ID()),
			zap.String("tier", string(c.Tier())),
			zap.Time("registered_on", c.RegisteredOn()),
		)
	}
	return nil
}

func (s seeder) seedAPIKey(ctx context.Context, rawKey string, pepper []byte, customerID string) error {
	key := auth.APIKeyInfo{
		ID:         "default",
		KeyHash:    auth.HashKey(pepper, rawKey),
		Name:       "Default point-of-sale key",
		Scopes:     []string{auth.ScopeBillsWrite, auth.ScopeBillsRead},
		CustomerID: customerID,
	}
	if err := s.keys.Save(ctx, key); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	s.lg.Info("Upserted API key",
		zap.String("id", key.ID),
		zap.String("customer_id", key.CustomerID),
		zap.Strings("scopes", key.Scopes),
	)
	return nil
}
