package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/errs"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// longTermYears is the tenure after which a regular customer is upgraded.
const longTermYears = 2

// Tier is a customer discount tier.
type Tier string

// Known tiers.
const (
	TierEmployee  Tier = "EMPLOYEE"
	TierAffiliate Tier = "AFFILIATE"
	TierLongTerm  Tier = "LONG_TERM_CUSTOMER"
	TierRegular   Tier = "REGULAR"
)

var tierRates = map[Tier]int{
	TierEmployee:  30,
	TierAffiliate: 10,
	TierLongTerm:  5,
	TierRegular:   0,
}

// Rate returns the percentage discount intrinsic to the tier.
func (t Tier) Rate() int {
	return tierRates[t]
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRates[t]
	return ok
}

// Assignable reports whether t may be set explicitly on a customer.
// The long-term tier is only ever derived from tenure.
func (t Tier) Assignable() bool {
	return t == TierEmployee || t == TierAffiliate || t == TierRegular
}

// ParseTier parses an explicit tier, ignoring case and surrounding spaces.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Assignable() {
		return "", errs.Validation("tier", "invalid customer tier '"+s+"'; valid tiers: EMPLOYEE, AFFILIATE, REGULAR")
	}
	return t, nil
}

// now is swapped in tests.
var now = time.Now

// Customer is a known shopper with an explicit tier and a registration date.
type Customer struct {
	id           string
	tier         Tier
	registeredOn time.Time
}

// New validates and returns a Customer. registeredOn is truncated to a UTC
// calendar date and must not be in the future.
func New(id string, tier Tier, registeredOn time.Time) (Customer, error) {
	if strings.TrimSpace(id) == "" {
		return Customer{}, errs.Validation("id", "customer id cannot be blank")
	}
	if !tier.Assignable() {
		return Customer{}, errs.Validation("tier", "tier "+string(tier)+" cannot be assigned explicitly")
	}
	if registeredOn.IsZero() {
		return Customer{}, errs.Validation("registeredOn", "registration date is required")
	}
	date := toDate(registeredOn)
	if date.After(toDate(now())) {
		return Customer{}, errs.Validation("registeredOn", "registration date cannot be in the future")
	}
	return Customer{id: id, tier: tier, registeredOn: date}, nil
}

// ID returns the customer identifier.
func (c Customer) ID() string { return c.id }

// Tier returns the explicitly assigned tier.
func (c Customer) Tier() Tier { return c.tier }

// RegisteredOn returns the registration date (UTC midnight).
func (c Customer) RegisteredOn() time.Time { return c.registeredOn }

// IsZero reports whether c is the zero Customer.
func (c Customer) IsZero() bool { return c.id == "" }

// YearsAsCustomer returns the number of full calendar years between the
// registration date and asOf. A year counts once its month and day are reached.
func (c Customer) YearsAsCustomer(asOf time.Time) int {
	from := c.registeredOn
	to := toDate(asOf)
	if to.Before(from) {
		return 0
	}
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	return years
}

// EffectiveTier returns the tier that applies on asOf.
func (c Customer) EffectiveTier(asOf time.Time) Tier {
	switch c.tier {
	case TierEmployee, TierAffiliate:
		return c.tier
	}
	if c.YearsAsCustomer(asOf) >= longTermYears {
		return TierLongTerm
	}
	return TierRegular
}

// DiscountRate returns the percentage rate of the effective tier on asOf.
func (c Customer) DiscountRate(asOf time.Time) int {
	return c.EffectiveTier(asOf).Rate()
}

// NotFound returns the error reported for a missing customer id.
func NotFound(id string) error {
	return &errs.NotFoundError{Kind: "Customer", ID: id, Sentinel: ErrNotFound}
}

// Repository defines persistence operations for customers.
type Repository interface {
	FindByID(ctx context.Context, id string) (Customer, error)
	Save(ctx context.Context, c Customer) error
}

func toDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
