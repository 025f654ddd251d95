package bill

import (
	"context"
	"time"
)

// Repository defines persistence operations for bills.
//
// Save stores the bill and moves its pending events into the outbox within
// the same transaction. Lookups rebuild bills without recording events.
type Repository interface {
	Save(ctx context.Context, b *Bill) error
	FindByID(ctx context.Context, id string) (*Bill, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*Bill, error)
	ListByCustomerBetween(ctx context.Context, customerID string, from, to time.Time) ([]*Bill, error)
	ListRecent(ctx context.Context, limit int) ([]*Bill, error)
}
