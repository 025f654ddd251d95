package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/customer"
)

const (
	getCustomerByIDSQL = `SELECT id, tier, registered_on FROM customers WHERE id = $1`

	upsertCustomerSQL = `INSERT INTO customers (id, tier, registered_on)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE
	SET tier = EXCLUDED.tier, registered_on = EXCLUDED.registered_on, updated_at = now()`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// FindByID returns a customer by id.
func (r *CustomerRepository) FindByID(ctx context.Context, id string) (customer.Customer, error) {
	var (
		cid, tier    string
		registeredOn time.Time
	)
	err := r.pool.QueryRow(ctx, getCustomerByIDSQL, id).Scan(&cid, &tier, &registeredOn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return customer.Customer{}, customer.NotFound(id)
		}
		return customer.Customer{}, fmt.Errorf("getting customer %q: %w", id, err)
	}

	c, err := customer.New(cid, customer.Tier(tier), registeredOn)
	if err != nil {
		return customer.Customer{}, fmt.Errorf("decoding customer %q: %w", id, err)
	}
	return c, nil
}

// Save inserts or updates a customer.
func (r *CustomerRepository) Save(ctx context.Context, c customer.Customer) error {
	_, err := r.pool.Exec(ctx, upsertCustomerSQL, c.ID(), string(c.Tier()), c.RegisteredOn())
	if err != nil {
		return fmt.Errorf("saving customer %q: %w", c.ID(), err)
	}
	return nil
}
