// Package cache provides Redis read-through caches for domain repositories.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/customer"
)

const customerKeyPrefix = "customer:"

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository caches customer lookups in Redis in front of another
// customer.Repository. Redis failures fall through to the backing store.
type CustomerRepository struct {
	next   customer.Repository
	client redis.Cmdable
	ttl    time.Duration
}

// NewCustomerRepository wraps next with a cache whose entries live for ttl.
func NewCustomerRepository(next customer.Repository, client redis.Cmdable, ttl time.Duration) *CustomerRepository {
	return &CustomerRepository{next: next, client: client, ttl: ttl}
}

type customerRecord struct {
	ID           string    `json:"id"`
	Tier         string    `json:"tier"`
	RegisteredOn time.Time `json:"registered_on"`
}

func customerKey(id string) string {
	return customerKeyPrefix + id
}

// FindByID returns the cached customer or loads and caches it.
func (r *CustomerRepository) FindByID(ctx context.Context, id string) (customer.Customer, error) {
	lg := zctx.From(ctx)

	c, ok, err := r.get(ctx, id)
	if err != nil {
		lg.Warn("Customer cache read failed", zap.String("customer_id", id), zap.Error(err))
	}
	if ok {
		return c, nil
	}

	c, err = r.next.FindByID(ctx, id)
	if err != nil {
		return customer.Customer{}, err
	}
	if err := r.set(ctx, c); err != nil {
		lg.Warn("Customer cache write failed", zap.String("customer_id", id), zap.Error(err))
	}
	return c, nil
}

// Save writes through to the backing store and drops the cached entry.
func (r *CustomerRepository) Save(ctx context.Context, c customer.Customer) error {
	if err := r.next.Save(ctx, c); err != nil {
		return err
	}
	if err := r.client.Del(ctx, customerKey(c.ID())).Err(); err != nil {
		zctx.From(ctx).Warn("Customer cache invalidation failed",
			zap.String("customer_id", c.ID()), zap.Error(err))
	}
	return nil
}

func (r *CustomerRepository) get(ctx context.Context, id string) (customer.Customer, bool, error) {
	data, err := r.client.Get(ctx, customerKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return customer.Customer{}, false, nil
		}
		return customer.Customer{}, false, errors.Wrap(err, "get")
	}

	var rec customerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return customer.Customer{}, false, errors.Wrap(err, "unmarshal")
	}
	c, err := customer.New(rec.ID, customer.Tier(rec.Tier), rec.RegisteredOn)
	if err != nil {
		return customer.Customer{}, false, errors.Wrap(err, "decode")
	}
	return c, true, nil
}

func (r *CustomerRepository) set(ctx context.Context, c customer.Customer) error {
	data, err := json.Marshal(customerRecord{
		ID:           c.ID(),
		Tier:         string(c.Tier()),
		RegisteredOn: c.RegisteredOn(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	return r.client.Set(ctx, customerKey(c.ID()), data, r.ttl).Err()
}
