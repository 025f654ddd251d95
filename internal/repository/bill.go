package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/bill"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/customer"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/money"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/events"
)

const billColumns = `id::text, customer_id, customer_tier, customer_registered_on, items, status,
	total_amount, percentage_discount, percentage_discount_rate, bill_based_discount,
	total_discount, net_payable, calculated_at, created_at`

const (
	upsertBillSQL = `INSERT INTO bills (id, customer_id, customer_tier, customer_registered_on, items, status,
		total_amount, percentage_discount, percentage_discount_rate, bill_based_discount,
		total_discount, net_payable, calculated_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		percentage_discount = EXCLUDED.percentage_discount,
		percentage_discount_rate = EXCLUDED.percentage_discount_rate,
		bill_based_discount = EXCLUDED.bill_based_discount,
		total_discount = EXCLUDED.total_discount,
		net_payable = EXCLUDED.net_payable,
		calculated_at = EXCLUDED.calculated_at`

	insertOutboxSQL = `INSERT INTO outbox_events (id, aggregate_id, event_type, payload, status, max_retries, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getBillByIDSQL = `SELECT ` + billColumns + ` FROM bills WHERE id = $1`

	listBillsByCustomerSQL = `SELECT ` + billColumns + ` FROM bills
	WHERE customer_id = $1 ORDER BY created_at DESC`

	listBillsByCustomerBetweenSQL = `SELECT ` + billColumns + ` FROM bills
	WHERE customer_id = $1 AND created_at BETWEEN $2 AND $3 ORDER BY created_at DESC`

	listRecentBillsSQL = `SELECT ` + billColumns + ` FROM bills
	ORDER BY created_at DESC LIMIT $1`
)

var _ bill.Repository = (*BillRepository)(nil)

// BillRepository implements bill.Repository backed by PostgreSQL.
type BillRepository struct {
	pool *pgxpool.Pool
}

// NewBillRepository returns a BillRepository that uses the given pool.
func NewBillRepository(pool *pgxpool.Pool) *BillRepository {
	return &BillRepository{pool: pool}
}

// itemRecord is the JSONB representation of a bill item.
type itemRecord struct {
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Save persists the bill and its pending events in one transaction. The
// events are drained from the bill only after the transaction commits.
func (r *BillRepository) Save(ctx context.Context, b *bill.Bill) error {
	items := b.Items()
	records := make([]itemRecord, len(items))
	for i, it := range items {
		records[i] = itemRecord{
			Name:      it.Name(),
			Category:  string(it.Category()),
			UnitPrice: it.UnitPrice().Amount(),
			Quantity:  it.Quantity(),
		}
	}
	itemsJSON, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshaling bill items: %w", err)
	}

	pending := b.PeekEvents()
	entries := make([]*events.Entry, 0, len(pending))
	for _, ev := range pending {
		e, err := events.NewEntry(ev)
		if err != nil {
			return fmt.Errorf("encoding %s event: %w", ev.EventType(), err)
		}
		entries = append(entries, e)
	}

	var (
		pct, billBased, totalDiscount, net decimal.NullDecimal
		rate                               *int
		calculatedAt                       *time.Time
	)
	if bd, ok := b.Breakdown(); ok {
		pct = nullDecimal(bd.PercentageDiscount)
		billBased = nullDecimal(bd.BillBasedDiscount)
		totalDiscount = nullDecimal(bd.TotalDiscount)
		net = nullDecimal(bd.NetPayable)
		rate = &bd.PercentageDiscountRate
		calculatedAt = &bd.CalculatedAt
	}

	c := b.Customer()
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertBillSQL,
			b.ID(), c.ID(), string(c.Tier()), c.RegisteredOn(), itemsJSON, b.Status().String(),
			b.Total().Amount(), pct, rate, billBased, totalDiscount, net, calculatedAt, b.CreatedAt(),
		); err != nil {
			return fmt.Errorf("saving bill %q: %w", b.ID(), err)
		}
		for _, e := range entries {
			if _, err := tx.Exec(ctx, insertOutboxSQL,
				e.ID, e.AggregateID, e.EventType, e.Payload, string(e.Status), e.MaxRetries, e.OccurredAt,
			); err != nil {
				return fmt.Errorf("saving outbox entry for bill %q: %w", b.ID(), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.PullEvents()
	return nil
}

// FindByID returns a bill by id.
func (r *BillRepository) FindByID(ctx context.Context, id string) (*bill.Bill, error) {
	// Ids are UUIDs; anything else cannot match a row.
	if _, err := uuid.Parse(id); err != nil {
		return nil, bill.NotFound(id)
	}
	rows, err := r.pool.Query(ctx, getBillByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting bill %q: %w", id, err)
	}

	b, err := pgx.CollectExactlyOneRow(rows, scanBill)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bill.NotFound(id)
		}
		return nil, fmt.Errorf("getting bill %q: %w", id, err)
	}
	return b, nil
}

// ListByCustomer returns all bills of a customer, newest first.
func (r *BillRepository) ListByCustomer(ctx context.Context, customerID string) ([]*bill.Bill, error) {
	rows, err := r.pool.Query(ctx, listBillsByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing bills for customer %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanBill)
}

// ListByCustomerBetween returns the bills of a customer created within
// [from, to], newest first.
func (r *BillRepository) ListByCustomerBetween(ctx context.Context, customerID string, from, to time.Time) ([]*bill.Bill, error) {
	rows, err := r.pool.Query(ctx, listBillsByCustomerBetweenSQL, customerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing bills for customer %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanBill)
}

// ListRecent returns the most recently created bills.
func (r *BillRepository) ListRecent(ctx context.Context, limit int) ([]*bill.Bill, error) {
	rows, err := r.pool.Query(ctx, listRecentBillsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent bills: %w", err)
	}
	return pgx.CollectRows(rows, scanBill)
}

func scanBill(row pgx.CollectableRow) (*bill.Bill, error) {
	var (
		id, customerID, tier, status       string
		registeredOn, createdAt            time.Time
		itemsJSON                          []byte
		total                              decimal.Decimal
		pct, billBased, totalDiscount, net decimal.NullDecimal
		rate                               *int32
		calculatedAt                       *time.Time
	)
	if err := row.Scan(
		&id, &customerID, &tier, &registeredOn, &itemsJSON, &status,
		&total, &pct, &rate, &billBased, &totalDiscount, &net, &calculatedAt, &createdAt,
	); err != nil {
		return nil, err
	}

	c, err := customer.New(customerID, customer.Tier(tier), registeredOn)
	if err != nil {
		return nil, fmt.Errorf("decoding customer of bill %q: %w", id, err)
	}

	var records []itemRecord
	if err := json.Unmarshal(itemsJSON, &records); err != nil {
		return nil, fmt.Errorf("unmarshaling items of bill %q: %w", id, err)
	}
	items := make([]bill.Item, len(records))
	for i, rec := range records {
		price, err := money.New(rec.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("decoding item of bill %q: %w", id, err)
		}
		items[i], err = bill.NewItem(rec.Name, bill.Category(rec.Category), price, rec.Quantity)
		if err != nil {
			return nil, fmt.Errorf("decoding item of bill %q: %w", id, err)
		}
	}

	if status != bill.StatusCalculated.String() || calculatedAt == nil {
		return bill.Reconstitute(id, c, items, createdAt)
	}

	bd := bill.Breakdown{CalculatedAt: *calculatedAt}
	if rate != nil {
		bd.PercentageDiscountRate = int(*rate)
	}
	for _, f := range []struct {
		dst *money.Money
		src decimal.Decimal
	}{
		{&bd.TotalAmount, total},
		{&bd.PercentageDiscount, pct.Decimal},
		{&bd.BillBasedDiscount, billBased.Decimal},
		{&bd.TotalDiscount, totalDiscount.Decimal},
		{&bd.NetPayable, net.Decimal},
	} {
		m, err := money.New(f.src)
		if err != nil {
			return nil, fmt.Errorf("decoding breakdown of bill %q: %w", id, err)
		}
		*f.dst = m
	}
	return bill.ReconstituteCalculated(id, c, items, createdAt, bd)
}

func nullDecimal(m money.Money) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: m.Amount(), Valid: true}
}
