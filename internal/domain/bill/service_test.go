package bill

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/customer"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/errs"
)

// --- Mock implementations ---

type mockCustomerRepo struct {
	byID map[string]customer.Customer
	err  error
}

func (m *mockCustomerRepo) FindByID(_ context.Context, id string) (customer.Customer, error) {
	if m.err != nil {
		return customer.Customer{}, m.err
	}
	c, ok := m.byID[id]
	if !ok {
		return customer.Customer{}, customer.NotFound(id)
	}
	return c, nil
}

func (m *mockCustomerRepo) Save(_ context.Context, c customer.Customer) error {
	m.byID[c.ID()] = c
	return nil
}

type mockBillRepo struct {
	saved    []*Bill
	events   []Event
	saveErr  error
	lastFrom time.Time
	lastTo   time.Time
	limit    int
}

func (m *mockBillRepo) Save(_ context.Context, b *Bill) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, b)
	m.events = append(m.events, b.PullEvents()...)
	return nil
}

func (m *mockBillRepo) FindByID(_ context.Context, id string) (*Bill, error) {
	for _, b := range m.saved {
		if b.ID() == id {
			return b, nil
		}
	}
	return nil, NotFound(id)
}

func (m *mockBillRepo) ListByCustomer(_ context.Context, customerID string) ([]*Bill, error) {
	var out []*Bill
	for _, b := range m.saved {
		if b.Customer().ID() == customerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockBillRepo) ListByCustomerBetween(ctx context.Context, customerID string, from, to time.Time) ([]*Bill, error) {
	m.lastFrom, m.lastTo = from, to
	return m.ListByCustomer(ctx, customerID)
}

func (m *mockBillRepo) ListRecent(_ context.Context, limit int) ([]*Bill, error) {
	m.limit = limit
	return m.saved, nil
}

// --- Helpers ---

func newTestService(t *testing.T) (*Service, *mockBillRepo) {
	t.Helper()
	emp, err := customer.New("EMP001", customer.TierEmployee, billTime.AddDate(-3, 0, 0))
	require.NoError(t, err)

	customers := &mockCustomerRepo{byID: map[string]customer.Customer{"EMP001": emp}}
	bills := &mockBillRepo{}
	return NewService(customers, bills), bills
}

// --- Tests ---

func TestService_Calculate(t *testing.T) {
	fixClock(t)
	svc, repo := newTestService(t)

	b, err := svc.Calculate(context.Background(), CalculateRequest{
		CustomerID: "EMP001",
		Items: []ItemInput{
			{Name: "TV", Category: "electronics", UnitPrice: decimal.RequireFromString("1000"), Quantity: 1},
			{Name: "Food", Category: "GROCERY", UnitPrice: decimal.RequireFromString("200"), Quantity: 1},
		},
	})
	require.NoError(t, err)

	bd, ok := b.Breakdown()
	require.True(t, ok)
	assert.Equal(t, "855.00", bd.NetPayable.String())

	require.Len(t, repo.saved, 1)
	require.Len(t, repo.events, 2)
	assert.Equal(t, EventCreated, repo.events[0].EventType())
	assert.Equal(t, EventCalculated, repo.events[1].EventType())
}

func TestService_Calculate_CustomerNotFound(t *testing.T) {
	fixClock(t)
	svc, repo := newTestService(t)

	_, err := svc.Calculate(context.Background(), CalculateRequest{
		CustomerID: "NOPE",
		Items:      []ItemInput{{Name: "TV", Category: "OTHER", UnitPrice: decimal.NewFromInt(1), Quantity: 1}},
	})
	require.ErrorIs(t, err, customer.ErrNotFound)
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.Empty(t, repo.saved)
}

func TestService_Calculate_InvalidItem(t *testing.T) {
	fixClock(t)
	svc, repo := newTestService(t)

	tests := []struct {
		name  string
		item  ItemInput
		field string
	}{
		{name: "bad category", item: ItemInput{Name: "Toy", Category: "toys", UnitPrice: decimal.NewFromInt(1), Quantity: 1}, field: "category"},
		{name: "negative price", item: ItemInput{Name: "Toy", Category: "OTHER", UnitPrice: decimal.NewFromInt(-1), Quantity: 1}, field: "amount"},
		{name: "zero quantity", item: ItemInput{Name: "Toy", Category: "OTHER", UnitPrice: decimal.NewFromInt(1), Quantity: 0}, field: "quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Calculate(context.Background(), CalculateRequest{
				CustomerID: "EMP001",
				Items:      []ItemInput{tt.item},
			})
			require.ErrorIs(t, err, errs.ErrValidation)
			assert.Contains(t, err.Error(), "invalid bill item 'Toy'")

			var ve *errs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.Empty(t, repo.saved)
}

func TestService_Calculate_RequiresInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Calculate(context.Background(), CalculateRequest{Items: []ItemInput{{Name: "X"}}})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = svc.Calculate(context.Background(), CalculateRequest{CustomerID: "EMP001"})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestService_Calculate_SaveError(t *testing.T) {
	fixClock(t)
	svc, repo := newTestService(t)
	repo.saveErr = errors.New("connection refused")

	_, err := svc.Calculate(context.Background(), CalculateRequest{
		CustomerID: "EMP001",
		Items:      []ItemInput{{Name: "TV", Category: "OTHER", UnitPrice: decimal.NewFromInt(10), Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save bill")
}

func TestService_Get(t *testing.T) {
	fixClock(t)
	svc, _ := newTestService(t)

	b, err := svc.Calculate(context.Background(), CalculateRequest{
		CustomerID: "EMP001",
		Items:      []ItemInput{{Name: "TV", Category: "OTHER", UnitPrice: decimal.NewFromInt(10), Quantity: 1}},
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), b.ID())
	require.NoError(t, err)
	assert.Equal(t, b.ID(), got.ID())

	_, err = svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_Lists(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	from := billTime.AddDate(0, -1, 0)
	_, err := svc.ListByCustomerBetween(ctx, "EMP001", from, billTime)
	require.NoError(t, err)
	assert.Equal(t, from, repo.lastFrom)
	assert.Equal(t, billTime, repo.lastTo)

	_, err = svc.ListByCustomerBetween(ctx, "EMP001", billTime, from)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = svc.ListByCustomer(ctx, "")
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = svc.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, repo.limit)

	for _, limit := range []int{0, MaxListLimit + 1} {
		_, err = svc.ListRecent(ctx, limit)
		require.ErrorIs(t, err, errs.ErrValidation)
	}
}
