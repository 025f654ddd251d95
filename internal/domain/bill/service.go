package bill

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/customer"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/errs"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/money"
)

// MaxListLimit caps the number of bills returned by ListRecent.
const MaxListLimit = 100

// ItemInput is an unvalidated bill line as submitted by a client.
type ItemInput struct {
	Name      string
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// CalculateRequest holds the input for calculating a new bill.
type CalculateRequest struct {
	CustomerID string
	Items      []ItemInput
}

// Service encapsulates bill calculation and retrieval.
type Service struct {
	customers customer.Repository
	bills     Repository
}

// NewService creates a bill Service.
func NewService(customers customer.Repository, bills Repository) *Service {
	return &Service{
		customers: customers,
		bills:     bills,
	}
}

// Calculate resolves the customer, builds and calculates a bill, and
// persists it together with its events.
func (s *Service) Calculate(ctx context.Context, req CalculateRequest) (*Bill, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, errs.Validation("customerId", "customer id is required")
	}
	if len(req.Items) == 0 {
		return nil, errs.Validation("items", "bill must contain at least one item")
	}

	items, err := MapItems(req.Items)
	if err != nil {
		return nil, err
	}

	c, err := s.customers.FindByID(ctx, req.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "find customer")
	}

	b, err := Create(c, items)
	if err != nil {
		return nil, errors.Wrap(err, "create bill")
	}
	if _, err := b.CalculateDiscount(); err != nil {
		return nil, errors.Wrap(err, "calculate discount")
	}

	if err := s.bills.Save(ctx, b); err != nil {
		return nil, errors.Wrap(err, "save bill")
	}
	return b, nil
}

// MapItems converts client input into validated items. Errors name the
// offending item.
func MapItems(in []ItemInput) ([]Item, error) {
	items := make([]Item, 0, len(in))
	for _, raw := range in {
		it, err := mapItem(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid bill item '%s'", raw.Name)
		}
		items = append(items, it)
	}
	return items, nil
}

func mapItem(raw ItemInput) (Item, error) {
	category, err := ParseCategory(raw.Category)
	if err != nil {
		return Item{}, err
	}
	price, err := money.New(raw.UnitPrice)
	if err != nil {
		return Item{}, err
	}
	return NewItem(raw.Name, category, price, raw.Quantity)
}

// Get returns a stored bill.
func (s *Service) Get(ctx context.Context, id string) (*Bill, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errs.Validation("id", "bill id is required")
	}
	b, err := s.bills.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "find bill")
	}
	return b, nil
}

// ListByCustomer returns every bill of a customer, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*Bill, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errs.Validation("customerId", "customer id is required")
	}
	bills, err := s.bills.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list bills by customer")
	}
	return bills, nil
}

// ListByCustomerBetween returns the bills of a customer created in [from, to].
func (s *Service) ListByCustomerBetween(ctx context.Context, customerID string, from, to time.Time) ([]*Bill, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errs.Validation("customerId", "customer id is required")
	}
	if to.Before(from) {
		return nil, errs.Validation("to", "end of range is before its start")
	}
	bills, err := s.bills.ListByCustomerBetween(ctx, customerID, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "list bills by customer and range")
	}
	return bills, nil
}

// ListRecent returns up to limit of the most recently created bills.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*Bill, error) {
	if limit < 1 || limit > MaxListLimit {
		return nil, errs.Validation("limit", "limit must be between 1 and 100")
	}
	bills, err := s.bills.ListRecent(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list recent bills")
	}
	return bills, nil
}
