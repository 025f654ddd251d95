package bill

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/customer"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/errs"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/money"
)

// ErrNotFound is returned when a requested bill does not exist.
var ErrNotFound = errors.New("bill not found")

// NotFound returns the error reported for a missing bill id.
func NotFound(id string) error {
	return &errs.NotFoundError{Kind: "Bill", ID: id, Sentinel: ErrNotFound}
}

const (
	// Threshold is the size of one block of the bill-based discount.
	Threshold = 100
	// FlatAmount is the discount awarded per full Threshold block.
	FlatAmount = 5
)

// now and newID are swapped in tests.
var (
	now   = time.Now
	newID = func() string { return uuid.New().String() }
)

// Status is the calculation state of a bill.
type Status int

// Bill states. StatusCalculated is terminal.
const (
	StatusUncalculated Status = iota
	StatusCalculated
)

func (s Status) String() string {
	switch s {
	case StatusUncalculated:
		return "UNCALCULATED"
	case StatusCalculated:
		return "CALCULATED"
	default:
		return "UNKNOWN"
	}
}

// Breakdown is the frozen result of a discount calculation.
type Breakdown struct {
	TotalAmount            money.Money
	PercentageDiscount     money.Money
	PercentageDiscountRate int
	BillBasedDiscount      money.Money
	TotalDiscount          money.Money
	NetPayable             money.Money
	CalculatedAt           time.Time
}

// Bill is the aggregate root of a single purchase.
//
// A Bill is not safe for concurrent use.
type Bill struct {
	id        string
	customer  customer.Customer
	items     []Item
	createdAt time.Time

	status    Status
	breakdown Breakdown

	events []Event
}

// Create validates the inputs and returns a new uncalculated bill. It records
// a Created event.
func Create(c customer.Customer, items []Item) (*Bill, error) {
	if err := validateInputs(c, items); err != nil {
		return nil, err
	}
	b := &Bill{
		id:        newID(),
		customer:  c,
		items:     cloneItems(items),
		createdAt: now().UTC(),
	}
	total := b.Total()
	b.record(Created{
		BillID:      b.id,
		CustomerID:  c.ID(),
		TotalAmount: total,
		NetPayable:  total,
		At:          b.createdAt,
	})
	return b, nil
}

// Reconstitute rebuilds an uncalculated bill from storage. No events are
// recorded.
func Reconstitute(id string, c customer.Customer, items []Item, createdAt time.Time) (*Bill, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errs.Validation("id", "bill id cannot be blank")
	}
	if createdAt.IsZero() {
		return nil, errs.Validation("createdAt", "creation timestamp is required")
	}
	if err := validateInputs(c, items); err != nil {
		return nil, err
	}
	return &Bill{
		id:        id,
		customer:  c,
		items:     cloneItems(items),
		createdAt: createdAt.UTC(),
	}, nil
}

// ReconstituteCalculated rebuilds a bill that was calculated before it was
// stored. The stored breakdown is trusted as-is and no events are recorded.
func ReconstituteCalculated(id string, c customer.Customer, items []Item, createdAt time.Time, bd Breakdown) (*Bill, error) {
	b, err := Reconstitute(id, c, items, createdAt)
	if err != nil {
		return nil, err
	}
	if bd.CalculatedAt.IsZero() {
		return nil, errs.Validation("calculatedAt", "calculation timestamp is required")
	}
	if !bd.TotalAmount.Equal(b.Total()) {
		return nil, &errs.InvariantViolation{
			Op:     "reconstitute",
			Reason: "stored total " + bd.TotalAmount.String() + " does not match item total " + b.Total().String(),
		}
	}
	b.status = StatusCalculated
	b.breakdown = bd
	return b, nil
}

func validateInputs(c customer.Customer, items []Item) error {
	if c.IsZero() {
		return errs.Validation("customer", "customer is required")
	}
	if len(items) == 0 {
		return errs.Validation("items", "bill must contain at least one item")
	}
	total := money.Zero()
	for i, it := range items {
		if it.quantity < 1 || it.name == "" {
			return errs.Validation("items", "item at position "+strconv.Itoa(i)+" was not built with NewItem")
		}
		total = total.Add(it.total)
	}
	if total.ExceedsMax() {
		return errs.Validation("totalAmount", "bill total "+total.String()+" exceeds maximum of "+money.Max().String())
	}
	return nil
}

// ID returns the bill identifier.
func (b *Bill) ID() string { return b.id }

// Customer returns the customer snapshot taken at creation.
func (b *Bill) Customer() customer.Customer { return b.customer }

// Items returns a copy of the bill lines in order.
func (b *Bill) Items() []Item { return cloneItems(b.items) }

// CreatedAt returns the creation timestamp.
func (b *Bill) CreatedAt() time.Time { return b.createdAt }

// Status returns the calculation state.
func (b *Bill) Status() Status { return b.status }

// IsCalculated reports whether the breakdown is available.
func (b *Bill) IsCalculated() bool { return b.status == StatusCalculated }

// Breakdown returns the cached breakdown. ok is false until the bill has
// been calculated.
func (b *Bill) Breakdown() (bd Breakdown, ok bool) {
	if b.status != StatusCalculated {
		return Breakdown{}, false
	}
	return b.breakdown, true
}

// Total returns the sum of all item totals.
func (b *Bill) Total() money.Money {
	total := money.Zero()
	for _, it := range b.items {
		total = total.Add(it.Total())
	}
	return total
}

// EligibleAmount returns the sum of item totals subject to the percentage discount.
func (b *Bill) EligibleAmount() money.Money {
	total := money.Zero()
	for _, it := range b.items {
		total = total.Add(it.EligibleAmount())
	}
	return total
}

// CalculateDiscount computes and caches the discount breakdown. Subsequent
// calls return the cached value and record nothing.
//
// The customer's tier is evaluated as of the bill's creation date, not the
// calculation date. The two only differ for a bill reconstituted
// uncalculated and priced on a later day.
func (b *Bill) CalculateDiscount() (Breakdown, error) {
	if b.status == StatusCalculated {
		return b.breakdown, nil
	}

	total := b.Total()
	rate := b.customer.DiscountRate(b.createdAt)

	percentage := money.Zero()
	if rate > 0 {
		var err error
		percentage, err = b.EligibleAmount().ApplyPercentage(rate)
		if err != nil {
			return Breakdown{}, errors.Wrap(err, "apply percentage")
		}
	}

	afterPercentage, err := total.Sub(percentage)
	if err != nil {
		return Breakdown{}, errors.Wrap(err, "subtract percentage discount")
	}

	billBased, err := money.New(afterPercentage.Blocks(Threshold).Mul(decimal.NewFromInt(FlatAmount)))
	if err != nil {
		return Breakdown{}, errors.Wrap(err, "bill-based discount")
	}

	totalDiscount := percentage.Add(billBased)
	net, err := total.Sub(totalDiscount)
	if err != nil {
		return Breakdown{}, errors.Wrap(err, "net payable")
	}

	bd := Breakdown{
		TotalAmount:            total,
		PercentageDiscount:     percentage,
		PercentageDiscountRate: rate,
		BillBasedDiscount:      billBased,
		TotalDiscount:          totalDiscount,
		NetPayable:             net,
		CalculatedAt:           now().UTC(),
	}
	b.breakdown = bd
	b.status = StatusCalculated
	b.record(Calculated{
		BillID:                 b.id,
		CustomerID:             b.customer.ID(),
		TotalAmount:            bd.TotalAmount,
		PercentageDiscount:     bd.PercentageDiscount,
		PercentageDiscountRate: bd.PercentageDiscountRate,
		BillBasedDiscount:      bd.BillBasedDiscount,
		TotalDiscount:          bd.TotalDiscount,
		NetPayable:             bd.NetPayable,
		At:                     bd.CalculatedAt,
	})
	return bd, nil
}

func (b *Bill) record(e Event) {
	b.events = append(b.events, e)
}

// PullEvents returns the recorded events and clears the buffer.
func (b *Bill) PullEvents() []Event {
	out := b.events
	b.events = nil
	return out
}

// PeekEvents returns a copy of the recorded events without clearing them.
func (b *Bill) PeekEvents() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
