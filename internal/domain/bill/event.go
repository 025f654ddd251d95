package bill

import (
	"context"
	"time"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/money"
)

// Event type names, also used as message types on the wire.
const (
	EventCreated    = "bill.created"
	EventCalculated = "bill.calculated"
)

// Event is an immutable fact recorded by a Bill.
type Event interface {
	EventType() string
	AggregateID() string
	OccurredAt() time.Time
}

// Created is recorded when a bill is first created.
//
// NetPayable equals TotalAmount: no discount has been computed yet, and
// consumers should treat it as provisional until the matching Calculated.
type Created struct {
	BillID      string
	CustomerID  string
	TotalAmount money.Money
	NetPayable  money.Money
	At          time.Time
}

// EventType implements Event.
func (Created) EventType() string { return EventCreated }

// AggregateID implements Event.
func (e Created) AggregateID() string { return e.BillID }

// OccurredAt implements Event.
func (e Created) OccurredAt() time.Time { return e.At }

// Calculated is recorded once the discount breakdown of a bill is known.
type Calculated struct {
	BillID                 string
	CustomerID             string
	TotalAmount            money.Money
	PercentageDiscount     money.Money
	PercentageDiscountRate int
	BillBasedDiscount      money.Money
	TotalDiscount          money.Money
	NetPayable             money.Money
	At                     time.Time
}

// EventType implements Event.
func (Calculated) EventType() string { return EventCalculated }

// AggregateID implements Event.
func (e Calculated) AggregateID() string { return e.BillID }

// OccurredAt implements Event.
func (e Calculated) OccurredAt() time.Time { return e.At }

// EventPublisher delivers bill events to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
	PublishAll(ctx context.Context, events []Event) error
}

var (
	_ Event = Created{}
	_ Event = Calculated{}
)
