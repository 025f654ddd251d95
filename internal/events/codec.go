// Package events encodes bill events and delivers them from the outbox.
package events

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/bill"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/money"
)

// ErrUnknownEvent is returned when decoding an unsupported event type.
var ErrUnknownEvent = errors.New("unknown event type")

// Encode serializes a bill event to JSON. Monetary fields are written as
// numbers with two decimals.
func Encode(ev bill.Event) ([]byte, error) {
	var e jx.Encoder
	switch v := ev.(type) {
	case bill.Created:
		e.ObjStart()
		e.FieldStart("billId")
		e.Str(v.BillID)
		e.FieldStart("customerId")
		e.Str(v.CustomerID)
		writeMoney(&e, "totalAmount", v.TotalAmount)
		writeMoney(&e, "netPayable", v.NetPayable)
		e.FieldStart("occurredAt")
		e.Str(v.At.UTC().Format(time.RFC3339Nano))
		e.ObjEnd()
	case bill.Calculated:
		e.ObjStart()
		e.FieldStart("billId")
		e.Str(v.BillID)
		e.FieldStart("customerId")
		e.Str(v.CustomerID)
		writeMoney(&e, "totalAmount", v.TotalAmount)
		writeMoney(&e, "percentageDiscount", v.PercentageDiscount)
		e.FieldStart("percentageDiscountRate")
		e.Int(v.PercentageDiscountRate)
		writeMoney(&e, "billBasedDiscount", v.BillBasedDiscount)
		writeMoney(&e, "totalDiscount", v.TotalDiscount)
		writeMoney(&e, "netPayable", v.NetPayable)
		e.FieldStart("occurredAt")
		e.Str(v.At.UTC().Format(time.RFC3339Nano))
		e.ObjEnd()
	default:
		return nil, errors.Wrapf(ErrUnknownEvent, "encode %T", ev)
	}
	return e.Bytes(), nil
}

func writeMoney(e *jx.Encoder, field string, m money.Money) {
	e.FieldStart(field)
	e.Num(jx.Num(m.String()))
}

// Decode parses a payload produced by Encode.
func Decode(eventType string, payload []byte) (bill.Event, error) {
	var (
		f   fields
		err error
	)
	switch eventType {
	case bill.EventCreated, bill.EventCalculated:
		err = f.decode(jx.DecodeBytes(payload))
	default:
		return nil, errors.Wrapf(ErrUnknownEvent, "decode %q", eventType)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", eventType)
	}

	if eventType == bill.EventCreated {
		return bill.Created{
			BillID:      f.billID,
			CustomerID:  f.customerID,
			TotalAmount: f.money["totalAmount"],
			NetPayable:  f.money["netPayable"],
			At:          f.at,
		}, nil
	}
	return bill.Calculated{
		BillID:                 f.billID,
		CustomerID:             f.customerID,
		TotalAmount:            f.money["totalAmount"],
		PercentageDiscount:     f.money["percentageDiscount"],
		PercentageDiscountRate: f.rate,
		BillBasedDiscount:      f.money["billBasedDiscount"],
		TotalDiscount:          f.money["totalDiscount"],
		NetPayable:             f.money["netPayable"],
		At:                     f.at,
	}, nil
}

type fields struct {
	billID     string
	customerID string
	rate       int
	at         time.Time
	money      map[string]money.Money
}

func (f *fields) decode(d *jx.Decoder) error {
	f.money = make(map[string]money.Money, 6)
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "billId":
			v, err := d.Str()
			f.billID = v
			return err
		case "customerId":
			v, err := d.Str()
			f.customerID = v
			return err
		case "percentageDiscountRate":
			v, err := d.Int()
			f.rate = v
			return err
		case "occurredAt":
			v, err := d.Str()
			if err != nil {
				return err
			}
			at, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return errors.Wrap(err, "occurredAt")
			}
			f.at = at
			return nil
		case "totalAmount", "percentageDiscount", "billBasedDiscount", "totalDiscount", "netPayable":
			n, err := d.Num()
			if err != nil {
				return errors.Wrap(err, key)
			}
			m, err := money.FromString(string(n))
			if err != nil {
				return errors.Wrap(err, key)
			}
			f.money[key] = m
			return nil
		default:
			return d.Skip()
		}
	})
}
