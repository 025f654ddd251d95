package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/auth"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/bill"
)

// DefaultListLimit is used when GET /bills carries no limit.
const DefaultListLimit = 10

// CreateBill handles POST /bills. The customer defaults to the one bound to
// the caller's API key.
func (h *Handler) CreateBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := decodeCreateBill(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		zctx.From(ctx).Debug("Malformed request body", zap.Error(err))
		writeStatus(w, http.StatusBadRequest, "Malformed JSON request")
		return
	}
	if fields := validateStruct(req); fields != nil {
		writeFieldErrors(w, fields)
		return
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		if info, ok := auth.KeyFrom(ctx); ok {
			customerID = info.CustomerID
		}
	}

	b, err := h.bills.Calculate(ctx, bill.CalculateRequest{
		CustomerID: customerID,
		Items:      req.toItems(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	bd, _ := b.Breakdown()
	h.calculated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", string(b.Customer().EffectiveTier(b.CreatedAt()))),
	))
	h.discounts.Record(ctx, bd.TotalDiscount.Amount().InexactFloat64())

	zctx.From(ctx).Info("Bill calculated",
		zap.String("bill_id", b.ID()),
		zap.String("customer_id", customerID),
		zap.Stringer("net_payable", bd.NetPayable),
	)

	var e jx.Encoder
	encodeBill(&e, b)
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+b.ID())
	writeJSON(w, http.StatusCreated, e.Bytes())
}

// GetBill handles GET /bills/{id}.
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	b, err := h.bills.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeBill(&e, b)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// ListBills handles GET /bills. With a customer (from the query or the
// caller's key) it lists that customer's bills, optionally within
// [from, to]. Without one it lists the most recent bills, up to limit.
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	customerID := strings.TrimSpace(q.Get("customerId"))
	if customerID == "" {
		if info, ok := auth.KeyFrom(ctx); ok {
			customerID = info.CustomerID
		}
	}

	fields := fieldErrors{}
	from, fromOK := parseTimeParam(q.Get("from"), "from", fields)
	to, toOK := parseTimeParam(q.Get("to"), "to", fields)
	// limit bounds only the recent listing but is validated on every path.
	limit := DefaultListLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			fields["limit"] = "must be an integer"
		case n < 1 || n > bill.MaxListLimit:
			fields["limit"] = "must be between 1 and " + strconv.Itoa(bill.MaxListLimit)
		}
		limit = n
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	var (
		bills []*bill.Bill
		err   error
	)
	switch {
	case customerID != "" && fromOK && toOK:
		bills, err = h.bills.ListByCustomerBetween(ctx, customerID, from, to)
	case customerID != "":
		bills, err = h.bills.ListByCustomer(ctx, customerID)
	default:
		bills, err = h.bills.ListRecent(ctx, limit)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for _, b := range bills {
		encodeBill(&e, b)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

// Accepted query time layouts. Zone-less values are read as UTC.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseTimeParam(raw, name string, fields fieldErrors) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	fields[name] = "must be an ISO-8601 date-time"
	return time.Time{}, false
}

// encodeBill writes the wire form of a bill. Money is written with exactly
// two decimals.
func encodeBill(e *jx.Encoder, b *bill.Bill) {
	e.ObjStart()
	e.FieldStart("billId")
	e.Str(b.ID())
	e.FieldStart("customerId")
	e.Str(b.Customer().ID())
	e.FieldStart("status")
	e.Str(b.Status().String())
	e.FieldStart("createdAt")
	e.Str(b.CreatedAt().UTC().Format(time.RFC3339Nano))

	bd, ok := b.Breakdown()
	if !ok {
		e.FieldStart("totalAmount")
		e.Num(jx.Num(b.Total().String()))
		e.ObjEnd()
		return
	}

	e.FieldStart("calculatedAt")
	e.Str(bd.CalculatedAt.UTC().Format(time.RFC3339Nano))
	e.FieldStart("totalAmount")
	e.Num(jx.Num(bd.TotalAmount.String()))
	e.FieldStart("percentageDiscount")
	e.Num(jx.Num(bd.PercentageDiscount.String()))
	e.FieldStart("percentageDiscountRate")
	e.Int(bd.PercentageDiscountRate)
	e.FieldStart("billBasedDiscount")
	e.Num(jx.Num(bd.BillBasedDiscount.String()))
	e.FieldStart("totalDiscount")
	e.Num(jx.Num(bd.TotalDiscount.String()))
	e.FieldStart("netPayable")
	e.Num(jx.Num(bd.NetPayable.String()))
	e.ObjEnd()
}
