// Package handler exposes the bill service over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/auth"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/bill"
)

// Handler serves the /bills resource.
type Handler struct {
	bills *bill.Service

	calculated metric.Int64Counter
	discounts  metric.Float64Histogram
}

// NewHandler creates a Handler that records its metrics on mp.
func NewHandler(bills *bill.Service, mp metric.MeterProvider) (*Handler, error) {
	meter := mp.Meter("retail-discount/handler")

	calculated, err := meter.Int64Counter("bills_calculated",
		metric.WithDescription("Number of bills calculated, by effective customer tier"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create bills_calculated counter")
	}
	discounts, err := meter.Float64Histogram("bill_total_discount",
		metric.WithDescription("Total discount granted per bill"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create bill_total_discount histogram")
	}

	return &Handler{
		bills:      bills,
		calculated: calculated,
		discounts:  discounts,
	}, nil
}

// Routes returns the API router. Every route requires an API key; mws run
// after authentication so they can see the caller's key.
func (h *Handler) Routes(authn *auth.Authenticator, mws ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(Authenticate(authn))
	r.Use(mws...)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/bills", func(r chi.Router) {
		r.With(RequireScope(auth.ScopeBillsWrite)).Post("/", h.CreateBill)
		r.With(RequireScope(auth.ScopeBillsRead)).Get("/", h.ListBills)
		r.With(RequireScope(auth.ScopeBillsRead)).Get("/{id}", h.GetBill)
	})
	return r
}
