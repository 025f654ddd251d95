package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/bill"
)

// RelayConfig controls outbox polling.
type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Relay moves events from the outbox to a publisher.
type Relay struct {
	store  Store
	pub    bill.EventPublisher
	cfg    RelayConfig
	tracer trace.Tracer
	now    func() time.Time
}

// NewRelay creates a Relay.
func NewRelay(store Store, pub bill.EventPublisher, cfg RelayConfig, tp trace.TracerProvider) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{
		store:  store,
		pub:    pub,
		cfg:    cfg,
		tracer: tp.Tracer("retail-discount/events"),
		now:    time.Now,
	}
}

// Run polls the outbox until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	lg.Info("Outbox relay started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				lg.Error("Outbox batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch claims due entries and attempts to deliver each once. It
// returns the number of entries delivered.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch")
	defer span.End()

	entries, err := r.store.Claim(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, errors.Wrap(err, "claim entries")
	}
	span.SetAttributes(attribute.Int("outbox.claimed", len(entries)))

	sent := 0
	for _, e := range entries {
		if r.deliver(ctx, e) {
			sent++
		}
	}
	span.SetAttributes(attribute.Int("outbox.sent", sent))
	return sent, nil
}

func (r *Relay) deliver(ctx context.Context, e *Entry) bool {
	lg := zctx.From(ctx).With(
		zap.String("outbox_id", e.ID),
		zap.String("event_type", e.EventType),
		zap.String("bill_id", e.AggregateID),
	)

	err := r.publish(ctx, e)
	if err != nil {
		e.MarkFailed(err.Error(), r.now())
		if e.IsDead() {
			lg.Warn("Event moved to dead letter",
				zap.Int("retry_count", e.RetryCount),
				zap.Error(err),
			)
		} else {
			lg.Warn("Event delivery failed",
				zap.Int("retry_count", e.RetryCount),
				zap.Time("next_retry_at", e.NextRetryAt),
				zap.Error(err),
			)
		}
	} else {
		e.MarkSent(r.now())
	}

	if uerr := r.store.Update(ctx, e); uerr != nil {
		lg.Error("Update outbox entry", zap.Error(uerr))
		return false
	}
	return err == nil
}

func (r *Relay) publish(ctx context.Context, e *Entry) error {
	ev, err := Decode(e.EventType, e.Payload)
	if err != nil {
		return err
	}
	return r.pub.Publish(ctx, ev)
}
