package events

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/bill"
)

// HeaderEventType carries the event type on every Kafka message.
const HeaderEventType = "event_type"

var (
	_ bill.EventPublisher = (*KafkaPublisher)(nil)
	_ bill.EventPublisher = (*LogPublisher)(nil)
)

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns a writer that hashes message keys so events of one
// bill land on the same partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// KafkaPublisher publishes bill events to a Kafka topic keyed by bill id.
type KafkaPublisher struct {
	w MessageWriter
}

// NewKafkaPublisher creates a KafkaPublisher on top of w.
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// Publish writes a single event.
func (p *KafkaPublisher) Publish(ctx context.Context, ev bill.Event) error {
	return p.PublishAll(ctx, []bill.Event{ev})
}

// PublishAll writes events in one batch, preserving their order.
func (p *KafkaPublisher) PublishAll(ctx context.Context, evs []bill.Event) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		msg, err := toMessage(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrap(err, "write messages")
	}
	return nil
}

func toMessage(ev bill.Event) (kafka.Message, error) {
	payload, err := Encode(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.AggregateID()),
		Value: payload,
		Time:  ev.OccurredAt(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(ev.EventType())},
		},
	}, nil
}

// LogPublisher writes events to a zap logger. It is used when no broker is
// configured.
type LogPublisher struct {
	lg *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

// Publish logs a single event.
func (p *LogPublisher) Publish(_ context.Context, ev bill.Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	p.lg.Info("Event published",
		zap.String("event_type", ev.EventType()),
		zap.String("bill_id", ev.AggregateID()),
		zap.Time("occurred_at", ev.OccurredAt()),
		zap.ByteString("payload", payload),
	)
	return nil
}

// PublishAll logs events in order.
func (p *LogPublisher) PublishAll(ctx context.Context, evs []bill.Event) error {
	for _, ev := range evs {
		if err := p.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
