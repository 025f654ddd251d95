package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/bill"
)

// Status is the delivery state of an outbox entry.
type Status string

// Outbox entry states.
const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSent       Status = "SENT"
	StatusFailed     Status = "FAILED"
	StatusDead       Status = "DEAD"
)

const (
	// DefaultMaxRetries is the number of failed deliveries before an entry is dead.
	DefaultMaxRetries = 5
	// DefaultBaseBackoff is the delay before the first retry. It doubles per attempt.
	DefaultBaseBackoff = time.Second
)

// Entry is an event waiting in the transactional outbox.
type Entry struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	Status      Status
	RetryCount  int
	MaxRetries  int
	LastError   string
	NextRetryAt time.Time
	OccurredAt  time.Time
	SentAt      time.Time
}

// NewEntry encodes ev into a pending entry.
func NewEntry(ev bill.Event) (*Entry, error) {
	payload, err := Encode(ev)
	if err != nil {
		return nil, err
	}
	return &Entry{
		ID:          uuid.New().String(),
		AggregateID: ev.AggregateID(),
		EventType:   ev.EventType(),
		Payload:     payload,
		Status:      StatusPending,
		MaxRetries:  DefaultMaxRetries,
		OccurredAt:  ev.OccurredAt(),
	}, nil
}

// MarkSent records a successful delivery.
func (e *Entry) MarkSent(at time.Time) {
	e.Status = StatusSent
	e.SentAt = at
	e.LastError = ""
}

// MarkFailed records a failed delivery and schedules the next attempt with
// exponential backoff. The entry becomes dead once MaxRetries is reached.
func (e *Entry) MarkFailed(msg string, at time.Time) {
	e.RetryCount++
	e.LastError = msg
	if e.RetryCount >= e.MaxRetries {
		e.Status = StatusDead
		e.NextRetryAt = time.Time{}
		return
	}
	e.Status = StatusFailed
	e.NextRetryAt = at.Add(DefaultBaseBackoff << (e.RetryCount - 1))
}

// IsDead reports whether the entry will no longer be retried.
func (e *Entry) IsDead() bool {
	return e.Status == StatusDead
}

// Store persists outbox entries.
type Store interface {
	// Claim marks up to limit pending or due failed entries as processing
	// and returns them.
	Claim(ctx context.Context, now time.Time, limit int) ([]*Entry, error)
	Update(ctx context.Context, e *Entry) error
}
