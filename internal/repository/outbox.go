package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/events"
)

// claimLease is how long a claimed entry stays invisible to other relays.
const claimLease = time.Minute

const (
	claimOutboxSQL = `WITH due AS (
		SELECT id FROM outbox_events
		WHERE status = 'PENDING'
			OR (status IN ('FAILED', 'PROCESSING') AND next_retry_at <= $1)
		ORDER BY seq
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE outbox_events o
	SET status = 'PROCESSING', next_retry_at = $3
	FROM due WHERE o.id = due.id
	RETURNING o.seq, o.id::text, o.aggregate_id, o.event_type, o.payload, o.status,
		o.retry_count, o.max_retries, o.last_error, o.occurred_at`

	updateOutboxSQL = `UPDATE outbox_events
	SET status = $2, retry_count = $3, last_error = $4, next_retry_at = $5, sent_at = $6
	WHERE id = $1`
)

var _ events.Store = (*OutboxRepository)(nil)

// OutboxRepository implements events.Store backed by PostgreSQL.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

type claimedEntry struct {
	seq   int64
	entry *events.Entry
}

// Claim marks due entries as processing and returns them in insertion order.
// Entries stuck in processing longer than the lease are claimed again.
func (r *OutboxRepository) Claim(ctx context.Context, now time.Time, limit int) ([]*events.Entry, error) {
	rows, err := r.pool.Query(ctx, claimOutboxSQL, now, limit, now.Add(claimLease))
	if err != nil {
		return nil, fmt.Errorf("claiming outbox entries: %w", err)
	}
	claimed, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (claimedEntry, error) {
		var (
			c      claimedEntry
			e      events.Entry
			status string
		)
		err := row.Scan(&c.seq, &e.ID, &e.AggregateID, &e.EventType, &e.Payload, &status,
			&e.RetryCount, &e.MaxRetries, &e.LastError, &e.OccurredAt)
		e.Status = events.Status(status)
		c.entry = &e
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("claiming outbox entries: %w", err)
	}

	slices.SortFunc(claimed, func(a, b claimedEntry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]*events.Entry, len(claimed))
	for i, c := range claimed {
		out[i] = c.entry
	}
	return out, nil
}

// Update stores the delivery state of an entry.
func (r *OutboxRepository) Update(ctx context.Context, e *events.Entry) error {
	_, err := r.pool.Exec(ctx, updateOutboxSQL,
		e.ID, string(e.Status), e.RetryCount, e.LastError, nullTime(e.NextRetryAt), nullTime(e.SentAt),
	)
	if err != nil {
		return fmt.Errorf("updating outbox entry %q: %w", e.ID, err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
