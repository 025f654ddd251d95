package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/bill"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/money"
)

var at = time.Date(2024, time.June, 15, 12, 30, 0, 123000000, time.UTC)

func m(t *testing.T, s string) money.Money {
	t.Helper()
	v, err := money.FromString(s)
	require.NoError(t, err)
	return v
}

func calculatedEvent(t *testing.T) bill.Calculated {
	return bill.Calculated{
		BillID:                 "b1",
		CustomerID:             "EMP001",
		TotalAmount:            m(t, "1200"),
		PercentageDiscount:     m(t, "300"),
		PercentageDiscountRate: 30,
		BillBasedDiscount:      m(t, "45"),
		TotalDiscount:          m(t, "345"),
		NetPayable:             m(t, "855"),
		At:                     at,
	}
}

func TestEncode_Calculated(t *testing.T) {
	data, err := Encode(calculatedEvent(t))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"billId": "b1",
		"customerId": "EMP001",
		"totalAmount": 1200.00,
		"percentageDiscount": 300.00,
		"percentageDiscountRate": 30,
		"billBasedDiscount": 45.00,
		"totalDiscount": 345.00,
		"netPayable": 855.00,
		"occurredAt": "2024-06-15T12:30:00.123Z"
	}`, string(data))
	assert.Contains(t, string(data), `"netPayable":855.00`)
}

func TestDecode(t *testing.T) {
	want := calculatedEvent(t)
	data, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode(bill.EventCalculated, data)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	created := bill.Created{BillID: "b2", CustomerID: "C", TotalAmount: m(t, "10.5"), NetPayable: m(t, "10.5"), At: at}
	data, err = Encode(created)
	require.NoError(t, err)

	got, err = Decode(bill.EventCreated, data)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("bill.deleted", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode(bill.EventCreated, []byte(`{"totalAmount": -1}`))
	require.Error(t, err)

	_, err = Decode(bill.EventCreated, []byte(`not json`))
	require.Error(t, err)
}

func TestEntry_MarkFailedBackoff(t *testing.T) {
	e, err := NewEntry(calculatedEvent(t))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, e.Status)
	assert.Equal(t, "b1", e.AggregateID)
	assert.Equal(t, bill.EventCalculated, e.EventType)

	e.MarkFailed("boom", at)
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, at.Add(time.Second), e.NextRetryAt)

	e.MarkFailed("boom", at)
	assert.Equal(t, at.Add(2*time.Second), e.NextRetryAt)

	e.MarkFailed("boom", at)
	e.MarkFailed("boom", at)
	assert.Equal(t, at.Add(8*time.Second), e.NextRetryAt)
	assert.False(t, e.IsDead())

	e.MarkFailed("boom", at)
	assert.True(t, e.IsDead())
	assert.Equal(t, 5, e.RetryCount)
	assert.True(t, e.NextRetryAt.IsZero())
}

// --- Mock implementations ---

type mockStore struct {
	entries []*Entry
	updated []*Entry
}

func (s *mockStore) Claim(_ context.Context, _ time.Time, limit int) ([]*Entry, error) {
	out := s.entries
	if len(out) > limit {
		out = out[:limit]
	}
	for _, e := range out {
		e.Status = StatusProcessing
	}
	return out, nil
}

func (s *mockStore) Update(_ context.Context, e *Entry) error {
	s.updated = append(s.updated, e)
	return nil
}

type mockPublisher struct {
	published []bill.Event
	fail      map[string]bool
}

func (p *mockPublisher) Publish(_ context.Context, ev bill.Event) error {
	if p.fail[ev.AggregateID()] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, ev)
	return nil
}

func (p *mockPublisher) PublishAll(ctx context.Context, evs []bill.Event) error {
	for _, ev := range evs {
		if err := p.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func TestRelay_ProcessBatch(t *testing.T) {
	ok, err := NewEntry(calculatedEvent(t))
	require.NoError(t, err)

	failing := calculatedEvent(t)
	failing.BillID = "b-fail"
	bad, err := NewEntry(failing)
	require.NoError(t, err)

	garbage := &Entry{ID: "x", EventType: bill.EventCreated, Payload: []byte("{"), MaxRetries: 1, Status: StatusPending}

	store := &mockStore{entries: []*Entry{ok, bad, garbage}}
	pub := &mockPublisher{fail: map[string]bool{"b-fail": true}}

	r := NewRelay(store, pub, RelayConfig{BatchSize: 10}, noop.NewTracerProvider())
	r.now = func() time.Time { return at }

	sent, err := r.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "b1", pub.published[0].AggregateID())

	require.Len(t, store.updated, 3)
	assert.Equal(t, StatusSent, ok.Status)
	assert.Equal(t, at, ok.SentAt)
	assert.Equal(t, StatusFailed, bad.Status)
	assert.Equal(t, "broker unavailable", bad.LastError)
	assert.Equal(t, StatusDead, garbage.Status)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := &mockStore{}
	r := NewRelay(store, &mockPublisher{}, RelayConfig{Interval: time.Millisecond}, noop.NewTracerProvider())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)

	created := bill.Created{BillID: "b1", CustomerID: "C", TotalAmount: m(t, "1"), NetPayable: m(t, "1"), At: at}
	require.NoError(t, p.PublishAll(context.Background(), []bill.Event{created, calculatedEvent(t)}))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, []byte("b1"), w.msgs[0].Key)
	assert.Equal(t, HeaderEventType, w.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte(bill.EventCreated), w.msgs[0].Headers[0].Value)
	assert.Equal(t, []byte(bill.EventCalculated), w.msgs[1].Headers[0].Value)
	assert.Equal(t, at, w.msgs[1].Time)

	require.NoError(t, p.PublishAll(context.Background(), nil))
	assert.Len(t, w.msgs, 2)

	w.err = errors.New("leader not available")
	require.Error(t, p.Publish(context.Background(), created))
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.PublishAll(context.Background(), []bill.Event{calculatedEvent(t)}))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Event published", entries[0].Message)
	assert.Equal(t, bill.EventCalculated, entries[0].ContextMap()["event_type"])
}
