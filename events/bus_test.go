package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/inventory-reservation-service/events"
	"github.com/yashrajoria/inventory-reservation-service/models"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu   sync.Mutex
	name string
	got  []events.Event
	err  error
}

func (s *recordingSink) Name() string { return s.name }
func (s *recordingSink) Send(ctx context.Context, evt events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, evt)
	return s.err
}

func sampleReservation() *models.Reservation {
	return &models.Reservation{
		ID:        uuid.New(),
		ProductID: "sku-1",
		Quantity:  2,
		Holder:    "cart-9",
		Status:    models.ReservationActive,
		ExpiresAt: time.Now().Add(time.Minute),
	}
}

func TestBus_PublishReachesSubscribersAndSinks(t *testing.T) {
	failing := &recordingSink{name: "broken", err: errors.New("down")}
	ok := &recordingSink{name: "ok"}
	bus := events.NewBus("node-a", zap.NewNop(), failing, ok)
	bus.Start()

	sub := bus.Subscribe("", 4)
	defer sub.Close()

	bus.Publish(context.Background(), events.NewReservationEvent(events.ReservationCreated, sampleReservation()))

	select {
	case evt := <-sub.C():
		assert.Equal(t, events.ReservationCreated, evt.Type)
		assert.Equal(t, "node-a", evt.Origin)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
	require.NoError(t, bus.Close(context.Background()))
	// A failing sink does not stop the others.
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}

// blockingSink holds every Send until its context ends.
type blockingSink struct {
	entered chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }
func (s *blockingSink) Send(ctx context.Context, evt events.Event) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestBus_HungSinkDoesNotDelayPublisherOrOtherSinks(t *testing.T) {
	hung := &blockingSink{entered: make(chan struct{}, 1)}
	ok := &recordingSink{name: "ok"}
	bus := events.NewBus("node-a", zap.NewNop(), hung, ok)
	bus.Start()

	start := time.Now()
	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), events.NewExpiryEvent("sku-1", nil, i))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	<-hung.entered
	assert.Eventually(t, func() bool {
		ok.mu.Lock()
		defer ok.mu.Unlock()
		return len(ok.got) == 5
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Close(ctx), context.DeadlineExceeded)
}

func TestBus_FullSinkQueueDrops(t *testing.T) {
	hung := &blockingSink{entered: make(chan struct{}, 1)}
	bus := events.NewBus("node-a", zap.NewNop())
	bus.SetQueueSize(2)
	bus.AddSink(hung)
	bus.Start()

	bus.Publish(context.Background(), events.NewExpiryEvent("sku-1", nil, 0))
	<-hung.entered

	done := make(chan struct{})
	go func() {
		for i := 1; i < 10; i++ {
			bus.Publish(context.Background(), events.NewExpiryEvent("sku-1", nil, i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full sink queue")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = bus.Close(ctx)
}

func TestBus_PublishAfterCloseIsLocalOnly(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	bus := events.NewBus("node-a", zap.NewNop(), ok)
	bus.Start()
	require.NoError(t, bus.Close(context.Background()))

	sub := bus.Subscribe("", 1)
	defer sub.Close()
	bus.Publish(context.Background(), events.NewExpiryEvent("sku-1", nil, 1))

	assert.Len(t, sub.C(), 1)
	assert.Empty(t, ok.got)
}

func TestBus_ProductFilter(t *testing.T) {
	bus := events.NewBus("node-a", zap.NewNop())
	sub := bus.Subscribe("sku-2", 4)
	defer sub.Close()

	bus.Publish(context.Background(), events.NewExpiryEvent("sku-1", []string{"r1"}, 1))
	bus.Publish(context.Background(), events.NewExpiryEvent("sku-2", []string{"r2"}, 3))

	evt := <-sub.C()
	assert.Equal(t, "sku-2", evt.ProductID)
	assert.Len(t, sub.C(), 0)
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := events.NewBus("node-a", zap.NewNop())
	sub := bus.Subscribe("", 1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(context.Background(), events.NewExpiryEvent("sku-1", nil, i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, sub.C(), 1)
}

func TestBus_CloseUnsubscribes(t *testing.T) {
	bus := events.NewBus("node-a", zap.NewNop())
	sub := bus.Subscribe("", 1)
	assert.Equal(t, 1, bus.SubscriberCount())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-sub.C()
	assert.False(t, open)
}

func TestDecode_TypedPayloads(t *testing.T) {
	alert := models.Alert{
		ProductID: "sku-1", Type: models.AlertOutOfStock, Severity: models.SeverityCritical,
		Available: 0, Threshold: 5, Timestamp: time.Now().UTC(),
	}
	data, err := events.Marshal(events.NewAlertEvent(alert))
	require.NoError(t, err)

	evt, err := events.Decode(data)
	require.NoError(t, err)
	p, ok := evt.Payload.(events.AlertPayload)
	require.True(t, ok)
	assert.Equal(t, models.SeverityCritical, p.Severity)
	assert.Equal(t, "sku-1", evt.ProductID)

	_, err = events.Decode([]byte(`{"event_type":"price_changed","payload":{}}`))
	assert.Error(t, err)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}
func (f *fakeWriter) Close() error { return nil }

func TestKafkaSink_KeysByProduct(t *testing.T) {
	w := &fakeWriter{}
	sink := events.NewKafkaSinkWithWriter(w, "inventory.events")

	change := &models.LedgerChange{ProductID: "sku-7", PreviousTotal: 10, NewTotal: 8}
	require.NoError(t, sink.Send(context.Background(), events.NewLedgerEvent(change, "confirm")))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "sku-7", string(w.msgs[0].Key))
	assert.Equal(t, "ledger_adjusted", string(w.msgs[0].Headers[0].Value))

	evt, err := events.Decode(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, 8, evt.Payload.(events.LedgerPayload).NewTotal)
}

type fakePublisher struct {
	topic string
	body  []byte
	attrs map[string]string
}

func (f *fakePublisher) Publish(ctx context.Context, topicArn string, message []byte, attributes map[string]string) error {
	f.topic, f.body, f.attrs = topicArn, message, attributes
	return nil
}

func TestSNSSink_PublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	sink := events.NewSNSSink(pub, "arn:aws:sns:us-east-1:000000000000:inventory")

	require.NoError(t, sink.Send(context.Background(), events.NewReservationEvent(events.ReservationCancelled, sampleReservation())))
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:inventory", pub.topic)
	assert.Contains(t, string(pub.body), `"event_type":"reservation_cancelled"`)
	assert.Equal(t, map[string]string{"event_type": "reservation_cancelled", "product_id": "sku-1"}, pub.attrs)
}
