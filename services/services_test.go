package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yashrajoria/inventory-reservation-service/cache"
	"github.com/yashrajoria/inventory-reservation-service/events"
	"github.com/yashrajoria/inventory-reservation-service/models"
	"github.com/yashrajoria/inventory-reservation-service/repository"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// eventLog records every event published on the bus through a local
// subscription, which is delivered synchronously.
type eventLog struct {
	mu   sync.Mutex
	sub  *events.Subscription
	seen []events.Event
}

func newEventLog(bus *events.Bus) *eventLog {
	return &eventLog{sub: bus.Subscribe("", 1024)}
}

func (l *eventLog) ofType(t events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	for drained := false; !drained; {
		select {
		case evt := <-l.sub.C():
			l.seen = append(l.seen, evt)
		default:
			drained = true
		}
	}
	var out []events.Event
	for _, e := range l.seen {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeUploader struct {
	key  string
	body []byte
	err  error
}

func (u *fakeUploader) Upload(_ context.Context, key, _ string, body []byte) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.key = key
	u.body = body
	return "s3://inventory-snapshots/" + key, nil
}

type testEnv struct {
	repo      *repository.MemoryInventoryRepository
	cache     *cache.MemoryStockCache
	bus       *events.Bus
	published *eventLog
	clock     *fakeClock
	status    *StockStatusService
	alerts    *AlertEmitter
	manager   *ReservationManager
	sweeper   *ExpirySweeper
	admin     *InventoryAdmin
	uploader  *fakeUploader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	env := &testEnv{
		repo:     repository.NewMemoryInventoryRepository(),
		cache:    cache.NewMemoryStockCache(100, time.Minute),
		clock:    newFakeClock(),
		uploader: &fakeUploader{},
	}
	env.bus = events.NewBus("test-instance", logger)
	env.published = newEventLog(env.bus)
	env.status = NewStockStatusService(env.repo, env.cache, nil, 10, logger)
	env.alerts = NewAlertEmitter(env.status, env.bus, nil, logger)
	env.alerts.now = env.clock.Now
	env.manager = NewReservationManager(env.repo, env.status, env.bus, env.alerts, nil, nil,
		HoldPolicy{Default: 15 * time.Minute, Max: time.Hour}, logger)
	env.manager.SetClock(env.clock.Now)
	env.sweeper = NewExpirySweeper(env.repo, env.status, env.bus, nil, time.Minute, 2, logger)
	env.sweeper.SetClock(env.clock.Now)
	env.admin = NewInventoryAdmin(env.repo, env.status, env.bus, env.alerts, env.sweeper, env.uploader, nil, logger)
	env.admin.now = env.clock.Now
	return env
}

func intPtr(v int) *int { return &v }

func (e *testEnv) reserve(t *testing.T, productID string, qty int) *models.Reservation {
	t.Helper()
	res, err := e.manager.Reserve(context.Background(), models.ReserveRequest{ProductID: productID, Quantity: qty, Holder: "cart-1"})
	if err != nil {
		t.Fatalf("reserve %s x%d: %v", productID, qty, err)
	}
	return res
}
