package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/pkg/circuitbreaker"
)

var scope = shared.Scope{TenantID: "t1", SchoolID: "sch1", ClassroomID: "c1"}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func awarded() shared.Event {
	return shared.NewPointsAwardedEvent(scope, "a1", []string{"a1"}, []string{"emma"}, "kind", "Kind Hearts", 2, true, "teacher-1")
}

type collector struct {
	mu     sync.Mutex
	events []shared.Event
}

func (c *collector) handle(e shared.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: quiet()})
	typed, all := &collector{}, &collector{}
	require.NoError(t, bus.Subscribe(shared.EventPointsAwarded, typed.handle))
	require.NoError(t, bus.SubscribeAll(all.handle))
	require.NoError(t, bus.Subscribe(shared.EventSkillCreated, func(shared.Event) error { return errors.New("ignored") }))

	require.NoError(t, bus.Publish(awarded()))
	require.NoError(t, bus.Publish(shared.NewSkillChangedEvent(shared.EventSkillCreated, scope, "s1", "Focus", true, "t")))

	assert.Equal(t, 1, typed.len())
	assert.Equal(t, 2, all.len())

	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
	assert.ErrorIs(t, bus.Subscribe(shared.EventPointsAwarded, nil), ErrNilHandler)

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(awarded()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(all.handle), ErrEventBusClosed)
}

func TestInMemoryEventBus_AsyncDrainsOnClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Logger: quiet()})
	c := &collector{}
	require.NoError(t, bus.SubscribeAll(c.handle))

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(awarded()))
	}
	require.NoError(t, bus.Close())
	assert.Equal(t, 3, c.len())
}

func TestMiddleware_RecoveryAndOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next shared.EventHandler) shared.EventHandler {
			return func(e shared.Event) error {
				order = append(order, name)
				return next(e)
			}
		}
	}
	h := Chain(func(shared.Event) error { panic("boom") }, tag("outer"), RecoveryMiddleware(quiet()), LoggingMiddleware(quiet()), tag("inner"))

	err := h(awarded())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"outer", "inner"}, order)
}

// hub is an in-process stand-in for a Redis channel.
type hub struct {
	mu   sync.Mutex
	subs []chan PubSubMessage
	fail error
}

func (h *hub) Publish(_ context.Context, channel, payload string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail != nil {
		return h.fail
	}
	for _, s := range h.subs {
		s <- PubSubMessage{Channel: channel, Payload: payload}
	}
	return nil
}

func (h *hub) Subscribe(ctx context.Context, _ string) (<-chan PubSubMessage, error) {
	ch := make(chan PubSubMessage, 16)
	h.mu.Lock()
	h.subs = append(h.subs, ch)
	h.mu.Unlock()
	return ch, nil
}

func TestRedisEventBus_FansOutToOtherInstances(t *testing.T) {
	h := &hub{}
	a, err := NewRedisEventBus(RedisEventBusConfig{Client: h, InstanceID: "a", Logger: quiet()})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisEventBus(RedisEventBusConfig{Client: h, InstanceID: "b", Logger: quiet()})
	require.NoError(t, err)
	defer b.Close()

	local, remote := &collector{}, &collector{}
	require.NoError(t, a.SubscribeAll(local.handle))
	require.NoError(t, b.Subscribe(shared.EventPointsAwarded, remote.handle))

	require.NoError(t, a.Publish(awarded()))

	assert.Eventually(t, func() bool { return remote.len() == 1 }, time.Second, 5*time.Millisecond)
	// The publisher's own echo is skipped; local delivery happens once.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, local.len())

	remote.mu.Lock()
	got := remote.events[0]
	remote.mu.Unlock()
	assert.Equal(t, shared.EventPointsAwarded, got.EventType())
	assert.Equal(t, "a1", got.AggregateID())
	assert.Equal(t, "c1", got.Payload()["classroom_id"])
}

func TestRedisEventBus_RedisDownStillDeliversLocally(t *testing.T) {
	h := &hub{fail: errors.New("connection refused")}
	breaker := circuitbreaker.New("redis", circuitbreaker.WithFailureThreshold(1), circuitbreaker.WithTimeout(time.Hour))
	bus, err := NewRedisEventBus(RedisEventBusConfig{Client: h, Breaker: breaker, Logger: quiet()})
	require.NoError(t, err)
	defer bus.Close()

	c := &collector{}
	require.NoError(t, bus.SubscribeAll(c.handle))

	err = bus.Publish(awarded())
	assert.Error(t, err)
	err = bus.Publish(awarded())
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, c.len())
}
