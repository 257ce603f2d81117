package events

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewMemory()
	ch := b.Subscribe(Topic)

	evt := NewOrderEvent(OrderDispatched, "A1", map[string]any{"x": 1})
	b.Publish(Topic, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type || got.OrderID != "A1" { t.Fatalf("got %+v, want %+v", got, evt) }
		if got.Data["x"].(int) != 1 { t.Fatalf("bad payload: %+v", got.Data) }
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(Topic, ch)
	if _, ok := <-ch; ok { t.Fatal("channel should be closed after unsubscribe") }
	// second unsubscribe is a no-op
	b.Unsubscribe(Topic, ch)
	// publishing without subscribers must not block
	b.Publish(Topic, evt)
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	b := NewRedisBroker(rdb)
	ch := b.Subscribe(Topic)
	b.Publish(Topic, NewOrderEvent(OrderDeadLettered, "A2", nil))

	select {
	case got := <-ch:
		if got.Type != OrderDeadLettered || got.OrderID != "A2" { t.Fatalf("unexpected event %+v", got) }
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}

	b.Unsubscribe(Topic, ch)
	select {
	case _, ok := <-ch:
		if ok { t.Fatal("expected closed channel") }
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
