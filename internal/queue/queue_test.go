package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"crmsync/internal/events"
	"crmsync/internal/model"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

// both implementations must agree on the Store contract
func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{"memory": NewMemory(), "redis": rs}
}

func TestStoreListSemantics(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.PopFront(ctx, PendingList); !errors.Is(err, ErrEmpty) {
				t.Fatalf("pop empty: want ErrEmpty, got %v", err)
			}
			for _, v := range []string{"a", "b", "c"} {
				if err := s.PushBack(ctx, PendingList, []byte(v)); err != nil { t.Fatalf("push: %v", err) }
			}
			if n, _ := s.Length(ctx, PendingList); n != 3 { t.Fatalf("length: %d", n) }
			got, _ := s.Range(ctx, PendingList, 0, -1)
			if len(got) != 3 || string(got[0]) != "a" || string(got[2]) != "c" { t.Fatalf("range: %q", got) }
			if removed, _ := s.Remove(ctx, PendingList, []byte("b")); removed != 1 { t.Fatalf("remove: %d", removed) }
			head, err := s.PopFront(ctx, PendingList)
			if err != nil || string(head) != "a" { t.Fatalf("pop: %q %v", head, err) }
			head, _ = s.PopFront(ctx, PendingList)
			if string(head) != "c" { t.Fatalf("fifo order broken: %q", head) }
		})
	}
}

func TestStoreKeySemantics(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, RetryCountKey("X")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("want ErrNotFound, got %v", err)
			}
			_ = s.Set(ctx, RetryCountKey("X"), "3")
			_ = s.Set(ctx, RetryAtKey("X"), "1700000000000")
			if v, _ := s.Get(ctx, RetryCountKey("X")); v != "3" { t.Fatalf("get: %q", v) }
			if err := s.Delete(ctx, RetryCountKey("X"), RetryAtKey("X")); err != nil { t.Fatalf("delete: %v", err) }
			if _, err := s.Get(ctx, RetryAtKey("X")); !errors.Is(err, ErrNotFound) { t.Fatalf("key survived delete") }
			if err := s.Ping(ctx); err != nil { t.Fatalf("ping: %v", err) }
		})
	}
}

func TestEnqueueAndStats(t *testing.T) {
	ctx := context.Background()
	b := events.NewMemory()
	ch := b.Subscribe(events.Topic)
	q := New(NewMemory(), b, nil)
	if err := q.Enqueue(ctx, model.OrderEvent{ExternalOrderID: "A1", OrderStatus: model.StageNew}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	st, err := q.Stats(ctx)
	if err != nil || st.Pending != 1 || st.Processing != 0 || st.DeadLetter != 0 {
		t.Fatalf("stats: %+v %v", st, err)
	}
	if evt := <-ch; evt.Type != events.OrderEnqueued || evt.OrderID != "A1" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestRequeueDeadLetter(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	q := New(s, nil, nil)
	other, _ := Encode(model.OrderEvent{ExternalOrderID: "B1"})
	a4, _ := Encode(model.OrderEvent{ExternalOrderID: "A4", OrderStatus: model.StageShipped})
	_ = s.PushBack(ctx, PendingList, []byte(`{"externalOrderId":"P0"}`))
	_ = s.PushBack(ctx, DeadLetterList, other)
	_ = s.PushBack(ctx, DeadLetterList, a4)
	_ = s.Set(ctx, RetryCountKey("A4"), "5")
	_ = s.Set(ctx, RetryAtKey("A4"), "1")

	if err := q.Requeue(ctx, "A4"); err != nil { t.Fatalf("requeue: %v", err) }

	pending, _ := s.Range(ctx, PendingList, 0, -1)
	if len(pending) != 2 || string(pending[1]) != string(a4) {
		t.Fatalf("A4 should be at the pending tail: %q", pending)
	}
	if _, err := s.Get(ctx, RetryCountKey("A4")); !errors.Is(err, ErrNotFound) { t.Fatalf("retry count not cleared") }
	if _, err := s.Get(ctx, RetryAtKey("A4")); !errors.Is(err, ErrNotFound) { t.Fatalf("retry_at not cleared") }
	n, items, _ := q.DeadLetters(ctx, 0)
	if n != 1 || len(items) != 1 || items[0].ExternalOrderID != "B1" {
		t.Fatalf("dead-letter should only hold B1: %d %+v", n, items)
	}

	if err := q.Requeue(ctx, "A4"); !IsNotFound(err) { t.Fatalf("second requeue: want not found, got %v", err) }
}

func TestDeadLettersSkipsUndecodable(t *testing.T) {
	ctx := context.Background()
	rs, _ := newRedisStore(t)
	q := New(rs, nil, nil)
	good, _ := Encode(model.OrderEvent{ExternalOrderID: "G1"})
	_ = rs.PushBack(ctx, DeadLetterList, []byte("not json"))
	_ = rs.PushBack(ctx, DeadLetterList, good)
	n, items, err := q.DeadLetters(ctx, 10)
	if err != nil || n != 2 || len(items) != 1 || items[0].ExternalOrderID != "G1" {
		t.Fatalf("dead letters: %d %+v %v", n, items, err)
	}
}
