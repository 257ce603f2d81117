package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"crmsync/internal/events"
	"crmsync/internal/model"
)

// Queue is the order-facing view of the Store used by intake and the admin routes.
type Queue struct {
	Store  Store
	Events events.Publisher
	Log    *slog.Logger
}

func New(s Store, pub events.Publisher, log *slog.Logger) *Queue {
	if log == nil { log = slog.Default() }
	return &Queue{Store: s, Events: pub, Log: log}
}

// Stats holds the current list lengths.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	DeadLetter int64 `json:"deadLetter"`
}

// Encode serialises an order into a queue entry.
func Encode(o model.OrderEvent) ([]byte, error) { return json.Marshal(o) }

// Decode parses a queue entry.
func Decode(raw []byte) (model.OrderEvent, error) {
	var o model.OrderEvent
	if err := json.Unmarshal(raw, &o); err != nil {
		return o, fmt.Errorf("decode queue entry: %w", err)
	}
	return o, nil
}

// Enqueue appends the order to the tail of the pending list.
func (q *Queue) Enqueue(ctx context.Context, o model.OrderEvent) error {
	raw, err := Encode(o)
	if err != nil { return err }
	if err := q.Store.PushBack(ctx, PendingList, raw); err != nil {
		return fmt.Errorf("enqueue %s: %w", o.ExternalOrderID, err)
	}
	q.Log.Info("order queued", "order_id", o.ExternalOrderID, "stage", o.OrderStatus.String())
	q.publish(events.OrderEnqueued, o.ExternalOrderID, nil)
	return nil
}

// Stats reads the three list lengths.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Pending, err = q.Store.Length(ctx, PendingList); err != nil { return st, err }
	if st.Processing, err = q.Store.Length(ctx, ProcessingList); err != nil { return st, err }
	if st.DeadLetter, err = q.Store.Length(ctx, DeadLetterList); err != nil { return st, err }
	return st, nil
}

// DeadLetters returns the dead-letter length and up to limit decoded entries from its head.
// Entries that fail to decode are skipped.
func (q *Queue) DeadLetters(ctx context.Context, limit int) (int64, []model.OrderEvent, error) {
	if limit <= 0 || limit > 1000 { limit = 100 }
	n, err := q.Store.Length(ctx, DeadLetterList)
	if err != nil { return 0, nil, err }
	raws, err := q.Store.Range(ctx, DeadLetterList, 0, int64(limit)-1)
	if err != nil { return 0, nil, err }
	out := make([]model.OrderEvent, 0, len(raws))
	for _, raw := range raws {
		o, err := Decode(raw)
		if err != nil { continue }
		out = append(out, o)
	}
	return n, out, nil
}

// Requeue moves the first dead-lettered entry for orderID back to the pending tail.
// Retry state is cleared before the entry is pushed so the worker sees a fresh order.
func (q *Queue) Requeue(ctx context.Context, orderID string) error {
	raws, err := q.Store.Range(ctx, DeadLetterList, 0, -1)
	if err != nil { return err }
	for _, raw := range raws {
		o, err := Decode(raw)
		if err != nil || o.ExternalOrderID != orderID { continue }
		removed, err := q.Store.Remove(ctx, DeadLetterList, raw)
		if err != nil { return err }
		if removed == 0 {
			// Someone else took it between Range and Remove.
			continue
		}
		if err := q.Store.Delete(ctx, RetryCountKey(orderID), RetryAtKey(orderID)); err != nil { return err }
		if err := q.Store.PushBack(ctx, PendingList, raw); err != nil {
			return fmt.Errorf("requeue %s: %w", orderID, err)
		}
		q.Log.Info("dead-lettered order requeued", "order_id", orderID)
		q.publish(events.OrderRequeued, orderID, nil)
		return nil
	}
	return fmt.Errorf("dead-letter entry %s: %w", orderID, ErrNotFound)
}

// IsNotFound reports whether err means the requested entry does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func (q *Queue) publish(typ, orderID string, data map[string]any) {
	if q.Events == nil { return }
	q.Events.Publish(events.Topic, events.NewOrderEvent(typ, orderID, data))
}
