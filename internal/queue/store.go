package queue

import (
	"context"
	"errors"
)

// Store is the durable list/key store shared by webhook intake and the worker.
// Each call is atomic on its own; callers never get a transaction across calls.
type Store interface {
	PushBack(ctx context.Context, list string, item []byte) error
	// PopFront returns ErrEmpty when the list has no items.
	PopFront(ctx context.Context, list string) ([]byte, error)
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Length(ctx context.Context, list string) (int64, error)
	// Range returns items between start and stop inclusive, Redis style (stop -1 is the end).
	Range(ctx context.Context, list string, start, stop int64) ([][]byte, error)
	// Remove deletes the first occurrence of item and reports how many were removed.
	Remove(ctx context.Context, list string, item []byte) (int64, error)
	Ping(ctx context.Context) error
}

var (
	ErrEmpty    = errors.New("queue empty")
	ErrNotFound = errors.New("not found")
)

// Key layout shared with the deployed site integration.
const (
	PendingList    = "orders:pending"
	ProcessingList = "orders:processing"
	DeadLetterList = "orders:dlq"
)

// RetryCountKey holds the attempt counter of an order.
func RetryCountKey(orderID string) string { return "orders:retry:" + orderID }

// RetryAtKey holds the epoch-ms timestamp before which the order must not be retried.
func RetryAtKey(orderID string) string { return "orders:retry_at:" + orderID }
