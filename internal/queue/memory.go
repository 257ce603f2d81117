package queue

import (
	"bytes"
	"context"
	"sync"
)

// Memory is an in-process Store used when no REDIS_URL is set and in tests.
type Memory struct {
	mu    sync.Mutex
	lists map[string][][]byte
	keys  map[string]string
}

func NewMemory() *Memory {
	return &Memory{lists: map[string][][]byte{}, keys: map[string]string{}}
}

func (m *Memory) PushBack(ctx context.Context, list string, item []byte) error {
	m.mu.Lock(); defer m.mu.Unlock()
	m.lists[list] = append(m.lists[list], append([]byte(nil), item...))
	return nil
}

func (m *Memory) PopFront(ctx context.Context, list string) ([]byte, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	items := m.lists[list]
	if len(items) == 0 { return nil, ErrEmpty }
	head := items[0]
	m.lists[list] = items[1:]
	return head, nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	v, ok := m.keys[key]
	if !ok { return "", ErrNotFound }
	return v, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	m.keys[key] = value
	return nil
}

func (m *Memory) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	for _, k := range keys { delete(m.keys, k) }
	return nil
}

func (m *Memory) Length(ctx context.Context, list string) (int64, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	return int64(len(m.lists[list])), nil
}

func (m *Memory) Range(ctx context.Context, list string, start, stop int64) ([][]byte, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	items := m.lists[list]
	n := int64(len(items))
	if start < 0 { start += n }
	if stop < 0 { stop += n }
	if start < 0 { start = 0 }
	if stop >= n { stop = n - 1 }
	out := [][]byte{}
	for i := start; i <= stop; i++ {
		out = append(out, append([]byte(nil), items[i]...))
	}
	return out, nil
}

func (m *Memory) Remove(ctx context.Context, list string, item []byte) (int64, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	items := m.lists[list]
	for i, it := range items {
		if bytes.Equal(it, item) {
			m.lists[list] = append(items[:i:i], items[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
