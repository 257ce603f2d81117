// Package events fans out order processing outcomes to live operator feeds.
package events

import (
	"sync"
	"time"
)

// Topic carries every order lifecycle event.
const Topic = "orders"

// Event types.
const (
	OrderEnqueued       = "order.enqueued"
	OrderDispatched     = "order.dispatched"
	OrderRetryScheduled = "order.retry_scheduled"
	OrderDeadLettered   = "order.dead_lettered"
	OrderRequeued       = "order.requeued"
	OrderDropped        = "order.dropped"
)

type Event struct {
	Type    string         `json:"type"`
	OrderID string         `json:"orderId,omitempty"`
	At      time.Time      `json:"at"`
	Data    map[string]any `json:"data,omitempty"`
}

func NewOrderEvent(typ, orderID string, data map[string]any) Event {
	return Event{Type: typ, OrderID: orderID, At: time.Now().UTC(), Data: data}
}

// Publisher is the write side used by the queue and the worker.
type Publisher interface {
	Publish(topic string, evt Event)
}

// Broker is a Publisher that also hands out subscriptions.
type Broker interface {
	Publisher
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
}

// Memory is an in-process Broker. Slow subscribers lose events instead of blocking publishers.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(topic string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[topic] == nil { b.subs[topic] = map[chan Event]struct{}{} }
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok { return }
	delete(m, ch)
	if len(m) == 0 { delete(b.subs, topic) }
	close(ch)
}

func (b *Memory) Publish(topic string, evt Event) {
	b.mu.Lock()
	m := b.subs[topic]
	for ch := range m {
		select { case ch <- evt: default: }
	}
	b.mu.Unlock()
}
