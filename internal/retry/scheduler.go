// Package retry owns per-order attempt counters, backoff and the dead-letter decision.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"crmsync/internal/queue"
)

// Policy holds the backoff constants.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter is the exclusive upper bound of the random delay added to every backoff.
	Jitter time.Duration
}

// DefaultPolicy matches the deployed defaults: 1s doubling up to 60s, 5 attempts.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 2, Jitter: time.Second}
}

// Decision is the outcome of recording one failure.
type Decision struct {
	Attempts   int
	NextAt     time.Time
	Delay      time.Duration
	DeadLetter bool
	// Corrupt is set when the stored counter was unreadable.
	Corrupt bool
}

// Scheduler keeps retry state in the queue store:
// an attempt counter and a not-before timestamp (epoch ms) per order id.
type Scheduler struct {
	store  queue.Store
	policy Policy
	now    func() time.Time
	jitter func(limit time.Duration) time.Duration
}

func NewScheduler(s queue.Store, p Policy) *Scheduler {
	return &Scheduler{store: s, policy: p, now: time.Now, jitter: uniformJitter}
}

// WithClock replaces the time source.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler { s.now = now; return s }

// WithJitter replaces the jitter source.
func (s *Scheduler) WithJitter(j func(limit time.Duration) time.Duration) *Scheduler { s.jitter = j; return s }

func (s *Scheduler) Policy() Policy { return s.policy }

func uniformJitter(limit time.Duration) time.Duration {
	if limit <= 0 { return 0 }
	return rand.N(limit)
}

// Backoff returns min(initial*multiplier^attempt, max) plus fresh jitter.
func (s *Scheduler) Backoff(attempt int) time.Duration {
	return s.BaseBackoff(attempt) + s.jitter(s.policy.Jitter)
}

// BaseBackoff is Backoff without jitter.
func (s *Scheduler) BaseBackoff(attempt int) time.Duration {
	if attempt < 0 { attempt = 0 }
	d := float64(s.policy.InitialBackoff) * math.Pow(s.policy.Multiplier, float64(attempt))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(s.policy.MaxBackoff) {
		return s.policy.MaxBackoff
	}
	return time.Duration(d)
}

// ShouldDeadLetter reports whether an order that has now failed attempts times is exhausted.
func (s *Scheduler) ShouldDeadLetter(attempts int) bool {
	return attempts >= s.policy.MaxRetries
}

// ErrCorruptState marks retry keys whose value cannot be parsed. It is a data
// problem, not a store failure: retrying the read cannot fix it.
var ErrCorruptState = errors.New("corrupt retry state")

// Attempts returns the stored attempt counter, zero when absent.
func (s *Scheduler) Attempts(ctx context.Context, orderID string) (int, error) {
	v, err := s.store.Get(ctx, queue.RetryCountKey(orderID))
	if errors.Is(err, queue.ErrNotFound) { return 0, nil }
	if err != nil { return 0, err }
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 { return 0, fmt.Errorf("retry counter for %s = %q: %w", orderID, v, ErrCorruptState) }
	return n, nil
}

// NextEligible returns the persisted not-before time. ok is false when no retry state exists.
func (s *Scheduler) NextEligible(ctx context.Context, orderID string) (at time.Time, ok bool, err error) {
	v, err := s.store.Get(ctx, queue.RetryAtKey(orderID))
	if errors.Is(err, queue.ErrNotFound) { return time.Time{}, false, nil }
	if err != nil { return time.Time{}, false, err }
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil { return time.Time{}, false, fmt.Errorf("retry timestamp for %s = %q: %w", orderID, v, ErrCorruptState) }
	return time.UnixMilli(ms), true, nil
}

// Due reports whether an order with retry state may be attempted now.
func (s *Scheduler) Due(at time.Time) bool { return !s.now().Before(at) }

// OnFailure records one failed attempt. When the new count reaches MaxRetries the
// decision is DeadLetter and nothing is persisted; the caller moves the entry and
// then calls Clear. A counter that cannot be parsed counts as exhausted.
// Otherwise now+Backoff(previous) is stored first and the counter second, so a
// failed second write leaves a future timestamp and the old count.
func (s *Scheduler) OnFailure(ctx context.Context, orderID string) (Decision, error) {
	prev, err := s.Attempts(ctx, orderID)
	if errors.Is(err, ErrCorruptState) {
		return Decision{Attempts: s.policy.MaxRetries, DeadLetter: true, Corrupt: true}, nil
	}
	if err != nil { return Decision{}, err }
	d := Decision{Attempts: prev + 1}
	if s.ShouldDeadLetter(d.Attempts) {
		d.DeadLetter = true
		return d, nil
	}
	d.Delay = s.Backoff(prev)
	d.NextAt = s.now().Add(d.Delay)
	if err := s.store.Set(ctx, queue.RetryAtKey(orderID), strconv.FormatInt(d.NextAt.UnixMilli(), 10)); err != nil { return d, err }
	if err := s.store.Set(ctx, queue.RetryCountKey(orderID), strconv.Itoa(d.Attempts)); err != nil { return d, err }
	return d, nil
}

// OnSuccess deletes all retry state for the order.
func (s *Scheduler) OnSuccess(ctx context.Context, orderID string) error { return s.Clear(ctx, orderID) }

// Clear deletes the attempt counter and the not-before timestamp.
func (s *Scheduler) Clear(ctx context.Context, orderID string) error {
	return s.store.Delete(ctx, queue.RetryCountKey(orderID), queue.RetryAtKey(orderID))
}
