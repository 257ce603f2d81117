package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"crmsync/internal/queue"
)

func TestBackoffBounds(t *testing.T) {
	s := NewScheduler(queue.NewMemory(), DefaultPolicy())
	for n := 0; n <= 64; n++ {
		base := time.Duration(1000*(1<<min(n, 20))) * time.Millisecond
		if base > time.Minute { base = time.Minute }
		for i := 0; i < 50; i++ {
			got := s.Backoff(n)
			if got < base || got >= base+time.Second {
				t.Fatalf("Backoff(%d)=%v outside [%v,%v)", n, got, base, base+time.Second)
			}
		}
	}
}

func TestBaseBackoffSequence(t *testing.T) {
	s := NewScheduler(queue.NewMemory(), DefaultPolicy())
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second, time.Minute, time.Minute}
	for n, w := range want {
		if got := s.BaseBackoff(n); got != w { t.Fatalf("BaseBackoff(%d)=%v want %v", n, got, w) }
	}
	if s.BaseBackoff(-3) != time.Second { t.Fatalf("negative attempts should clamp to 0") }
	if s.BaseBackoff(5000) != time.Minute { t.Fatalf("huge attempts should clamp to max") }
}

func TestOnFailurePersistsState(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	st := queue.NewMemory()
	s := NewScheduler(st, DefaultPolicy()).WithClock(func() time.Time { return now }).WithJitter(func(time.Duration) time.Duration { return 250 * time.Millisecond })

	d, err := s.OnFailure(ctx, "A1")
	if err != nil || d.DeadLetter || d.Attempts != 1 { t.Fatalf("first failure: %+v %v", d, err) }
	if want := now.Add(1250 * time.Millisecond); !d.NextAt.Equal(want) { t.Fatalf("next at %v want %v", d.NextAt, want) }

	d, _ = s.OnFailure(ctx, "A1")
	if d.Attempts != 2 || d.Delay != 2250*time.Millisecond { t.Fatalf("second failure uses previous count: %+v", d) }

	at, ok, err := s.NextEligible(ctx, "A1")
	if err != nil || !ok || at.UnixMilli() != now.Add(2250*time.Millisecond).UnixMilli() { t.Fatalf("persisted next: %v %v %v", at, ok, err) }
	if n, _ := s.Attempts(ctx, "A1"); n != 2 { t.Fatalf("attempts %d", n) }
	if s.Due(at) { t.Fatalf("future timestamp must not be due") }
	if !s.Due(now) { t.Fatalf("current timestamp must be due") }
}

func TestDeadLetterAtLastAttempt(t *testing.T) {
	ctx := context.Background()
	st := queue.NewMemory()
	s := NewScheduler(st, DefaultPolicy())
	_ = st.Set(ctx, queue.RetryCountKey("A2"), "4")
	_ = st.Set(ctx, queue.RetryAtKey("A2"), "1")

	d, err := s.OnFailure(ctx, "A2")
	if err != nil || !d.DeadLetter || d.Attempts != 5 { t.Fatalf("want dead-letter at 5: %+v %v", d, err) }
	// counters are untouched until the caller clears them
	if n, _ := s.Attempts(ctx, "A2"); n != 4 { t.Fatalf("counter should not advance on dead-letter, got %d", n) }

	if err := s.OnSuccess(ctx, "A2"); err != nil { t.Fatalf("clear: %v", err) }
	if _, ok, _ := s.NextEligible(ctx, "A2"); ok { t.Fatalf("retry state should be gone") }
	if n, _ := s.Attempts(ctx, "A2"); n != 0 { t.Fatalf("attempts should read zero, got %d", n) }
}

func TestShouldDeadLetter(t *testing.T) {
	s := NewScheduler(queue.NewMemory(), Policy{MaxRetries: 3, InitialBackoff: time.Second, MaxBackoff: time.Second, Multiplier: 2})
	if s.ShouldDeadLetter(2) || !s.ShouldDeadLetter(3) || !s.ShouldDeadLetter(9) { t.Fatalf("threshold wrong") }
}

func TestCorruptCounterDeadLetters(t *testing.T) {
	ctx := context.Background()
	st := queue.NewMemory()
	s := NewScheduler(st, DefaultPolicy())
	_ = st.Set(ctx, queue.RetryCountKey("C1"), "garbage")
	if _, err := s.Attempts(ctx, "C1"); !errors.Is(err, ErrCorruptState) { t.Fatalf("Attempts: want ErrCorruptState, got %v", err) }

	d, err := s.OnFailure(ctx, "C1")
	if err != nil || !d.DeadLetter || !d.Corrupt || d.Attempts != 5 { t.Fatalf("corrupt counter: %+v %v", d, err) }

	_ = st.Set(ctx, queue.RetryCountKey("C2"), "-1")
	if d, _ := s.OnFailure(ctx, "C2"); !d.DeadLetter { t.Fatalf("negative counter must dead-letter: %+v", d) }

	_ = st.Set(ctx, queue.RetryAtKey("C3"), "soon")
	if _, _, err := s.NextEligible(ctx, "C3"); !errors.Is(err, ErrCorruptState) { t.Fatalf("NextEligible: want ErrCorruptState, got %v", err) }
}

// countSetFails rejects writes to the attempt counter.
type countSetFails struct {
	*queue.Memory
}

func (c countSetFails) Set(ctx context.Context, key, value string) error {
	if strings.HasPrefix(key, "orders:retry:") { return errors.New("write timeout") }
	return c.Memory.Set(ctx, key, value)
}

func TestOnFailureWritesTimestampBeforeCounter(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	mem := queue.NewMemory()
	_ = mem.Set(ctx, queue.RetryCountKey("A1"), "1")
	_ = mem.Set(ctx, queue.RetryAtKey("A1"), "1")
	s := NewScheduler(countSetFails{mem}, DefaultPolicy()).WithClock(func() time.Time { return now }).WithJitter(func(time.Duration) time.Duration { return 0 })

	if _, err := s.OnFailure(ctx, "A1"); err == nil { t.Fatalf("want counter write error") }
	at, ok, err := s.NextEligible(ctx, "A1")
	if err != nil || !ok || !at.After(now) { t.Fatalf("retry_at should already be in the future: %v %v %v", at, ok, err) }
	if n, _ := s.Attempts(ctx, "A1"); n != 1 { t.Fatalf("counter = %d, want unchanged 1", n) }
}
