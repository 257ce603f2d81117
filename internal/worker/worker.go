// Package worker drains the order queues into the CRM on a fixed tick.
package worker

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "sync"
    "sync/atomic"
    "time"

    "crmsync/internal/dispatch"
    "crmsync/internal/events"
    "crmsync/internal/metrics"
    "crmsync/internal/model"
    "crmsync/internal/queue"
    "crmsync/internal/retry"
    "crmsync/internal/store"
)

// Dispatcher performs the CRM side of one order event.
type Dispatcher interface {
    Dispatch(ctx context.Context, o model.OrderEvent) (dispatch.Result, error)
}

// Outcome is what one tick did.
type Outcome int

const (
    Idle Outcome = iota
    Skipped
    Deferred
    Dropped
    Succeeded
    RetryScheduled
    DeadLettered
)

func (o Outcome) String() string {
    switch o {
    case Idle: return "idle"
    case Skipped: return "skipped"
    case Deferred: return "deferred"
    case Dropped: return "dropped"
    case Succeeded: return "succeeded"
    case RetryScheduled: return "retry_scheduled"
    case DeadLettered: return "dead_lettered"
    }
    return fmt.Sprintf("outcome(%d)", int(o))
}

type Worker struct {
    Store      queue.Store
    Retry      *retry.Scheduler
    Dispatcher Dispatcher
    // History and Events are optional.
    History  store.History
    Events   events.Publisher
    Log      *slog.Logger
    Interval time.Duration

    running  atomic.Bool
    started  atomic.Bool
    stop     chan struct{}
    done     chan struct{}
    stopOnce sync.Once
}

func NewWorker(s queue.Store, r *retry.Scheduler, d Dispatcher, interval time.Duration, log *slog.Logger) *Worker {
    if interval <= 0 { interval = 5 * time.Second }
    if log == nil { log = slog.Default() }
    return &Worker{Store: s, Retry: r, Dispatcher: d, Interval: interval, Log: log, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start runs the tick loop in the background until ctx ends or Stop is called.
func (w *Worker) Start(ctx context.Context) {
    if !w.started.CompareAndSwap(false, true) { return }
    go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
    defer close(w.done)
    ticker := time.NewTicker(w.Interval)
    defer ticker.Stop()
    w.Log.Info("worker started", "interval", w.Interval.String())
    for {
        select {
        case <-ctx.Done():
            return
        case <-w.stop:
            return
        case <-ticker.C:
            // ticks run on this goroutine; the guard in Tick covers callers outside the loop
            _, _ = w.Tick(ctx)
        }
    }
}

// Stop ends the loop and waits for the in-flight tick.
func (w *Worker) Stop() {
    w.stopOnce.Do(func() { close(w.stop) })
    if w.started.Load() { <-w.done }
}

// tickTimeout bounds all I/O of one tick.
func (w *Worker) tickTimeout() time.Duration {
    d := 4 * w.Interval
    if d < 30*time.Second { d = 30 * time.Second }
    return d
}

// Tick processes at most one entry. A tick that starts while another is running is skipped.
// Store errors abort the tick and are returned; dispatch errors never are.
func (w *Worker) Tick(ctx context.Context) (Outcome, error) {
    if !w.running.CompareAndSwap(false, true) {
        metrics.TickSkips.Inc()
        w.Log.Warn("tick skipped, previous tick still running")
        return Skipped, nil
    }
    defer w.running.Store(false)

    ctx, cancel := context.WithTimeout(ctx, w.tickTimeout())
    defer cancel()
    out, err := w.processOnce(ctx)
    if err != nil {
        w.Log.Error("tick aborted", "outcome", out.String(), "err", err)
    }
    if out != Idle { w.refreshGauges(ctx) }
    return out, err
}

func (w *Worker) processOnce(ctx context.Context) (Outcome, error) {
    raw, err := w.Store.PopFront(ctx, queue.PendingList)
    retrying := false
    if errors.Is(err, queue.ErrEmpty) {
        retrying = true
        raw, err = w.Store.PopFront(ctx, queue.ProcessingList)
        if errors.Is(err, queue.ErrEmpty) { return Idle, nil }
    }
    if err != nil { return Idle, fmt.Errorf("pop: %w", err) }

    o, err := queue.Decode(raw)
    if err != nil || o.ExternalOrderID == "" {
        // no order id to keep retry state on
        if perr := w.Store.PushBack(ctx, queue.DeadLetterList, raw); perr != nil {
            return DeadLettered, fmt.Errorf("dead-letter undecodable entry: %w", perr)
        }
        metrics.DeadLetters.Inc()
        w.Log.Error("undecodable queue entry dead-lettered", "err", err, "bytes", len(raw))
        w.publish(events.OrderDeadLettered, "", map[string]any{"reason": "undecodable"})
        return DeadLettered, nil
    }

    if retrying {
        at, ok, err := w.Retry.NextEligible(ctx, o.ExternalOrderID)
        if errors.Is(err, retry.ErrCorruptState) {
            // the next failure rewrites the timestamp
            w.Log.Warn("unreadable retry timestamp, treating entry as due", "order_id", o.ExternalOrderID, "err", err)
            at, ok, err = time.Time{}, true, nil
        }
        if err != nil {
            return Idle, w.putBack(ctx, queue.ProcessingList, raw, fmt.Errorf("read retry state %s: %w", o.ExternalOrderID, err))
        }
        if !ok {
            metrics.Dropped.Inc()
            w.Log.Error("processing entry without retry state dropped", "order_id", o.ExternalOrderID)
            w.publish(events.OrderDropped, o.ExternalOrderID, nil)
            return Dropped, nil
        }
        if !w.Retry.Due(at) {
            if err := w.Store.PushBack(ctx, queue.ProcessingList, raw); err != nil {
                return Deferred, fmt.Errorf("requeue %s: %w", o.ExternalOrderID, err)
            }
            return Deferred, nil
        }
    }
    from := queue.PendingList
    if retrying { from = queue.ProcessingList }
    return w.dispatch(ctx, o, raw, from)
}

func (w *Worker) dispatch(ctx context.Context, o model.OrderEvent, raw []byte, from string) (Outcome, error) {
    id := o.ExternalOrderID
    stage := o.OrderStatus.String()
    start := time.Now()
    res, derr := w.Dispatcher.Dispatch(ctx, o)
    metrics.DispatchLatency.WithLabelValues(stage).Observe(float64(time.Since(start).Milliseconds()))

    if derr == nil {
        metrics.Dispatches.WithLabelValues(stage, "success").Inc()
        if err := w.Retry.OnSuccess(ctx, id); err != nil {
            return Succeeded, fmt.Errorf("clear retry state %s: %w", id, err)
        }
        w.record(ctx, o, model.HistoryCompleted, store.HistoryDetail{CRMResponse: res.Response})
        w.Log.Info("order dispatched", "order_id", id, "stage", stage, "crm_id", res.CRMID)
        w.publish(events.OrderDispatched, id, map[string]any{"stage": stage, "crmId": res.CRMID})
        return Succeeded, nil
    }
    metrics.Dispatches.WithLabelValues(stage, "failure").Inc()

    dec, err := w.Retry.OnFailure(ctx, id)
    if err != nil {
        return Idle, w.putBack(ctx, from, raw, fmt.Errorf("record failure %s: %w", id, err))
    }
    if dec.DeadLetter {
        if err := w.Store.PushBack(ctx, queue.DeadLetterList, raw); err != nil {
            return Idle, w.putBack(ctx, from, raw, fmt.Errorf("dead-letter %s: %w", id, err))
        }
        if err := w.Retry.Clear(ctx, id); err != nil {
            return DeadLettered, fmt.Errorf("clear retry state %s: %w", id, err)
        }
        metrics.DeadLetters.Inc()
        w.record(ctx, o, model.HistoryFailed, store.HistoryDetail{Error: derr.Error(), RetryCount: dec.Attempts, CRMResponse: res.Response})
        data := map[string]any{"attempts": dec.Attempts, "error": derr.Error()}
        if dec.Corrupt {
            data["reason"] = "corrupt_retry_counter"
            w.Log.Error("order dead-lettered, retry counter unreadable", "order_id", id, "stage", stage, "err", derr)
        } else {
            w.Log.Error("order dead-lettered", "order_id", id, "stage", stage, "attempts", dec.Attempts, "err", derr)
        }
        w.publish(events.OrderDeadLettered, id, data)
        return DeadLettered, nil
    }

    if err := w.Store.PushBack(ctx, queue.ProcessingList, raw); err != nil {
        return Idle, w.putBack(ctx, from, raw, fmt.Errorf("schedule retry %s: %w", id, err))
    }
    metrics.RetriesScheduled.Inc()
    w.record(ctx, o, model.HistoryProcessing, store.HistoryDetail{Error: derr.Error(), RetryCount: dec.Attempts, CRMResponse: res.Response})
    w.Log.Warn("dispatch failed, retry scheduled", "order_id", id, "stage", stage, "attempts", dec.Attempts, "delay", dec.Delay.String(), "next_at", dec.NextAt.UTC().Format(time.RFC3339), "err", derr)
    w.publish(events.OrderRetryScheduled, id, map[string]any{"attempts": dec.Attempts, "nextAt": dec.NextAt.UnixMilli(), "error": derr.Error()})
    return RetryScheduled, nil
}

// putBack returns a popped entry to the tail of the list it came from after a store
// failure and wraps cause. If that also fails the entry is lost; the error says so.
func (w *Worker) putBack(ctx context.Context, list string, raw []byte, cause error) error {
    if err := w.Store.PushBack(ctx, list, raw); err != nil {
        return fmt.Errorf("%w (entry lost: %v)", cause, err)
    }
    return cause
}

func (w *Worker) record(ctx context.Context, o model.OrderEvent, s model.HistoryStatus, d store.HistoryDetail) {
    if w.History == nil { return }
    if err := w.History.Record(ctx, o, s, d); err != nil {
        w.Log.Error("history write failed", "order_id", o.ExternalOrderID, "status", string(s), "err", err)
    }
}

func (w *Worker) publish(typ, orderID string, data map[string]any) {
    if w.Events == nil { return }
    w.Events.Publish(events.Topic, events.NewOrderEvent(typ, orderID, data))
}

func (w *Worker) refreshGauges(ctx context.Context) {
    var n [3]int64
    for i, l := range []string{queue.PendingList, queue.ProcessingList, queue.DeadLetterList} {
        v, err := w.Store.Length(ctx, l)
        if err != nil {
            w.Log.Warn("queue depth refresh failed", "list", l, "err", err)
            return
        }
        n[i] = v
    }
    metrics.SetQueueDepth(n[0], n[1], n[2])
}
