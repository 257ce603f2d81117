package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // OrdersReceived counts webhook orders by result (queued, rejected)
    OrdersReceived = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "crmsync_orders_received_total", Help: "Orders received on the webhook by result."},
        []string{"result"},
    )
    // Dispatches counts CRM dispatch outcomes by stage
    Dispatches = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "crmsync_dispatch_total", Help: "CRM dispatches by order stage and outcome."},
        []string{"stage", "outcome"},
    )
    // DispatchLatency tracks CRM dispatch latencies in milliseconds
    DispatchLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "crmsync_dispatch_latency_ms", Help: "CRM dispatch latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000}},
        []string{"stage"},
    )
    RetriesScheduled = prometheus.NewCounter(prometheus.CounterOpts{Name: "crmsync_retries_scheduled_total", Help: "Failed dispatches rescheduled for retry."})
    DeadLetters      = prometheus.NewCounter(prometheus.CounterOpts{Name: "crmsync_dead_letters_total", Help: "Entries moved to the dead-letter list."})
    Dropped          = prometheus.NewCounter(prometheus.CounterOpts{Name: "crmsync_dropped_total", Help: "Processing entries dropped for lack of retry state."})
    TickSkips        = prometheus.NewCounter(prometheus.CounterOpts{Name: "crmsync_worker_tick_skips_total", Help: "Worker ticks skipped because the previous tick was still running."})
    // QueueDepth is refreshed by the worker after every tick that did work
    QueueDepth = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "crmsync_queue_depth", Help: "Entries per queue list."},
        []string{"queue"},
    )
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(OrdersReceived)
        Registry.MustRegister(Dispatches)
        Registry.MustRegister(DispatchLatency)
        Registry.MustRegister(RetriesScheduled)
        Registry.MustRegister(DeadLetters)
        Registry.MustRegister(Dropped)
        Registry.MustRegister(TickSkips)
        Registry.MustRegister(QueueDepth)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once

// SetQueueDepth publishes the three list lengths.
func SetQueueDepth(pending, processing, deadLetter int64) {
    QueueDepth.WithLabelValues("pending").Set(float64(pending))
    QueueDepth.WithLabelValues("processing").Set(float64(processing))
    QueueDepth.WithLabelValues("dead_letter").Set(float64(deadLetter))
}
