// Package api implements the HTTP surface of the order sync service.
package api

import (
    "context"
    "errors"
    "log/slog"
    "net/http"
    "strings"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "crmsync/internal/auth"
    "crmsync/internal/events"
    "crmsync/internal/metrics"
    "crmsync/internal/queue"
    "crmsync/internal/store"
)

type Server struct {
    Queue   *queue.Queue
    History store.History
    Auth    *auth.Verifier
    Broker  events.Broker
    // WebhookSecret enables X-Signature checks on /webhook when set.
    WebhookSecret string
    // Ready is consulted by /readyz; nil means always ready.
    Ready func(ctx context.Context) error
    // Settings is the redacted configuration shown on /v1/debug.
    Settings any
    Log      *slog.Logger
}

func NewServer(q *queue.Queue, h store.History, v *auth.Verifier, b events.Broker, log *slog.Logger) *Server {
    if log == nil { log = slog.Default() }
    return &Server{Queue: q, History: h, Auth: v, Broker: b, Log: log}
}

// Routes registers every endpoint on a new ServeMux.
func (s *Server) Routes() *http.ServeMux {
    mux := http.NewServeMux()

    // Intake
    mux.HandleFunc("/webhook", s.WebhookHandler)

    // Health
    mux.HandleFunc("/health", s.QueueHealthHandler)
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)

    // Dead letters
    mux.HandleFunc("/dlq", s.admin(s.DLQHandler))
    mux.HandleFunc("/dlq/retry", s.admin(s.DLQRetryHandler))

    // History
    mux.HandleFunc("/v1/history", s.admin(s.HistoryHandler))
    mux.HandleFunc("/v1/history/", s.admin(s.HistoryByIDHandler)) // includes /stats

    // Operator feed and introspection
    mux.HandleFunc("/v1/admin/events/ws", s.admin(s.EventsWSHandler))
    mux.HandleFunc("/v1/debug", s.admin(s.DebugJSON))
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    return mux
}

// admin wraps h with operator authentication. Browsers cannot set headers on
// WebSocket upgrades, so ?access_token= is accepted as well.
func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        authz := r.Header.Get("Authorization")
        if authz == "" {
            if tok := strings.TrimSpace(r.URL.Query().Get("access_token")); tok != "" { authz = "Bearer " + tok }
        }
        if _, err := s.Auth.Authorize(authz); err != nil {
            if errors.Is(err, auth.ErrForbidden) {
                writeProblem(w, http.StatusForbidden, "Forbidden", err.Error(), r.URL.Path)
                return
            }
            w.Header().Set("WWW-Authenticate", `Bearer realm="crmsync"`)
            writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
            return
        }
        h(w, r)
    }
}
