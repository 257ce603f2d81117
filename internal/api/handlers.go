package api

import (
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "strconv"
    "strings"

    "github.com/google/uuid"

    "crmsync/internal/mapping"
    "crmsync/internal/metrics"
    "crmsync/internal/model"
    "crmsync/internal/queue"
    "crmsync/internal/store"
    "crmsync/internal/webhooks"
)

const maxWebhookBody = 5 << 20

type rejectedOrder struct {
    ExternalOrderID string   `json:"externalOrderId"`
    Problems        []string `json:"problems"`
}

type webhookResponse struct {
    Success  bool            `json:"success"`
    Queued   int             `json:"queued"`
    Rejected []rejectedOrder `json:"rejected"`
    Message  string          `json:"message"`
    BatchID  string          `json:"batchId"`
}

// WebhookHandler handles POST /webhook: validate each order and queue the valid ones.
func (s *Server) WebhookHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Unreadable body", err.Error(), r.URL.Path)
        return
    }
    if len(body) > maxWebhookBody {
        writeProblem(w, http.StatusRequestEntityTooLarge, "Body too large", "", r.URL.Path)
        return
    }
    if s.WebhookSecret != "" && !webhooks.VerifyHMAC(s.WebhookSecret, body, r.Header.Get(webhooks.SignatureHeader)) {
        writeProblem(w, http.StatusUnauthorized, "Invalid signature", "", r.URL.Path)
        return
    }
    var req model.WebhookPayload
    if err := json.Unmarshal(body, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if len(req.Orders) == 0 {
        writeProblem(w, http.StatusBadRequest, "Invalid payload", "orders array is required", r.URL.Path)
        return
    }

    resp := webhookResponse{Success: true, Rejected: []rejectedOrder{}, BatchID: uuid.NewString()}
    for _, o := range req.Orders {
        if err := mapping.Validate(o); err != nil {
            var ve *mapping.ValidationError
            problems := []string{err.Error()}
            if errors.As(err, &ve) { problems = ve.Problems }
            resp.Rejected = append(resp.Rejected, rejectedOrder{ExternalOrderID: o.ExternalOrderID, Problems: problems})
            metrics.OrdersReceived.WithLabelValues("rejected").Inc()
            if o.ExternalOrderID != "" {
                s.record(r, o, model.HistoryFailed, store.HistoryDetail{Error: "rejected: " + strings.Join(problems, "; ")})
            }
            continue
        }
        if err := s.Queue.Enqueue(r.Context(), o); err != nil {
            s.Log.Error("enqueue failed", "order_id", o.ExternalOrderID, "batch_id", resp.BatchID, "queued", resp.Queued, "err", err)
            writeTypedProblem(w, problemQueueUnavailable, http.StatusServiceUnavailable, "Queue unavailable", err.Error(), r.URL.Path)
            return
        }
        metrics.OrdersReceived.WithLabelValues("queued").Inc()
        resp.Queued++
        s.record(r, o, model.HistoryPending, store.HistoryDetail{})
    }
    resp.Message = strconv.Itoa(resp.Queued) + " orders queued for processing"
    if len(resp.Rejected) > 0 {
        resp.Message += ", " + strconv.Itoa(len(resp.Rejected)) + " rejected"
        s.Log.Warn("webhook orders rejected", "batch_id", resp.BatchID, "rejected", len(resp.Rejected))
    }
    writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) record(r *http.Request, o model.OrderEvent, st model.HistoryStatus, d store.HistoryDetail) {
    if s.History == nil { return }
    if err := s.History.Record(r.Context(), o, st, d); err != nil {
        s.Log.Error("history write failed", "order_id", o.ExternalOrderID, "status", string(st), "err", err)
    }
}

// QueueHealthHandler handles GET /health with the queue lengths.
func (s *Server) QueueHealthHandler(w http.ResponseWriter, r *http.Request) {
    st, err := s.Queue.Stats(r.Context())
    if err != nil {
        writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "queues": st})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    if s.Ready != nil {
        if err := s.Ready(r.Context()); err != nil {
            writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
            return
        }
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// DLQHandler handles GET /dlq
func (s *Server) DLQHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    limit := 0
    if v := r.URL.Query().Get("limit"); v != "" { limit, _ = strconv.Atoi(v) }
    n, items, err := s.Queue.DeadLetters(r.Context(), limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List dead letters failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"count": n, "items": items})
}

// DLQRetryHandler handles POST /dlq/retry {"orderId": "..."}
func (s *Server) DLQRetryHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        OrderID string `json:"orderId"`
    }
    if err := decodeJSON(r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if strings.TrimSpace(req.OrderID) == "" {
        writeProblem(w, http.StatusBadRequest, "Invalid request", "orderId is required", r.URL.Path)
        return
    }
    if err := s.Queue.Requeue(r.Context(), req.OrderID); err != nil {
        if queue.IsNotFound(err) {
            writeTypedProblem(w, problemNotInDLQ, http.StatusNotFound, "Not found", "order "+req.OrderID+" is not in the dead-letter queue", r.URL.Path)
            return
        }
        writeProblem(w, http.StatusInternalServerError, "Requeue failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "order " + req.OrderID + " requeued"})
}

// HistoryHandler handles GET (page) and DELETE (clean) on /v1/history
func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        page, _ := strconv.Atoi(r.URL.Query().Get("page"))
        size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
        if page < 1 { page = 1 }
        if size <= 0 || size > 500 { size = 10 }
        items, err := s.History.List(r.Context(), page, size)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List history failed", err.Error(), r.URL.Path)
            return
        }
        total, err := s.History.Count(r.Context())
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Count history failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total, "page": page, "pageSize": size})
    case http.MethodDelete:
        res, err := s.History.Clean(r.Context())
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Clean history failed", err.Error(), r.URL.Path)
            return
        }
        s.Log.Info("history cleaned", "deleted", res.Deleted, "errors", len(res.Errors))
        writeJSON(w, http.StatusOK, res)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// HistoryByIDHandler handles GET /v1/history/{id} and GET /v1/history/stats
func (s *Server) HistoryByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/history/"), "/")
    if id == "" {
        s.HistoryHandler(w, r)
        return
    }
    if id == "stats" {
        st, err := s.History.Stats(r.Context())
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "History stats failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, st)
        return
    }
    m, err := s.History.Get(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Not found", "no history for order "+id, r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get history failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, m)
}
