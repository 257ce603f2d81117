package api

import (
    "net/http"
    "runtime"
    "time"

    "crmsync/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    info := map[string]any{
        "build":     buildinfo.Info(),
        "go":        runtime.Version(),
        "time":      time.Now().UTC().Format(time.RFC3339),
        "config":    s.Settings,
        "authOpen":  s.Auth.Open(),
        "signature": s.WebhookSecret != "",
    }
    writeJSON(w, http.StatusOK, info)
}
