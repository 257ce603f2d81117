//go:build postgres_integration

package store

import (
    "errors"
    "os"
    "testing"
)

func TestPostgresLinkageRoundTrip(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgresLinkage(dsn)
    if err != nil { t.Fatalf("NewPostgresLinkage: %v", err) }
    defer p.Close()
    if err := p.Ping(t.Context()); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.Migrate(t.Context()); err != nil { t.Fatalf("Migrate: %v", err) }

    if _, err := p.Get(t.Context(), "it-missing"); !errors.Is(err, ErrNoLinkage) {
        t.Fatalf("want ErrNoLinkage, got %v", err)
    }
    if err := p.Put(t.Context(), "it-1", "100"); err != nil { t.Fatalf("Put: %v", err) }
    if err := p.Put(t.Context(), "it-1", "101"); err != nil { t.Fatalf("Put overwrite: %v", err) }
    got, err := p.Get(t.Context(), "it-1")
    if err != nil || got != "101" { t.Fatalf("Get = %q, %v", got, err) }
}
