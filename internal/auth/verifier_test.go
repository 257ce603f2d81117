package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenMode(t *testing.T) {
	v := NewVerifier("token", "letmein", "")
	if _, err := v.Authorize("Bearer letmein"); err != nil { t.Fatalf("valid token rejected: %v", err) }
	if _, err := v.Authorize("Bearer nope"); !errors.Is(err, ErrInvalidToken) { t.Fatalf("want ErrInvalidToken, got %v", err) }
	if _, err := v.Authorize(""); !errors.Is(err, ErrNoToken) { t.Fatalf("want ErrNoToken, got %v", err) }
}

func TestOpenWithoutAdminToken(t *testing.T) {
	v := NewVerifier("", "", "")
	if !v.Open() { t.Fatalf("token mode without token should be open") }
	p, err := v.Authorize("")
	if err != nil || !p.IsAdmin() { t.Fatalf("open verifier = %+v, %v", p, err) }
}

func TestHMACMode(t *testing.T) {
	secret := []byte("k")
	v := NewVerifier("hmac", "", "k")
	now := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return now }

	admin, _ := SignHS256(secret, map[string]any{"sub": "ops", "role": "Admin", "exp": now.Add(time.Hour).Unix()})
	p, err := v.Authorize("Bearer " + admin)
	if err != nil || p.Subject != "ops" || !p.IsAdmin() { t.Fatalf("admin = %+v, %v", p, err) }

	viewer, _ := SignHS256(secret, map[string]any{"sub": "v", "role": "viewer"})
	if _, err := v.Authorize("Bearer " + viewer); !errors.Is(err, ErrForbidden) { t.Fatalf("want ErrForbidden, got %v", err) }

	expired, _ := SignHS256(secret, map[string]any{"role": "admin", "exp": now.Add(-time.Minute).Unix()})
	if _, err := v.Authorize("Bearer " + expired); err == nil { t.Fatalf("expired token accepted") }

	forged, _ := SignHS256([]byte("other"), map[string]any{"role": "admin"})
	if _, err := v.Authorize("Bearer " + forged); !errors.Is(err, ErrInvalidToken) { t.Fatalf("want ErrInvalidToken, got %v", err) }

	if _, err := v.Authorize("Bearer a.b"); !errors.Is(err, ErrInvalidToken) { t.Fatalf("malformed token accepted") }
}
