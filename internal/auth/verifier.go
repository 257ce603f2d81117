// Package auth authenticates operators on the admin routes.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("admin role required")
)

// Verifier checks admin bearer tokens.
// Modes: token (static ADMIN_TOKEN, constant time compare) and hmac (HS256 JWT with role=admin).
type Verifier struct {
	Mode       string
	AdminToken string
	HMACSecret []byte
	RoleClaim  string
	now        func() time.Time
}

type Principal struct {
	Subject string
	Role    string
}

func (p Principal) IsAdmin() bool { return p.Role == "admin" }

func NewVerifier(mode, adminToken, hmacSecret string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "token"
	}
	return &Verifier{Mode: mode, AdminToken: adminToken, HMACSecret: []byte(hmacSecret), RoleClaim: "role", now: time.Now}
}

// Open reports whether admin routes are unauthenticated (token mode without a token).
func (v *Verifier) Open() bool { return v == nil || (v.Mode == "token" && v.AdminToken == "") }

// FromHeader extracts the token of an "Authorization: Bearer" header.
func FromHeader(authz string) (string, error) {
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
		return "", ErrNoToken
	}
	tok := strings.TrimSpace(authz[7:])
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Authorize verifies the header value and requires the admin role.
func (v *Verifier) Authorize(authz string) (Principal, error) {
	if v.Open() {
		return Principal{Subject: "anonymous", Role: "admin"}, nil
	}
	tok, err := FromHeader(authz)
	if err != nil {
		return Principal{}, err
	}
	p, err := v.Verify(tok)
	if err != nil {
		return Principal{}, err
	}
	if !p.IsAdmin() {
		return p, ErrForbidden
	}
	return p, nil
}

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case "token":
		if subtle.ConstantTimeCompare([]byte(token), []byte(v.AdminToken)) != 1 {
			return Principal{}, ErrInvalidToken
		}
		return Principal{Subject: "admin-token", Role: "admin"}, nil
	case "hmac":
		return v.verifyHS256(token)
	}
	return Principal{}, errors.New("unsupported auth mode")
}

func (v *Verifier) verifyHS256(token string) (Principal, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, ErrInvalidToken
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &hdr); err != nil || hdr.Alg != "HS256" {
		return Principal{}, ErrInvalidToken
	}
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(segs[0] + "." + segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Principal{}, ErrInvalidToken
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, ErrInvalidToken
	}
	if exp, ok := claims["exp"].(float64); ok && v.now().Unix() >= int64(exp) {
		return Principal{}, errors.New("token expired")
	}
	role, _ := claims[v.RoleClaim].(string)
	sub, _ := claims["sub"].(string)
	return Principal{Subject: sub, Role: strings.ToLower(role)}, nil
}

// SignHS256 mints a token for operator tooling and tests.
func SignHS256(secret []byte, claims map[string]any) (string, error) {
	hdr := b64urlEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	in := hdr + "." + b64urlEncode(body)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(in))
	return in + "." + b64urlEncode(mac.Sum(nil)), nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
func b64urlEncode(b []byte) string          { return base64.RawURLEncoding.EncodeToString(b) }
