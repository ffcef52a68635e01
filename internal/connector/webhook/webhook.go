// Package webhook authenticates inbound webhook calls from messaging gateways.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxBodySize caps webhook payloads.
const MaxBodySize = 1 << 20

const signaturePrefix = "sha256="

// ErrUnauthorized is returned when a request fails authentication.
var ErrUnauthorized = errors.New("webhook: unauthorized")

// Authenticator checks webhook requests. Secret takes precedence over
// BearerToken; with neither set every request is accepted.
type Authenticator struct {
	// Secret keys an HMAC-SHA256 of the raw body, sent as
	// "X-Hub-Signature-256: sha256=<hex>" (or X-Signature-256).
	Secret string `json:"secret,omitempty" yaml:"secret,omitempty"`
	// BearerToken is Green-API's webhookUrlToken. It arrives in the
	// Authorization header, or as ?token= when the gateway cannot set headers.
	BearerToken string `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`
}

// Enabled reports whether any credential is configured.
func (a Authenticator) Enabled() bool {
	return a.Secret != "" || a.BearerToken != ""
}

// ReadAndVerify reads the body (up to MaxBodySize) and authenticates the request.
func (a Authenticator) ReadAndVerify(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("webhook: read body: %w", err)
	}
	if !a.Verify(r, body) {
		return nil, ErrUnauthorized
	}
	return body, nil
}

// Verify authenticates r against its already-read body.
func (a Authenticator) Verify(r *http.Request, body []byte) bool {
	switch {
	case a.Secret != "":
		return signatureMatches(a.Secret, body, signatureHeader(r))
	case a.BearerToken != "":
		return tokenMatches(a.BearerToken, presentedToken(r))
	default:
		return true
	}
}

func signatureHeader(r *http.Request) string {
	for _, name := range []string{"X-Hub-Signature-256", "X-Signature-256"} {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// presentedToken accepts "Bearer <t>", a bare header token, or ?token=<t>.
func presentedToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if scheme, rest, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(rest)
		}
		return h
	}
	return r.URL.Query().Get("token")
}

func tokenMatches(want, got string) bool {
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func signatureMatches(secret string, body []byte, header string) bool {
	hexSig, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	return hmac.Equal(mac(secret, body), got)
}

func mac(secret string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(body []byte, secret string) string {
	return signaturePrefix + hex.EncodeToString(mac(secret, body))
}
