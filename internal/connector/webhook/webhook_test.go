package webhook

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func post(target, body string, header ...string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return req
}

func TestVerify_Open(t *testing.T) {
	var a Authenticator
	if a.Enabled() {
		t.Error("Enabled() should be false")
	}
	if !a.Verify(post("/webhook/greenapi", ""), nil) {
		t.Error("expected open access without credentials")
	}
}

func TestVerify_Token(t *testing.T) {
	a := Authenticator{BearerToken: "secret123"}
	body := []byte(`{"typeWebhook":"incomingMessageReceived"}`)

	cases := []struct {
		name string
		req  *http.Request
		want bool
	}{
		{"missing", post("/webhook/greenapi", ""), false},
		{"wrong bearer", post("/webhook/greenapi", "", "Authorization", "Bearer wrong"), false},
		{"bearer", post("/webhook/greenapi", "", "Authorization", "Bearer secret123"), true},
		{"lowercase scheme", post("/webhook/greenapi", "", "Authorization", "bearer secret123"), true},
		{"bare header", post("/webhook/greenapi", "", "Authorization", "secret123"), true},
		{"query", post("/webhook/greenapi?token=secret123", ""), true},
		{"wrong query", post("/webhook/greenapi?token=nope", ""), false},
		{"empty bearer", post("/webhook/greenapi", "", "Authorization", "Bearer "), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.Verify(tc.req, body); got != tc.want {
				t.Errorf("Verify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVerify_Signature(t *testing.T) {
	a := Authenticator{Secret: "whsec_test", BearerToken: "ignored"}
	body := []byte(`{"content":"hello"}`)

	if !a.Verify(post("/", "", "X-Hub-Signature-256", Sign(body, "whsec_test")), body) {
		t.Error("valid signature rejected")
	}
	if a.Verify(post("/", "", "X-Hub-Signature-256", Sign(body, "other")), body) {
		t.Error("wrong-secret signature accepted")
	}
	if !a.Verify(post("/", "", "X-Signature-256", Sign(body, "whsec_test")), body) {
		t.Error("alternate header rejected")
	}
	if a.Verify(post("/", "", "X-Signature-256", "sha256=nothex"), body) {
		t.Error("malformed signature accepted")
	}
	if a.Verify(post("/", "", "Authorization", "Bearer ignored"), body) {
		t.Error("token must not bypass a configured secret")
	}
}

func TestReadAndVerify(t *testing.T) {
	a := Authenticator{BearerToken: "tok"}

	if _, err := a.ReadAndVerify(post("/", "payload")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	body, err := a.ReadAndVerify(post("/", "payload", "Authorization", "Bearer tok"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("body = %q", body)
	}
}
