package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/secfeed/internal/model"
)

func TestAccessGate_IsAllowed(t *testing.T) {
	gate, err := NewAccessGate([]string{"localhost", "192.168.1.20", "10.10.0.0/16", "2001:db8::/32"})
	if err != nil {
		t.Fatalf("NewAccessGate() returned error: %v", err)
	}

	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"127.0.0.53:8080", true},
		{"[::1]:3000", true},
		{"::ffff:127.0.0.1", true},
		{"192.168.1.20:5555", true},
		{"::ffff:192.168.1.20", true},
		{"192.168.1.21", false},
		{"10.10.3.4", true},
		{"10.11.0.1", false},
		{"[2001:db8::1]:443", true},
		{"2001:db9::1", false},
		{"not-an-ip", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := gate.IsAllowed(tt.addr); got != tt.want {
			t.Errorf("IsAllowed(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestAccessGate_DefaultLoopbackOnly(t *testing.T) {
	gate, err := NewAccessGate([]string{"127.0.0.1", "::1"})
	if err != nil {
		t.Fatalf("NewAccessGate() returned error: %v", err)
	}
	if !gate.IsAllowed("127.0.0.1:1234") || !gate.IsAllowed("[::1]:1234") {
		t.Error("loopback should be allowed")
	}
	if gate.IsAllowed("203.0.113.7:1234") {
		t.Error("external address should be denied")
	}
}

func TestNewAccessGate_InvalidEntries(t *testing.T) {
	for _, entries := range [][]string{{"10.0.0.0/33"}, {"example.com"}, {"300.1.1.1"}} {
		if _, err := NewAccessGate(entries); err == nil {
			t.Errorf("NewAccessGate(%v) should return error", entries)
		}
	}
}

func TestAccessGate_Middleware_Returns403(t *testing.T) {
	gate, _ := NewAccessGate([]string{"127.0.0.1"})
	called := false
	handler := gate.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
	req.RemoteAddr = "203.0.113.7:4444"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if called {
		t.Error("handler should not be called for denied clients")
	}
	if w.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Result().StatusCode)
	}
	var body ErrorResponseBody
	json.NewDecoder(w.Result().Body).Decode(&body)
	if body.Code != model.ErrCodeForbidden || body.Error == "" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAccessGate_Middleware_PassesAllowed(t *testing.T) {
	gate, _ := NewAccessGate([]string{"127.0.0.1"})
	handler := gate.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
	req.RemoteAddr = "127.0.0.1:4444"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Result().StatusCode)
	}
}

func TestClientIP_IgnoresForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:80"
	req.Header.Set("X-Forwarded-For", "127.0.0.1")

	if got := ClientIP(req); got != "198.51.100.1" {
		t.Errorf("ClientIP() = %q, want 198.51.100.1", got)
	}
}
