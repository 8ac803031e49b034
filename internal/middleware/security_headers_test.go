package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name        string
		path        string
		wantNoStore bool
	}{
		{name: "APIレスポンスはキャッシュさせない", path: "/api/feeds", wantNoStore: true},
		{name: "画像はハンドラー側のキャッシュ設定に任せる", path: "/images/abc.jpg", wantNoStore: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			h := w.Header()
			if h.Get("X-Content-Type-Options") != "nosniff" {
				t.Error("X-Content-Type-Options should be nosniff")
			}
			if h.Get("Content-Security-Policy") != apiContentSecurityPolicy {
				t.Errorf("Content-Security-Policy = %q", h.Get("Content-Security-Policy"))
			}
			if h.Get("Referrer-Policy") != "no-referrer" {
				t.Errorf("Referrer-Policy = %q", h.Get("Referrer-Policy"))
			}
			if got := h.Get("Cache-Control") == "no-store"; got != tt.wantNoStore {
				t.Errorf("Cache-Control = %q, wantNoStore %v", h.Get("Cache-Control"), tt.wantNoStore)
			}
		})
	}
}
