package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/secfeed/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusConflict, model.NewCycleRunningError())

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	if body.Code != model.ErrCodeCycleRunning {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeCycleRunning)
	}
	if body.Error != "Refresh already in progress" {
		t.Errorf("error = %q, want %q", body.Error, "Refresh already in progress")
	}
}

// TestWriteErrorResponse_DifferentStatusCodes は異なるステータスコードで正しく動作することを検証する。
func TestWriteErrorResponse_DifferentStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		apiErr     *model.APIError
	}{
		{"403 Forbidden", http.StatusForbidden, model.NewForbiddenError("203.0.113.5")},
		{"409 Conflict", http.StatusConflict, model.NewCycleRunningError()},
		{"500 Cache Clear", http.StatusInternalServerError, model.NewCacheClearError("permission denied")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteErrorResponse(w, tt.statusCode, tt.apiErr)

			if w.Result().StatusCode != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.statusCode)
			}

			var body ErrorResponseBody
			json.NewDecoder(w.Result().Body).Decode(&body)

			if body.Code != tt.apiErr.Code {
				t.Errorf("code = %q, want %q", body.Code, tt.apiErr.Code)
			}
			if body.Error != tt.apiErr.Message {
				t.Errorf("error = %q, want %q", body.Error, tt.apiErr.Message)
			}
		})
	}
}

// TestInternalServerError_ReturnsGenericMessage は内部エラーが一般的なメッセージを返すことを検証する。
func TestInternalServerError_ReturnsGenericMessage(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	json.NewDecoder(w.Result().Body).Decode(&body)

	if body.Code != model.ErrCodeInternalError {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternalError)
	}
	if body.Error == "" {
		t.Error("error message should not be empty")
	}
}

// TestErrorResponseBody_FieldNames はJSONのフィールド名がerrorとcodeであることを検証する。
func TestErrorResponseBody_FieldNames(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError("10.0.0.1"))

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	for _, field := range []string{"error", "code"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("expected field %q in response", field)
		}
	}
	if len(raw) != 2 {
		t.Errorf("unexpected fields in response: %v", raw)
	}
}
