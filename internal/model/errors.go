// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrCycleRunning は集約サイクルが既に実行中であることを示す。
var ErrCycleRunning = errors.New("aggregation cycle already running")

// APIError は統一エラーフォーマットを表す。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeCycleRunning  = "CYCLE_RUNNING"
	ErrCodeCacheClear    = "CACHE_CLEAR_FAILED"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// NewForbiddenError はアクセス許可リスト外からのリクエストに対するエラーを生成する。
func NewForbiddenError(addr string) *APIError {
	return &APIError{
		Code:    ErrCodeForbidden,
		Message: fmt.Sprintf("access denied for %s", addr),
	}
}

// NewCycleRunningError はリフレッシュ実行中のエラーを生成する。
func NewCycleRunningError() *APIError {
	return &APIError{
		Code:    ErrCodeCycleRunning,
		Message: "Refresh already in progress",
	}
}

// NewClearWhileRunningError はリフレッシュ実行中のキャッシュ削除要求に対するエラーを生成する。
func NewClearWhileRunningError() *APIError {
	return &APIError{
		Code:    ErrCodeCycleRunning,
		Message: "Cannot clear cache while refresh is in progress",
	}
}

// NewCacheClearError はキャッシュ削除失敗のエラーを生成する。
func NewCacheClearError(reason string) *APIError {
	return &APIError{
		Code:    ErrCodeCacheClear,
		Message: fmt.Sprintf("Failed to clear cache: %s", reason),
	}
}
