// Package model はドメインモデルを定義する。
package model

import (
	"regexp"
	"strings"
	"time"
)

// Source は設定ファイルから読み込まれる購読対象フィードを表す。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Source struct {
	Name    string `json:"name"`
	FeedURL string `json:"url"`
	IconURL string `json:"icon"`
}

// SourceStatus はサイクルごとのソース単位の処理結果を表す。
// サイクルごとに丸ごと上書きされ、履歴は保持しない。
type SourceStatus struct {
	Success   bool      `json:"success"`
	ItemCount int       `json:"itemCount"`
	Error     *string   `json:"error"`
	LastFetch time.Time `json:"lastFetch"`
}

// ProcessResult はFeed Processorが1ソースを処理した結果。
type ProcessResult struct {
	Source    Source
	Success   bool
	ItemCount int
	Error     string
	Items     []FeedItem
	FetchedAt time.Time
}

// Status はProcessResultをSourceStatusに変換する。
func (r ProcessResult) Status() SourceStatus {
	st := SourceStatus{
		Success:   r.Success,
		ItemCount: r.ItemCount,
		LastFetch: r.FetchedAt,
	}
	if r.Error != "" {
		msg := r.Error
		st.Error = &msg
	}
	return st
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// SanitizeName はソース名を小文字英数字とハイフンのみの文字列に変換する。
// 記事IDとfaviconのキャッシュキーに使用する。
func SanitizeName(name string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(name), "-")
}
