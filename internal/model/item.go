package model

import "time"

// RawEntry はFeed Readerがフィードから抽出した記事候補。
// DescriptionとContentはフィード内の生HTMLのまま保持する。
type RawEntry struct {
	Title       string
	Link        string
	Description string
	Content     string
	PubDate     time.Time
	Image       string
	Author      string
}

// FeedItem はダッシュボードに表示する1記事。
// IDは同一サイクル内でのみ一意であり、サイクルをまたいだ同一性は保証しない。
type FeedItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description"`
	FullText    string    `json:"fullText"`
	PubDate     time.Time `json:"pubDate"`
	Source      string    `json:"source"`
	SourceIcon  string    `json:"sourceIcon"`
	Image       *string   `json:"image"`
	Author      *string   `json:"author"`
}

// StringPtr は空文字列をnilに変換してポインタを返す。
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
