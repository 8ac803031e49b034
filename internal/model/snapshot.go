package model

import "time"

// Snapshot はAPIとCLIに公開する集約結果の単位。
// 公開後は変更せず、サイクル終了時に丸ごと差し替える。
type Snapshot struct {
	LastUpdated    *time.Time              `json:"lastUpdated"`
	Items          []FeedItem              `json:"items"`
	FeedStatus     map[string]SourceStatus `json:"feedStatus"`
	FeedTimestamps map[string]time.Time    `json:"feedTimestamps"`
}

// EmptySnapshot は記事を持たない空のSnapshotを返す。
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		Items:          []FeedItem{},
		FeedStatus:     map[string]SourceStatus{},
		FeedTimestamps: map[string]time.Time{},
	}
}

// IsEmpty はSnapshotに記事が1件も無い場合にtrueを返す。
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Items) == 0
}

// Age はLastUpdatedからの経過時間を返す。未更新の場合は負の値を返す。
func (s *Snapshot) Age(now time.Time) time.Duration {
	if s == nil || s.LastUpdated == nil {
		return -1
	}
	return now.Sub(*s.LastUpdated)
}

// Stats はキャッシュ全体の統計情報。
type Stats struct {
	SourceCount int
	ItemCount   int
	AssetCount  int
	TotalBytes  int64
	LastUpdated *time.Time
}
