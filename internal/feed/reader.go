// Package feed はRSS/Atomフィードの取得とエントリ抽出を提供する。
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/secfeed/internal/model"
)

const (
	defaultTitle = "No title"
	defaultLink  = "#"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Reader はフィードのHTTPフェッチとパースを行い、記事候補を抽出する。
type Reader struct {
	ssrfGuard   SSRFValidator
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	maxItems    int
	now         func() time.Time
}

// NewReader はReaderの新しいインスタンスを生成する。
// maxItemsが0以下の場合はデフォルト値10を使用する。
func NewReader(
	ssrfGuard SSRFValidator,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	maxItems int,
) *Reader {
	if maxItems <= 0 {
		maxItems = 10
	}
	return &Reader{
		ssrfGuard:   ssrfGuard,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		maxItems:    maxItems,
		now:         time.Now,
	}
}

// Read はフィードを取得してパースし、先頭から最大maxItems件のエントリを返す。
// ネットワークエラー、200以外のステータス、パース失敗はエラーとして返す。
// 上限を超えたエントリは破棄され、次回サイクルに持ち越さない。
func (r *Reader) Read(ctx context.Context, feedURL string) ([]model.RawEntry, error) {
	start := time.Now()

	if err := r.ssrfGuard.ValidateURL(feedURL); err != nil {
		return nil, fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "SecFeed/1.0 RSS Aggregator")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	client := r.ssrfGuard.NewSafeClient(r.timeout, r.maxBodySize)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗: %w", err)
	}

	entries := convertItems(parsed.Items, r.maxItems, r.now())

	r.logger.Debug("フィードを取得しました",
		slog.String("feed_url", feedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("items_total", len(parsed.Items)),
		slog.Int("items_kept", len(entries)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return entries, nil
}

// convertItems はgofeedの記事を最大max件までmodel.RawEntryに変換する。
// 公開日時が無い場合は更新日時、それも無い場合はnowを使用する。
func convertItems(items []*gofeed.Item, max int, now time.Time) []model.RawEntry {
	entries := make([]model.RawEntry, 0, min(len(items), max))

	for _, item := range items {
		if len(entries) >= max {
			break
		}
		if item == nil {
			continue
		}

		entry := model.RawEntry{
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: item.Description,
			Content:     item.Content,
			PubDate:     now,
		}
		if entry.Title == "" {
			entry.Title = defaultTitle
		}
		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if entry.Link == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			entry.Link = item.GUID
		}
		if entry.Link == "" {
			entry.Link = defaultLink
		}

		if item.PublishedParsed != nil {
			entry.PubDate = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			entry.PubDate = *item.UpdatedParsed
		}

		if item.Author != nil {
			entry.Author = item.Author.Name
		}
		if entry.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			entry.Author = item.Authors[0].Name
		}

		entry.Image = FindImage(item.Description, item.Content)
		if entry.Image == "" {
			entry.Image = itemImage(item)
		}

		entries = append(entries, entry)
	}

	return entries
}

// itemImage はgofeedが解析した画像要素または画像エンクロージャのURLを返す。
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}
