// Package extract は記事ページから本文・著者・代表画像を抽出する。
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// MaxFullTextLength は本文テキストの最大文字数。
const MaxFullTextLength = 2000

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Result は記事抽出の結果。空文字列は値なしを表す。
type Result struct {
	FullText string
	Image    string
	Author   string
}

// Extractor は記事ページを取得して本文を抽出する。
type Extractor struct {
	ssrfGuard   SSRFValidator
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewExtractor はExtractorの新しいインスタンスを生成する。
func NewExtractor(ssrfGuard SSRFValidator, logger *slog.Logger, timeout time.Duration, maxBodySize int64) *Extractor {
	return &Extractor{
		ssrfGuard:   ssrfGuard,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Extract は記事URLから本文・画像・著者を抽出する。
// 取得や解析に失敗した場合はエラーを返さず、空のResultを返す。
func (e *Extractor) Extract(ctx context.Context, articleURL string) Result {
	page, err := e.fetch(ctx, articleURL)
	if err != nil {
		e.logger.Debug("記事の取得に失敗しました",
			slog.String("url", articleURL),
			slog.String("error", err.Error()),
		)
		return Result{}
	}

	u, _ := url.Parse(articleURL)
	return extractFromHTML(page, u)
}

func (e *Extractor) fetch(ctx context.Context, articleURL string) ([]byte, error) {
	if err := e.ssrfGuard.ValidateURL(articleURL); err != nil {
		return nil, fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "SecFeed/1.0 RSS Aggregator")
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	// 本文は上限で切り詰めて解析するため、クライアント側では打ち切らない
	client := e.ssrfGuard.NewSafeClient(e.timeout, 0)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	// Content-Typeとmetaタグから文字コードを判定してUTF-8に変換する
	reader, err := charset.NewReader(io.LimitReader(resp.Body, e.maxBodySize), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("文字コード判定に失敗: %w", err)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	return body, nil
}

// extractFromHTML はHTMLからResultを組み立てる。
// readabilityの結果を優先し、不足分をmetaタグで補う。
func extractFromHTML(page []byte, pageURL *url.URL) Result {
	var res Result
	var excerpt string

	article, err := readability.FromReader(bytes.NewReader(page), pageURL)
	if err == nil {
		var htmlBuf strings.Builder
		if err := article.RenderHTML(&htmlBuf); err == nil {
			res.FullText = Normalize(htmlBuf.String())
		}
		excerpt = article.Excerpt()
		res.Image = strings.TrimSpace(article.ImageURL())
		res.Author = strings.TrimSpace(article.Byline())
	}

	if res.FullText == "" {
		res.FullText = Normalize(excerpt)
	}
	res.FullText = Truncate(res.FullText, MaxFullTextLength)

	if res.Image != "" && res.Author != "" {
		return res
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return res
	}
	if res.Image == "" {
		res.Image = firstMeta(doc, `meta[property="og:image"]`, `meta[name="twitter:image"]`, `meta[property="twitter:image"]`)
	}
	if res.Author == "" {
		res.Author = firstMeta(doc, `meta[name="author"]`, `meta[property="article:author"]`)
	}
	return res
}

// firstMeta はセレクタを順に評価し、最初に見つかった空でないcontent属性を返す。
func firstMeta(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
