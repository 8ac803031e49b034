// Package imagecache は記事画像とソースfaviconのローカルキャッシュを提供する。
//
// キャッシュキーはURLから決定的に導出され、同じキーのファイルが存在する場合は
// ネットワークアクセスを行わない。TTLや無効化は持たず、明示的なキャッシュ削除まで保持する。
package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/secfeed/internal/model"
)

const (
	// URLPrefix はキャッシュ済みアセットを配信するパスの接頭辞。
	URLPrefix = "/images/"

	defaultImageExt   = ".jpg"
	defaultFaviconExt = ".ico"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Recorder はキャッシュ結果のメトリクス記録インターフェース。
type Recorder interface {
	// RecordAssetCache はkind（image/favicon）ごとの結果（hit/download/fail）を記録する。
	RecordAssetCache(kind, outcome string)
}

// Cache は画像とfaviconのダウンロードとローカル保存を行う。
type Cache struct {
	dir       string
	ssrfGuard SSRFValidator
	logger    *slog.Logger
	timeout   time.Duration
	maxSize   int64
	recorder  Recorder
	group     singleflight.Group
}

// New はCacheの新しいインスタンスを生成する。recorderはnilでもよい。
func New(
	dir string,
	ssrfGuard SSRFValidator,
	logger *slog.Logger,
	timeout time.Duration,
	maxSize int64,
	recorder Recorder,
) *Cache {
	return &Cache{
		dir:       dir,
		ssrfGuard: ssrfGuard,
		logger:    logger,
		timeout:   timeout,
		maxSize:   maxSize,
		recorder:  recorder,
	}
}

// Dir はアセットの保存ディレクトリを返す。
func (c *Cache) Dir() string {
	return c.dir
}

// CacheImage は画像をキャッシュし、ローカル参照（/images/<key>）を返す。
// 取得に失敗した場合は空文字列を返し、呼び出し側は元のURLを表示に使う。
func (c *Cache) CacheImage(ctx context.Context, rawURL string) string {
	if rawURL == "" {
		return ""
	}
	return c.cache(ctx, "image", rawURL, ImageKey(rawURL))
}

// CacheFavicon はソースのfaviconをキャッシュし、ローカル参照を返す。
// キーはソース名から導出するため、1ソースにつき1つのスロットを持つ。
func (c *Cache) CacheFavicon(ctx context.Context, rawURL, sourceName string) string {
	if rawURL == "" {
		return ""
	}
	return c.cache(ctx, "favicon", rawURL, FaviconKey(rawURL, sourceName))
}

func (c *Cache) cache(ctx context.Context, kind, rawURL, key string) string {
	dest := filepath.Join(c.dir, key)
	if fileExists(dest) {
		c.record(kind, "hit")
		return URLPrefix + key
	}

	// 同一キーへの同時リクエストは1回のダウンロードにまとめる。
	// fetchedはクロージャを実行した呼び出しでのみtrueになる
	fetched := false
	_, err, _ := c.group.Do(key, func() (interface{}, error) {
		if fileExists(dest) {
			return nil, nil
		}
		fetched = true
		return nil, c.download(ctx, rawURL, dest)
	})
	if err != nil {
		c.record(kind, "fail")
		c.logger.Debug("アセットのキャッシュに失敗しました",
			slog.String("kind", kind),
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return ""
	}

	if fetched {
		c.record(kind, "download")
	} else {
		c.record(kind, "hit")
	}
	return URLPrefix + key
}

func (c *Cache) record(kind, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordAssetCache(kind, outcome)
	}
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// ImageKey は画像URLのSHA-256ハッシュと拡張子からキャッシュキーを導出する。
func ImageKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:]) + extensionOf(rawURL, defaultImageExt)
}

// FaviconKey はソース名を正規化した文字列と拡張子からfaviconのキャッシュキーを導出する。
func FaviconKey(rawURL, sourceName string) string {
	return "favicon-" + model.SanitizeName(sourceName) + extensionOf(rawURL, defaultFaviconExt)
}

// imageTypes はキャッシュファイルとして保存を許可する拡張子と、配信時のContent-Type。
// ここに無い拡張子はデフォルト拡張子に置き換える。
var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".avif": "image/avif",
	".ico":  "image/x-icon",
	".bmp":  "image/bmp",
}

// ContentType はキャッシュファイル名の拡張子から配信用のContent-Typeを返す。
// 許可リストに無い拡張子の場合はfalseを返す。
func ContentType(name string) (string, bool) {
	ct, ok := imageTypes[strings.ToLower(path.Ext(name))]
	return ct, ok
}

// extensionOf はURLパスの拡張子を返す。画像の拡張子でない場合はdefaultExtを返す。
func extensionOf(rawURL, defaultExt string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := imageTypes[ext]; !ok {
		return defaultExt
	}
	return ext
}

// ResolveURL は相対URLおよびプロトコル相対URLを記事URLのオリジン基準で絶対URLに解決する。
// 解決できない場合はrefをそのまま返す。
func ResolveURL(ref, articleURL string) string {
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}
	base, err := url.Parse(articleURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return ref
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	return origin.ResolveReference(refURL).String()
}

// ErrNotImage は取得したレスポンスが画像ではないことを示す。
var ErrNotImage = errors.New("response is not an image")
