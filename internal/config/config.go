// Package config はアプリケーション全体の設定を環境変数から読み込む。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/secfeed/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string

	// Cache
	CacheDir string

	// Sources
	SourcesFile string
	Sources     []model.Source

	// Refresh
	RefreshInterval time.Duration
	AutoRefresh     bool

	// Fetch
	MaxItemsPerFeed  int
	EntryConcurrency int
	FeedTimeout      time.Duration
	ArticleTimeout   time.Duration
	ImageTimeout     time.Duration
	FetchMaxSize     int64
	ImageMaxSize     int64

	// AllowPrivateTargets はSSRFガードを緩め、プライベートIPへのフェッチを許可する。
	AllowPrivateTargets bool

	// Access
	AllowedIPs        []string
	CORSAllowedOrigin string

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitRefresh int

	// ImageFallbacks はドメインごとの代替画像URL。UIにそのまま渡す。
	ImageFallbacks map[string]string

	// Logging
	LogLevel slog.Level

	// Console は標準入力の対話コンソールを有効にする。
	Console bool
}

// Load は環境変数からConfigを読み込む。
// 値の形式が不正な場合はデフォルト値を使用し、
// 値域外の設定やソース定義の読み込み失敗はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.CacheDir = getEnvString("CACHE_DIR", "./cache")
	cfg.SourcesFile = getEnvString("SOURCES_FILE", "")
	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", 10*time.Minute)
	cfg.AutoRefresh = getEnvBool("AUTO_REFRESH", true)
	cfg.MaxItemsPerFeed = getEnvInt("MAX_ITEMS_PER_FEED", 10)
	cfg.EntryConcurrency = getEnvInt("ENTRY_CONCURRENCY", 5)
	cfg.FeedTimeout = getEnvDuration("FEED_TIMEOUT", 15*time.Second)
	cfg.ArticleTimeout = getEnvDuration("ARTICLE_TIMEOUT", 15*time.Second)
	cfg.ImageTimeout = getEnvDuration("IMAGE_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.ImageMaxSize = getEnvInt64("IMAGE_MAX_SIZE", 10485760)
	cfg.AllowPrivateTargets = getEnvBool("ALLOW_PRIVATE_TARGETS", false)
	cfg.AllowedIPs = getEnvList("ALLOWED_IPS", []string{"127.0.0.1", "::1"})
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRefresh = getEnvInt("RATE_LIMIT_REFRESH", 6)
	cfg.ImageFallbacks = parseFallbacks(os.Getenv("IMAGE_FALLBACKS"))
	cfg.LogLevel = parseLevel(os.Getenv("LOG_LEVEL"))
	cfg.Console = getEnvBool("CONSOLE", false)

	var invalid []string
	if cfg.RefreshInterval <= 0 {
		invalid = append(invalid, "REFRESH_INTERVAL")
	}
	if cfg.MaxItemsPerFeed <= 0 {
		invalid = append(invalid, "MAX_ITEMS_PER_FEED")
	}
	if cfg.EntryConcurrency <= 0 {
		invalid = append(invalid, "ENTRY_CONCURRENCY")
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("environment variables must be positive: %v", invalid)
	}

	sources, err := LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	cfg.Sources = sources

	return cfg, nil
}

// SnapshotPath は永続化スナップショットのファイルパスを返す。
func (c *Config) SnapshotPath() string {
	return strings.TrimRight(c.CacheDir, "/") + "/feeds.json"
}

// ImageDir はキャッシュ画像の保存ディレクトリを返す。
func (c *Config) ImageDir() string {
	return strings.TrimRight(c.CacheDir, "/") + "/images"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvList はカンマ区切りの環境変数をスライスとして返す。空要素は除外する。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// parseFallbacks は "domain=url,domain=url" 形式の文字列をマップに変換する。
func parseFallbacks(v string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(v, ",") {
		domain, u, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || domain == "" || u == "" {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(domain))] = strings.TrimSpace(u)
	}
	return out
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
