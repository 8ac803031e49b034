package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/secfeed/internal/imagecache"
	"github.com/hitoshi/secfeed/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	AccessGate        *middleware.AccessGate

	// ダッシュボードAPI
	Aggregator     FeedAggregator
	Stats          CacheStatter
	AutoRefresh    AutoRefresher
	ImageFallbacks map[string]string

	// キャッシュ済み画像の配信ディレクトリ
	ImageDir string

	// Prometheusスクレイプ用ハンドラー。nilの場合は/metricsを公開しない
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS
//	→ (APIのみ) AccessGate → RateLimit(General)
//
// /health と /images/* は許可リストの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	feedHandler := NewFeedHandler(deps.Aggregator, deps.Stats, deps.AutoRefresh, deps.ImageFallbacks, deps.Logger)

	// --- 許可リスト不要のルート ---
	r.Get("/health", Health)
	r.Handle(imagecache.URLPrefix+"*", imageServer(deps.ImageDir))

	// --- 許可リストによるアクセス制御が必要なルート ---
	// ミドルウェアスタック: AccessGate → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.AccessGate.Middleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api", func(r chi.Router) {
			r.Get("/feeds", feedHandler.GetFeeds)
			r.Get("/status", feedHandler.GetStatus)

			// POST /api/refresh - 手動更新（更新専用レート制限を追加）
			r.With(deps.RateLimiter.RefreshMiddleware()).Post("/refresh", feedHandler.Refresh)

			r.Delete("/cache", feedHandler.ClearCache)
		})

		if deps.MetricsHandler != nil {
			r.Handle("/metrics", deps.MetricsHandler)
		}
	})

	return r
}

// imageServer はキャッシュ済みアセットを配信するハンドラーを返す。
// ディレクトリ一覧は返さず、Content-Typeは画像拡張子の許可リストからのみ決定する。
func imageServer(dir string) http.Handler {
	fs := http.StripPrefix(imagecache.URLPrefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, imagecache.URLPrefix)
		if name == "" || strings.HasSuffix(name, "/") || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		contentType, ok := imagecache.ContentType(name)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		fs.ServeHTTP(w, r)
	})
}
