package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hitoshi/secfeed/internal/middleware"
	"github.com/hitoshi/secfeed/internal/model"
)

// FeedAggregator はハンドラーが必要とする集約サイクルのインターフェース。
type FeedAggregator interface {
	Snapshot() *model.Snapshot
	Sources() []model.Source
	Running() bool
	TriggerAsync() error
	Reset() error
}

// CacheStatter はキャッシュ統計のインターフェース。
type CacheStatter interface {
	Stats(snap *model.Snapshot) model.Stats
}

// AutoRefresher は定期更新の状態を返すインターフェース。
type AutoRefresher interface {
	Enabled() bool
}

// FeedHandler はダッシュボード向けAPIのHTTPハンドラー。
type FeedHandler struct {
	aggregator     FeedAggregator
	stats          CacheStatter
	autoRefresh    AutoRefresher
	imageFallbacks map[string]string
	logger         *slog.Logger
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(
	aggregator FeedAggregator,
	stats CacheStatter,
	autoRefresh AutoRefresher,
	imageFallbacks map[string]string,
	logger *slog.Logger,
) *FeedHandler {
	if imageFallbacks == nil {
		imageFallbacks = map[string]string{}
	}
	return &FeedHandler{
		aggregator:     aggregator,
		stats:          stats,
		autoRefresh:    autoRefresh,
		imageFallbacks: imageFallbacks,
		logger:         logger,
	}
}

// feedsResponse は記事一覧のAPIレスポンス。
type feedsResponse struct {
	LastUpdated    *time.Time                    `json:"lastUpdated"`
	Items          []model.FeedItem              `json:"items"`
	FeedStatus     map[string]model.SourceStatus `json:"feedStatus"`
	FeedTimestamps map[string]time.Time          `json:"feedTimestamps"`
	ImageFallbacks map[string]string             `json:"imageFallbacks"`
}

// statusResponse はサーバー状態のAPIレスポンス。
type statusResponse struct {
	Status      string                        `json:"status"`
	Feeds       int                           `json:"feeds"`
	Articles    int                           `json:"articles"`
	Images      int                           `json:"images"`
	CacheSize   string                        `json:"cacheSize"`
	LastUpdated string                        `json:"lastUpdated"`
	FeedStatus  map[string]model.SourceStatus `json:"feedStatus"`
	Refreshing  bool                          `json:"refreshing"`
	AutoRefresh bool                          `json:"autoRefresh"`
}

// messageResponse は操作結果のAPIレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// GetFeeds は現在公開中のスナップショットを返す。
// GET /api/feeds
func (h *FeedHandler) GetFeeds(w http.ResponseWriter, r *http.Request) {
	snap := h.aggregator.Snapshot()
	writeJSON(w, http.StatusOK, feedsResponse{
		LastUpdated:    snap.LastUpdated,
		Items:          snap.Items,
		FeedStatus:     snap.FeedStatus,
		FeedTimestamps: snap.FeedTimestamps,
		ImageFallbacks: h.imageFallbacks,
	})
}

// GetStatus はソース数・記事数・キャッシュサイズ等のサーバー状態を返す。
// GET /api/status
func (h *FeedHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.aggregator.Snapshot()
	st := h.stats.Stats(snap)

	lastUpdated := "Never"
	if st.LastUpdated != nil {
		lastUpdated = st.LastUpdated.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:      "running",
		Feeds:       len(h.aggregator.Sources()),
		Articles:    st.ItemCount,
		Images:      st.AssetCount,
		CacheSize:   humanize.Bytes(uint64(st.TotalBytes)),
		LastUpdated: lastUpdated,
		FeedStatus:  snap.FeedStatus,
		Refreshing:  h.aggregator.Running(),
		AutoRefresh: h.autoRefresh.Enabled(),
	})
}

// Refresh は集約サイクルをバックグラウンドで開始し、完了を待たずに202を返す。
// 実行中の場合は409を返す。
// POST /api/refresh
func (h *FeedHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.aggregator.TriggerAsync(); err != nil {
		if errors.Is(err, model.ErrCycleRunning) {
			middleware.WriteErrorResponse(w, http.StatusConflict, model.NewCycleRunningError())
			return
		}
		h.logger.Error("更新の開始に失敗しました",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	h.logger.Info("手動更新を開始しました",
		slog.String("client_ip", middleware.ClientIP(r)),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, messageResponse{Message: "Refresh started"})
}

// ClearCache はキャッシュ済みアセットとスナップショットを全て削除する。
// 集約サイクル実行中の場合は409を返す。
// DELETE /api/cache
func (h *FeedHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.aggregator.Reset(); err != nil {
		if errors.Is(err, model.ErrCycleRunning) {
			middleware.WriteErrorResponse(w, http.StatusConflict, model.NewClearWhileRunningError())
			return
		}
		h.logger.Error("キャッシュの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewCacheClearError(err.Error()))
		return
	}

	h.logger.Info("キャッシュを削除しました",
		slog.String("client_ip", middleware.ClientIP(r)),
	)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Cache cleared successfully"})
}

// Health はプロセスの生存確認に応答する。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
