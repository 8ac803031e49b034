package app

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/secfeed/internal/aggregator"
	"github.com/hitoshi/secfeed/internal/config"
	"github.com/hitoshi/secfeed/internal/extract"
	"github.com/hitoshi/secfeed/internal/feed"
	"github.com/hitoshi/secfeed/internal/imagecache"
	"github.com/hitoshi/secfeed/internal/metrics"
	"github.com/hitoshi/secfeed/internal/processor"
	"github.com/hitoshi/secfeed/internal/security"
	"github.com/hitoshi/secfeed/internal/store"
)

// pipeline はフィード取得から公開までの依存関係をまとめたもの。
// serveとrefreshの両方で同じ構成を使う。
type pipeline struct {
	store      *store.Store
	aggregator *aggregator.Aggregator
	registry   *prometheus.Registry
}

// newPipeline は設定から全コンポーネントをワイヤリングする。
// キャッシュディレクトリが作成できない場合はエラーを返す。
func newPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	// 1. キャッシュディレクトリ
	st := store.New(cfg.SnapshotPath(), cfg.ImageDir(), logger)
	if err := st.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize cache directory: %w", err)
	}

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. セキュリティサービス
	ssrfGuard := security.NewSSRFGuard(cfg.AllowPrivateTargets)
	stripper := security.NewTextStripper()

	// 4. 取得・抽出・キャッシュ
	reader := feed.NewReader(ssrfGuard, logger, cfg.FeedTimeout, cfg.FetchMaxSize, cfg.MaxItemsPerFeed)
	extractor := extract.NewExtractor(ssrfGuard, logger, cfg.ArticleTimeout, cfg.FetchMaxSize)
	assets := imagecache.New(cfg.ImageDir(), ssrfGuard, logger, cfg.ImageTimeout, cfg.ImageMaxSize, collector)

	// 5. 集約サイクル
	proc := processor.New(reader, extractor, assets, stripper, logger, cfg.EntryConcurrency)
	agg := aggregator.New(cfg.Sources, proc, st, collector, logger)

	return &pipeline{
		store:      st,
		aggregator: agg,
		registry:   reg,
	}, nil
}
