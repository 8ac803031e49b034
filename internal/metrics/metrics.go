// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 集約サイクルと画像キャッシュから利用する。
type MetricsCollector interface {
	RecordCycle(duration time.Duration, success bool)
	RecordCycleSkipped()
	RecordSourceResult(source string, success bool)
	RecordSnapshotItems(count int)
	RecordAssetCache(kind, outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cycles        *prometheus.CounterVec
	cyclesSkipped prometheus.Counter
	cycleDuration prometheus.Histogram
	sourceResults *prometheus.CounterVec
	snapshotItems prometheus.Gauge
	assetCache    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secfeed_cycles_total",
			Help: "集約サイクルの実行回数（結果別）",
		}, []string{"result"}),
		cyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secfeed_cycles_skipped_total",
			Help: "実行中のため開始しなかった集約サイクル要求の数",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "secfeed_cycle_duration_seconds",
			Help:    "集約サイクルの所要時間（秒）",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		sourceResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secfeed_source_results_total",
			Help: "ソース別の処理結果の数",
		}, []string{"source", "result"}),
		snapshotItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "secfeed_snapshot_items",
			Help: "公開中のスナップショットに含まれる記事数",
		}),
		assetCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secfeed_asset_cache_total",
			Help: "画像・faviconキャッシュの結果別の数",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(
		c.cycles,
		c.cyclesSkipped,
		c.cycleDuration,
		c.sourceResults,
		c.snapshotItems,
		c.assetCache,
	)

	return c
}

// RecordCycle は完了した集約サイクルを記録する。
// successは1つ以上のソースが成功したかどうか。
func (c *Collector) RecordCycle(duration time.Duration, success bool) {
	c.cycles.WithLabelValues(resultLabel(success)).Inc()
	c.cycleDuration.Observe(duration.Seconds())
}

// RecordCycleSkipped は実行中のため無視されたサイクル要求を記録する。
func (c *Collector) RecordCycleSkipped() {
	c.cyclesSkipped.Inc()
}

// RecordSourceResult はソース単位の処理結果を記録する。
func (c *Collector) RecordSourceResult(source string, success bool) {
	c.sourceResults.WithLabelValues(source, resultLabel(success)).Inc()
}

// RecordSnapshotItems は公開中の記事数を記録する。
func (c *Collector) RecordSnapshotItems(count int) {
	c.snapshotItems.Set(float64(count))
}

// RecordAssetCache は画像キャッシュの結果を記録する。
func (c *Collector) RecordAssetCache(kind, outcome string) {
	c.assetCache.WithLabelValues(kind, outcome).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
