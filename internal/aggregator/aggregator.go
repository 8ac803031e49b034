// Package aggregator は全ソースの処理をまとめて1つのスナップショットを組み立て、
// 読み手に対してアトミックに公開する集約サイクルを提供する。
//
// サイクルは同時に1つしか実行されない。実行中の要求は新しいサイクルを開始せず、
// 現在公開中のスナップショットを返す。
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/secfeed/internal/model"
)

// SourceProcessor は1ソースを処理するインターフェース。
type SourceProcessor interface {
	Process(ctx context.Context, source model.Source) model.ProcessResult
}

// SnapshotStore はスナップショットの永続化インターフェース。
type SnapshotStore interface {
	Load() *model.Snapshot
	Save(snap *model.Snapshot) error
	Clear() error
}

// Recorder はサイクルのメトリクス記録インターフェース。
type Recorder interface {
	RecordCycle(duration time.Duration, success bool)
	RecordCycleSkipped()
	RecordSourceResult(source string, success bool)
	RecordSnapshotItems(count int)
}

// Aggregator は集約サイクルの実行とスナップショットの公開を行う。
type Aggregator struct {
	sources   []model.Source
	processor SourceProcessor
	store     SnapshotStore
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time

	snapshot atomic.Pointer[model.Snapshot]
	running  atomic.Bool
	inflight sync.WaitGroup
}

// New はAggregatorの新しいインスタンスを生成する。recorderはnilでもよい。
// 生成直後は空のスナップショットを公開する。
func New(
	sources []model.Source,
	processor SourceProcessor,
	store SnapshotStore,
	recorder Recorder,
	logger *slog.Logger,
) *Aggregator {
	a := &Aggregator{
		sources:   sources,
		processor: processor,
		store:     store,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
	a.snapshot.Store(model.EmptySnapshot())
	return a
}

// Snapshot は現在公開中のスナップショットを返す。ロックは取らない。
// 返されたスナップショットは変更してはならない。
func (a *Aggregator) Snapshot() *model.Snapshot {
	return a.snapshot.Load()
}

// Running はサイクルが実行中かどうかを返す。
func (a *Aggregator) Running() bool {
	return a.running.Load()
}

// Sources は設定されたソースの一覧を返す。
func (a *Aggregator) Sources() []model.Source {
	return a.sources
}

// Run は集約サイクルを同期的に実行し、公開したスナップショットを返す。
// 既に実行中の場合は現在のスナップショットとmodel.ErrCycleRunningを返す。
// 開始したサイクルはctxがキャンセルされても最後まで実行し、途中で打ち切った結果は公開しない。
func (a *Aggregator) Run(ctx context.Context) (*model.Snapshot, error) {
	if !a.running.CompareAndSwap(false, true) {
		a.recordSkipped()
		return a.Snapshot(), model.ErrCycleRunning
	}
	defer a.running.Store(false)

	return a.cycle(context.WithoutCancel(ctx)), nil
}

// TriggerAsync はバックグラウンドで集約サイクルを開始する。
// 既に実行中の場合は新しいサイクルを開始せず、model.ErrCycleRunningを返す。
// サイクルはリクエストのライフサイクルとは独立して最後まで実行される。
func (a *Aggregator) TriggerAsync() error {
	if !a.running.CompareAndSwap(false, true) {
		a.recordSkipped()
		return model.ErrCycleRunning
	}

	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer a.running.Store(false)
		a.cycle(context.Background())
	}()
	return nil
}

// Wait はTriggerAsyncで開始したサイクルの完了を待つ。
func (a *Aggregator) Wait() {
	a.inflight.Wait()
}

// Restore は永続化されたスナップショットを読み込んで公開する。
func (a *Aggregator) Restore() *model.Snapshot {
	snap := a.store.Load()
	a.snapshot.Store(snap)
	if a.recorder != nil {
		a.recorder.RecordSnapshotItems(len(snap.Items))
	}
	return snap
}

// Bootstrap は永続化されたスナップショットを読み込んで公開する。
// 読み込んだスナップショットが空、またはmaxAgeより古い場合はサイクルを実行する。
func (a *Aggregator) Bootstrap(ctx context.Context, maxAge time.Duration) *model.Snapshot {
	snap := a.Restore()

	age := snap.Age(a.now())
	if !snap.IsEmpty() && age >= 0 && age <= maxAge {
		a.logger.Info("キャッシュ済みのスナップショットを使用します",
			slog.Int("items", len(snap.Items)),
			slog.Duration("age", age),
		)
		return snap
	}

	a.logger.Info("スナップショットが空または古いため、集約サイクルを実行します",
		slog.Int("items", len(snap.Items)),
	)
	result, _ := a.Run(ctx)
	return result
}

// Reset は永続化されたキャッシュを全て削除し、空のスナップショットを公開する。
// サイクル実行中はアセットを削除せず、model.ErrCycleRunningを返す。
// 削除中はrunningフラグを保持するため、新しいサイクルは開始されない。
func (a *Aggregator) Reset() error {
	if !a.running.CompareAndSwap(false, true) {
		return model.ErrCycleRunning
	}
	defer a.running.Store(false)

	if err := a.store.Clear(); err != nil {
		return err
	}
	a.snapshot.Store(model.EmptySnapshot())
	if a.recorder != nil {
		a.recorder.RecordSnapshotItems(0)
	}
	return nil
}

// cycle は全ソースを並列に処理し、結果をマージして公開する。
// 呼び出し側でrunningフラグを取得していること。
func (a *Aggregator) cycle(ctx context.Context) *model.Snapshot {
	start := a.now()
	a.logger.Info("集約サイクルを開始します", slog.Int("source_count", len(a.sources)))

	results := make([]model.ProcessResult, len(a.sources))

	// 1ソースの失敗が他のソースを中断しないよう、エラーで打ち切らない待ち合わせを行う
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					a.logger.Error("ソース処理中にパニックが発生しました",
						slog.String("source", src.Name),
						slog.Any("panic", rec),
					)
					results[i] = model.ProcessResult{
						Source:    src,
						Error:     fmt.Sprintf("panic: %v", rec),
						Items:     []model.FeedItem{},
						FetchedAt: a.now(),
					}
				}
			}()
			results[i] = a.processor.Process(ctx, src)
		}()
	}
	wg.Wait()

	snap, anySuccess := a.merge(start, results)
	a.snapshot.Store(snap)

	if err := a.store.Save(snap); err != nil {
		a.logger.Error("スナップショットの保存に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	duration := a.now().Sub(start)
	if a.recorder != nil {
		a.recorder.RecordCycle(duration, anySuccess)
		a.recorder.RecordSnapshotItems(len(snap.Items))
	}
	a.logger.Info("集約サイクルが完了しました",
		slog.Int("items", len(snap.Items)),
		slog.Bool("any_success", anySuccess),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return snap
}

// merge はソースごとの結果から新しいスナップショットを組み立てる。
// 記事はソース設定順に連結した後、公開日時の降順で安定ソートする。
// 全ソースが失敗した場合は、直前のスナップショットの記事と更新日時を引き継ぎ、
// ステータスのみ今回の結果で置き換える。
func (a *Aggregator) merge(start time.Time, results []model.ProcessResult) (*model.Snapshot, bool) {
	items := make([]model.FeedItem, 0)
	status := make(map[string]model.SourceStatus, len(results))
	timestamps := make(map[string]time.Time, len(results))
	anySuccess := false

	for k, r := range results {
		status[r.Source.Name] = r.Status()
		timestamps[r.Source.Name] = r.FetchedAt
		if a.recorder != nil {
			a.recorder.RecordSourceResult(r.Source.Name, r.Success)
		}
		if !r.Success {
			continue
		}
		anySuccess = true

		// 正規化後の名前が衝突してもIDが重複しないよう、ソースの設定順も含める
		prefix := model.SanitizeName(r.Source.Name)
		for j, item := range r.Items {
			item.ID = fmt.Sprintf("%s-%d-%d-%d", prefix, start.UnixMilli(), k, j)
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PubDate.After(items[j].PubDate)
	})

	now := a.now()
	snap := &model.Snapshot{
		LastUpdated:    &now,
		Items:          items,
		FeedStatus:     status,
		FeedTimestamps: timestamps,
	}

	if prev := a.Snapshot(); !anySuccess && len(results) > 0 && !prev.IsEmpty() {
		a.logger.Warn("全ソースの取得に失敗したため、前回の記事を保持します",
			slog.Int("items", len(prev.Items)),
		)
		snap.Items = prev.Items
		snap.LastUpdated = prev.LastUpdated
	}

	return snap, anySuccess
}

func (a *Aggregator) recordSkipped() {
	a.logger.Info("集約サイクルは実行中のため、要求を無視しました")
	if a.recorder != nil {
		a.recorder.RecordCycleSkipped()
	}
}
