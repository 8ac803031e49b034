package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hitoshi/secfeed/internal/model"
)

// CycleRunner は集約サイクルの実行インターフェース。
type CycleRunner interface {
	Run(ctx context.Context) (*model.Snapshot, error)
}

// Scheduler は一定間隔で集約サイクルを起動する。
// 無効化中のティックはスキップされる。手動更新との競合はCycleRunner側の
// 実行中フラグで排他されるため、サイクルが重複して走ることはない。
type Scheduler struct {
	runner   CycleRunner
	logger   *slog.Logger
	interval time.Duration
	enabled  atomic.Bool
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// intervalが0以下の場合はデフォルト値10分を使用する。
func NewScheduler(runner CycleRunner, logger *slog.Logger, interval time.Duration, enabled bool) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	s := &Scheduler{
		runner:   runner,
		logger:   logger,
		interval: interval,
	}
	s.enabled.Store(enabled)
	return s
}

// SetEnabled は定期実行の有効・無効を切り替える。
func (s *Scheduler) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
	s.logger.Info("定期更新の設定を変更しました", slog.Bool("enabled", enabled))
}

// Enabled は定期実行が有効かどうかを返す。
func (s *Scheduler) Enabled() bool {
	return s.enabled.Load()
}

// Interval は実行間隔を返す。
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start はティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("更新スケジューラを開始しました",
		slog.Duration("interval", s.interval),
		slog.Bool("enabled", s.Enabled()),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("更新スケジューラを停止しました")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Debug("定期更新が無効のためスキップしました")
		return
	}
	if _, err := s.runner.Run(ctx); err != nil {
		if errors.Is(err, model.ErrCycleRunning) {
			s.logger.Info("前回のサイクルが実行中のため、定期更新をスキップしました")
			return
		}
		s.logger.Error("定期更新に失敗しました", slog.String("error", err.Error()))
	}
}
