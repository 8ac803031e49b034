package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"

	"github.com/hitoshi/secfeed/internal/model"
)

// consoleAggregator はコンソールから操作する集約サイクルのインターフェース。
type consoleAggregator interface {
	Snapshot() *model.Snapshot
	Sources() []model.Source
	TriggerAsync() error
	Reset() error
}

// consoleScheduler は定期更新の有効・無効を切り替えるインターフェース。
type consoleScheduler interface {
	Enabled() bool
	SetEnabled(enabled bool)
}

// consoleStatter はキャッシュ統計のインターフェース。
type consoleStatter interface {
	Stats(snap *model.Snapshot) model.Stats
}

// Console は標準入力から1文字コマンドを受け付ける対話コンソール。
//
//	r: 手動更新  s: 状態表示  c: キャッシュ削除  t: 定期更新の切り替え  q: 終了
type Console struct {
	in        io.Reader
	out       io.Writer
	agg       consoleAggregator
	scheduler consoleScheduler
	stats     consoleStatter
	logger    *slog.Logger
}

// NewConsole はConsoleの新しいインスタンスを生成する。
func NewConsole(
	in io.Reader,
	out io.Writer,
	agg consoleAggregator,
	scheduler consoleScheduler,
	stats consoleStatter,
	logger *slog.Logger,
) *Console {
	return &Console{
		in:        in,
		out:       out,
		agg:       agg,
		scheduler: scheduler,
		stats:     stats,
		logger:    logger,
	}
}

// Run は入力が終わるか、qが入力されるか、ctxがキャンセルされるまでコマンドを処理する。
// qで終了した場合のみtrueを返す。
func (c *Console) Run(ctx context.Context) bool {
	fmt.Fprintln(c.out, "Commands: r=refresh s=status c=clear cache t=toggle auto-refresh q=quit")

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return false
		}
		cmd := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if cmd == "q" {
			fmt.Fprintln(c.out, "Shutting down...")
			return true
		}
		c.handle(cmd)
	}
	return false
}

func (c *Console) handle(cmd string) {
	switch cmd {
	case "":
		return
	case "r":
		if err := c.agg.TriggerAsync(); err != nil {
			if errors.Is(err, model.ErrCycleRunning) {
				fmt.Fprintln(c.out, "Refresh already in progress")
				return
			}
			color.New(color.FgRed).Fprintf(c.out, "Failed to start refresh: %v\n", err)
			return
		}
		fmt.Fprintln(c.out, "Refresh started")
	case "s":
		snap := c.agg.Snapshot()
		printStatus(c.out, c.agg.Sources(), snap, c.stats.Stats(snap))
	case "c":
		if err := c.agg.Reset(); err != nil {
			if errors.Is(err, model.ErrCycleRunning) {
				fmt.Fprintln(c.out, "Cannot clear cache while refresh is in progress")
				return
			}
			c.logger.Error("キャッシュの削除に失敗しました", slog.String("error", err.Error()))
			color.New(color.FgRed).Fprintf(c.out, "Failed to clear cache: %v\n", err)
			return
		}
		fmt.Fprintln(c.out, "Cache cleared")
	case "t":
		enabled := !c.scheduler.Enabled()
		c.scheduler.SetEnabled(enabled)
		if enabled {
			fmt.Fprintln(c.out, "Auto-refresh enabled")
		} else {
			fmt.Fprintln(c.out, "Auto-refresh disabled")
		}
	default:
		fmt.Fprintf(c.out, "Unknown command %q\n", cmd)
	}
}
