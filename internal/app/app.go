package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hitoshi/secfeed/internal/aggregator"
	"github.com/hitoshi/secfeed/internal/config"
	"github.com/hitoshi/secfeed/internal/handler"
	"github.com/hitoshi/secfeed/internal/logger"
	"github.com/hitoshi/secfeed/internal/metrics"
	"github.com/hitoshi/secfeed/internal/middleware"
	"github.com/hitoshi/secfeed/internal/store"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルを反映する
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("cache_dir", cfg.CacheDir),
		slog.Int("sources", len(cfg.Sources)),
	)

	switch cmd {
	case CommandRefresh:
		return runRefresh(w, cfg)
	case CommandStatus:
		return runStatus(w, cfg)
	case CommandClear:
		return runClear(w, cfg)
	default:
		return runServe(w, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 永続化されたスナップショットを読み込み、必要なら初回サイクルを実行し、
// 定期更新とHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(w io.Writer, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.Default()

	// 1. パイプラインの構築
	p, err := newPipeline(cfg, log)
	if err != nil {
		return err
	}
	scheduler := aggregator.NewScheduler(p.aggregator, log, cfg.RefreshInterval, cfg.AutoRefresh)

	// 2. アクセス制御とレート制限
	gate, err := middleware.NewAccessGate(cfg.AllowedIPs)
	if err != nil {
		return fmt.Errorf("invalid ALLOWED_IPS: %w", err)
	}
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitRefresh),
	)
	defer rateLimiter.Stop()

	// 3. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AccessGate:        gate,
		Aggregator:        p.aggregator,
		Stats:             p.store,
		AutoRefresh:       scheduler,
		ImageFallbacks:    cfg.ImageFallbacks,
		ImageDir:          cfg.ImageDir(),
		MetricsHandler:    metrics.Handler(p.registry),
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 5. 初回サイクルと定期更新（サーバーは初回サイクルを待たずに応答する）
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.aggregator.Bootstrap(ctx, cfg.RefreshInterval)
		scheduler.Start(ctx)
	}()

	// 6. 対話コンソール
	if cfg.Console {
		console := NewConsole(os.Stdin, w, p.aggregator, scheduler, p.store, log)
		go func() {
			if console.Run(ctx) {
				stop()
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("server listen error: %w", err)
		stop()
	}
	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 実行中のサイクルはスナップショットの保存まで完了させる
	wg.Wait()
	p.aggregator.Wait()

	if runErr != nil {
		return runErr
	}
	log.Info("API server stopped gracefully")
	return nil
}

// runRefresh は集約サイクルを1回実行し、結果を出力して終了する。
// 全ソースが失敗した場合も前回の記事を保持するため、先に永続化済みのスナップショットを読み込む。
func runRefresh(w io.Writer, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(cfg, slog.Default())
	if err != nil {
		return err
	}

	p.aggregator.Restore()
	start := time.Now()
	snap, err := p.aggregator.Run(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	succeeded := 0
	for _, st := range snap.FeedStatus {
		if st.Success {
			succeeded++
		}
	}
	fmt.Fprintf(w, "Refreshed %d/%d sources in %s\n\n",
		succeeded, len(cfg.Sources), time.Since(start).Round(time.Millisecond))
	printStatus(w, cfg.Sources, snap, p.store.Stats(snap))
	return nil
}

// runStatus は永続化されたスナップショットの状態を出力する。フィードの取得は行わない。
func runStatus(w io.Writer, cfg *config.Config) error {
	st := store.New(cfg.SnapshotPath(), cfg.ImageDir(), slog.Default())
	snap := st.Load()
	printStatus(w, cfg.Sources, snap, st.Stats(snap))
	return nil
}

// runClear はキャッシュ済みアセットとスナップショットを全て削除する。
func runClear(w io.Writer, cfg *config.Config) error {
	st := store.New(cfg.SnapshotPath(), cfg.ImageDir(), slog.Default())
	if err := st.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Fprintln(w, "Cache cleared successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
