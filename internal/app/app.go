// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/newsbot/internal/config"
	"github.com/hitoshi/newsbot/internal/database"
	"github.com/hitoshi/newsbot/internal/handler"
	"github.com/hitoshi/newsbot/internal/ingest"
	"github.com/hitoshi/newsbot/internal/llm"
	"github.com/hitoshi/newsbot/internal/logger"
	"github.com/hitoshi/newsbot/internal/metrics"
	"github.com/hitoshi/newsbot/internal/notifier"
	"github.com/hitoshi/newsbot/internal/processor"
	"github.com/hitoshi/newsbot/internal/repository"
	"github.com/hitoshi/newsbot/internal/schedule"
	"github.com/hitoshi/newsbot/internal/security"
	"github.com/hitoshi/newsbot/internal/subscription"
	"github.com/hitoshi/newsbot/internal/user"
	deliverpkg "github.com/hitoshi/newsbot/internal/worker/deliver"
	fetchpkg "github.com/hitoshi/newsbot/internal/worker/fetch"
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
			port = "8080"
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
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newOrchestrator は配信オーケストレータと依存コンポーネントをワイヤリングする。
// serveモード（即時配信トリガー）とworkerモード（定期配信）の両方で使用する。
func newOrchestrator(cfg *config.Config, db *sql.DB, collector *metrics.Collector) *deliverpkg.Orchestrator {
	userRepo := repository.NewPostgresUserRepo(db)
	scheduleRepo := repository.NewPostgresScheduleRepo(db)
	prefsRepo := repository.NewPostgresPreferencesRepo(db)
	deliveryRepo := repository.NewPostgresDeliveryRepo(db)

	// LLM_API_KEY未設定の場合はnilのまま渡し、翻訳・要約なしの劣化動作とする
	var textProc processor.TextProcessor
	if cfg.LLMAPIKey != "" {
		textProc = llm.NewClient(llm.Config{
			Endpoint:      cfg.LLMEndpoint,
			Model:         cfg.LLMModel,
			APIKey:        cfg.LLMAPIKey,
			Timeout:       cfg.LLMTimeout,
			RatePerSecond: cfg.LLMRatePerSecond,
			Burst:         cfg.LLMBurst,
		})
	} else {
		slog.Info("LLM_API_KEYが未設定のため翻訳・要約を無効化します")
	}

	proc := processor.New(textProc, collector, cfg.SummarizeThreshold, cfg.SummarizeMaxLength)
	tg := notifier.NewTelegramNotifier(cfg.TelegramAPIBase, cfg.TelegramBotToken, 10*time.Second)

	return deliverpkg.NewOrchestrator(
		scheduleRepo, prefsRepo, userRepo, deliveryRepo,
		proc, tg, collector, slog.Default(), cfg.ClaimTTL,
	)
}

// runServe は管理APIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	feedRepo := repository.NewPostgresFeedRepo(db)
	subRepo := repository.NewPostgresSubscriptionRepo(db)
	scheduleRepo := repository.NewPostgresScheduleRepo(db)
	prefsRepo := repository.NewPostgresPreferencesRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	ssrfGuard := security.NewSSRFGuard()

	// 4. ドメインサービスの初期化
	userService := user.NewService(userRepo, scheduleRepo, prefsRepo)
	subService := subscription.NewService(userRepo, feedRepo, subRepo, ssrfGuard)
	scheduleService := schedule.NewService(scheduleRepo)

	// 5. 即時配信トリガー用オーケストレータの構築
	orchestrator := newOrchestrator(cfg, db, collector)

	// 6. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:          slog.Default(),
		UserService:     userService,
		FeedService:     subService,
		ScheduleService: scheduleService,
		Deliverer:       orchestrator,
		MetricsHandler:  metrics.Handler(registry),
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// フィードポーリングスケジューラと配信スケジューラを並行して起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	feedRepo := repository.NewPostgresFeedRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(db)
	scheduleRepo := repository.NewPostgresScheduleRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	ssrfGuard := security.NewSSRFGuard()
	normalizer := security.NewTextNormalizer()

	// 4. フィードポーリング側のワイヤリング
	ingestService := ingest.NewService(articleRepo, collector)
	poller := fetchpkg.NewPoller(
		feedRepo, ingestService, ssrfGuard, normalizer, collector,
		slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize, cfg.PollIntervalMinutes,
	)
	fetchScheduler := fetchpkg.NewScheduler(
		feedRepo, poller, slog.Default(), cfg.FetchMaxConcurrent,
	)

	// 5. 配信側のワイヤリング
	orchestrator := newOrchestrator(cfg, db, collector)
	deliverScheduler := deliverpkg.NewScheduler(
		scheduleRepo, orchestrator, slog.Default(), cfg.ClaimTTL, cfg.DeliverMaxConcurrent,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("fetch_tick", cfg.FetchTick),
		slog.Duration("deliver_tick", cfg.DeliverTick),
		slog.Int("fetch_max_concurrent", cfg.FetchMaxConcurrent),
		slog.Int("deliver_max_concurrent", cfg.DeliverMaxConcurrent),
	)

	// 2つのスケジューラを並行実行し、両方の停止を待つ
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		fetchScheduler.Start(ctx, cfg.FetchTick)
	}()
	go func() {
		defer wg.Done()
		deliverScheduler.Start(ctx, cfg.DeliverTick)
	}()
	wg.Wait()

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
