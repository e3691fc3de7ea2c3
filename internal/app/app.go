package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/bookmarket-auth/internal/apikey"
	"github.com/hitoshi/bookmarket-auth/internal/auth"
	"github.com/hitoshi/bookmarket-auth/internal/config"
	"github.com/hitoshi/bookmarket-auth/internal/database"
	"github.com/hitoshi/bookmarket-auth/internal/handler"
	"github.com/hitoshi/bookmarket-auth/internal/logger"
	"github.com/hitoshi/bookmarket-auth/internal/metrics"
	"github.com/hitoshi/bookmarket-auth/internal/middleware"
	"github.com/hitoshi/bookmarket-auth/internal/repository"
	"github.com/hitoshi/bookmarket-auth/internal/security"
	"github.com/hitoshi/bookmarket-auth/internal/session"
	"github.com/hitoshi/bookmarket-auth/internal/token"
	"github.com/hitoshi/bookmarket-auth/internal/user"
	"github.com/hitoshi/bookmarket-auth/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
			port = "8001"
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
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		opts, err := ParseMigrateArgs(args[1:])
		if err != nil {
			return err
		}
		return runMigrate(cfg, opts)
	default:
		return runServe(cfg)
	}
}

// services はserveモードで組み立てた依存関係。
type services struct {
	sessions *session.Store
	auth     *auth.Service
	users    *user.Service
	apiKeys  *apikey.Service
}

// buildServices はリポジトリからドメインサービスまでを組み立てる。
func buildServices(cfg *config.Config, userRepo repository.UserRepository, sessionRepo repository.SessionRepository, apiKeyRepo repository.APIKeyRepository, sink metrics.Sink) (*services, error) {
	sessions := session.NewStore(sessionRepo, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	hasher := security.NewCredentialHasher(cfg.BcryptCost)
	codec := token.NewCodec(cfg.JWTSecret)

	authSvc, err := auth.NewService(userRepo, sessions, hasher, codec, sink, auth.ServiceConfig{
		AccessTokenTTL:    cfg.AccessTokenTTL,
		RefreshTokenTTL:   cfg.RefreshTokenTTL,
		PasswordMinLength: cfg.PasswordMinLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build auth service: %w", err)
	}

	return &services{
		sessions: sessions,
		auth:     authSvc,
		users:    user.NewService(userRepo),
		apiKeys:  apikey.NewService(apiKeyRepo, hasher),
	}, nil
}

// newRegistry はプロセス専用のPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// openRedis はREDIS_URLが設定されている場合にクライアントを生成する。
func openRedis(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. Redis（readinessチェック用、任意）
	checks := []handler.ReadinessCheck{handler.DatabaseCheck(db)}
	rdb, err := openRedis(cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		checks = append(checks, handler.RedisCheck(rdb))
	}

	// 3. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 4. リポジトリとドメインサービスの初期化
	svc, err := buildServices(cfg,
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		repository.NewPostgresAPIKeyRepo(db),
		collector,
	)
	if err != nil {
		return err
	}

	// 5. ルーターの構築
	trustedProxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("failed to parse TRUSTED_PROXIES: %w", err)
	}
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitRequests, cfg.RateLimitWindow))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Gate:              middleware.NewGate(svc.auth, collector),
		RateLimiter:       rateLimiter,
		TrustedProxies:    trustedProxies,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logging:           middleware.NewLoggingMiddleware(slog.Default(), collector),

		Health:  handler.NewHealthHandler(checks...),
		Metrics: metrics.Handler(reg, collector, svc.sessions.CountActive),

		AuthService:     svc.auth,
		UserService:     svc.users,
		PasswordChanger: svc.auth,
		APIKeyService:   svc.apiKeys,
		AccountAdmin:    svc.auth,
	})

	// 6. HTTPサーバーの起動
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

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
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
// DB接続を開き、期限切れセッションのスイープを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. スイープジョブの初期化
	sessions := session.NewStore(repository.NewPostgresSessionRepo(db), cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	// ワーカーは/metricsを公開しないため、スイープ件数はログのみに残す
	job := cleanup.NewSweepJob(sessions, slog.Default(), nil)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SessionSweepInterval),
	)

	// メインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.SessionSweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// upはすべての未適用マイグレーションを、downは指定ステップ数だけ巻き戻す。
func runMigrate(cfg *config.Config, opts MigrateOptions) error {
	slog.Info("running database migrations",
		slog.String("direction", string(opts.Direction)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch opts.Direction {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, opts.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
