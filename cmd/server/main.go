// Package main はテナント鍵管理APIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"tenant-key-service/config"
	"tenant-key-service/internal/handler"
	"tenant-key-service/internal/infra"
	"tenant-key-service/internal/repository"
	"tenant-key-service/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 既存の環境変数は.envで上書きしない
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ロガーより先に初期化してトレースIDを付与できるようにする
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}
	infra.SetupLogger(cfg)

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	db, err := infra.NewDB(cfg)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	provider, err := newKeyProvider(ctx, cfg, reg)
	if err != nil {
		return err
	}
	if provider != nil {
		defer func() {
			if err := provider.Close(); err != nil {
				slog.Error("failed to close key provider", "error", err)
			}
		}()
	}

	keys, err := usecase.NewKeyService(cfg, provider)
	if err != nil {
		return fmt.Errorf("initializing key service (backend=%s): %w", cfg.KeyBackend, err)
	}
	tenants := usecase.NewTenantService(repository.NewTokenRepository(db), keys)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(handler.NewTenantHandler(tenants), handler.NewSessionHandler(keys), reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "port", cfg.Port, "backend", keys.Backend())
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newKeyProvider はremoteバックエンドかラップ済みセッション秘密鍵を使う場合のみ
// 計装付きの鍵プロバイダを生成する。不要な場合はnilを返す。
func newKeyProvider(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (infra.Provider, error) {
	if cfg.KeyBackend != "remote" && cfg.SessionSecretWrapped == "" {
		return nil, nil
	}
	p, err := infra.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing key provider %q: %w", cfg.KeyProvider, err)
	}
	return infra.NewInstrumentedProvider(p, infra.NewProviderMetrics(reg)), nil
}
