package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ruralmed/ruralmed/pkg/gateway/config"
	"github.com/ruralmed/ruralmed/pkg/gateway/extraction"
	"github.com/ruralmed/ruralmed/pkg/gateway/metrics"
	gatewayserver "github.com/ruralmed/ruralmed/pkg/gateway/server"
	"github.com/ruralmed/ruralmed/pkg/gateway/store"
	"github.com/ruralmed/ruralmed/pkg/gateway/summary"
)

type gateway struct {
	server    *gatewayserver.Server
	summaries *summary.Runner
	cleanup   func()
}

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	buildGateway func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gateway, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig:   config.LoadFromEnv,
		buildGateway: buildGateway,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildGateway assembles the production dependency graph: encrypted Postgres
// store (migrated up front), Gemini live connector, Gemini summarizer, and
// the HTTP server around them.
func buildGateway(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gateway, error) {
	cipher, err := store.NewCipher(cfg.AESKeyB64)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, cipher)
	if err != nil {
		return nil, err
	}

	connector, err := extraction.NewGeminiConnector(cfg.GeminiAPIKey, cfg.LiveModel, cfg.GeminiAPIVersion)
	if err != nil {
		pg.Close()
		return nil, err
	}
	generator, err := summary.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.SummaryModel)
	if err != nil {
		pg.Close()
		return nil, err
	}

	m := metrics.New(cfg.MetricsNamespace)
	summaries, err := summary.NewRunner(summary.Dependencies{
		Generator:  generator,
		Writer:     pg,
		Logger:     logger,
		Metrics:    m,
		MaxRetries: cfg.SummaryMaxRetries,
		BaseDelay:  cfg.SummaryRetryBase,
	})
	if err != nil {
		pg.Close()
		return nil, err
	}

	srv, err := gatewayserver.New(gatewayserver.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Store:     pg,
		StorePing: pg,
		Connector: connector,
		Summaries: summaries,
		Metrics:   m,
	})
	if err != nil {
		pg.Close()
		return nil, err
	}

	return &gateway{server: srv, summaries: summaries, cleanup: pg.Close}, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil || deps.buildGateway == nil {
		return errors.New("missing gateway dependencies")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := deps.buildGateway(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}
	if gw.cleanup != nil {
		defer gw.cleanup()
	}

	httpSrv := buildHTTPServer(cfg, gw.server.Handler())

	logger.Info("starting consultation gateway", "addr", cfg.Addr, "live_model", cfg.LiveModel)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.server.SetDraining(true)
	if n := gw.server.LiveSessionCount(); n > 0 {
		logger.Info("draining live consultations", "open", n)
		gw.server.NotifyLiveSessions("The server is shutting down; this consultation will end shortly.")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.server.WaitLiveSessions(waitCtx) {
		gw.server.CancelLiveSessions()
	}

	// Summary jobs are not cancellable; give them the same grace window.
	if gw.summaries != nil {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer drainCancel()
		if err := gw.summaries.Wait(drainCtx); err != nil {
			logger.Warn("summary jobs still running at shutdown", "error", err)
		}
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("consultation gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "ruralmedd: load .env: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "ruralmedd: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
