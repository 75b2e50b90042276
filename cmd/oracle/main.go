package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-oracle/internal/api"
	"github.com/miradorstack/mirador-oracle/internal/approval"
	"github.com/miradorstack/mirador-oracle/internal/cache"
	"github.com/miradorstack/mirador-oracle/internal/config"
	"github.com/miradorstack/mirador-oracle/internal/engine"
	"github.com/miradorstack/mirador-oracle/internal/executor"
	"github.com/miradorstack/mirador-oracle/internal/ledger"
	"github.com/miradorstack/mirador-oracle/internal/metrics"
	"github.com/miradorstack/mirador-oracle/internal/services"
	"github.com/miradorstack/mirador-oracle/internal/session"
	"github.com/miradorstack/mirador-oracle/internal/transport"
	"github.com/miradorstack/mirador-oracle/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-oracle",
		slog.String("address", cfg.Server.Address),
		slog.String("environment", cfg.Engine.Environment),
		slog.Bool("edit_tools", cfg.Engine.AllowEditTools()),
		slog.Bool("auto_respond", cfg.Behavior.AutoRespond),
		slog.Bool("auto_remediate", cfg.Behavior.AutoRemediate),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var execOpts []executor.Option
	if cfg.Engine.ContextPath != "" {
		topology, err := executor.LoadTopology(cfg.Engine.ContextPath)
		if err != nil {
			logger.Error("failed to load infrastructure context", slog.String("path", cfg.Engine.ContextPath), slog.Any("error", err))
			os.Exit(1)
		}
		execOpts = append(execOpts, executor.WithTopology(topology))
	}
	exec := executor.New(cfg.Engine, logger, execOpts...)
	if err := exec.Preflight(); err != nil {
		logger.Error("engine executable not available", slog.String("binary", cfg.Engine.Binary), slog.Any("error", err))
		os.Exit(1)
	}

	costs := ledger.New(func(scope ledger.Scope, amount float64) {
		metrics.ObserveCost(string(scope), amount)
	})
	sessions := session.NewStore(cfg.Sessions.Timeout)
	gate := approval.NewGate(approval.OnDecision(func(req approval.Request) {
		metrics.ObserveApproval(string(req.Decision.Outcome), string(req.Decision.Reason))
		logger.Info("approval resolved",
			slog.String("request_id", req.ID),
			slog.String("outcome", string(req.Decision.Outcome)),
			slog.String("reason", string(req.Decision.Reason)),
		)
	}))

	notifiers := transport.Fanout{transport.NewLogNotifier(logger)}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, transport.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout, cfg.Transport.EmbedLimit))
	}

	runbooks, err := engine.NewRunbooks(cfg.Runbooks.Path, logger)
	if err != nil {
		logger.Error("failed to load runbooks", slog.String("path", cfg.Runbooks.Path), slog.Any("error", err))
		os.Exit(1)
	}

	coordinator := engine.NewCoordinator(logger, *cfg, exec, costs, notifiers, runbooks, gate)
	assistant := engine.NewAssistant(logger, *cfg, exec, sessions, costs)
	remediator := engine.NewRemediator(logger, *cfg, exec, gate, costs, coordinator, notifiers)

	var dedupe cache.Provider = cache.NewMemoryProvider(nil)
	if cfg.Intake.Valkey.Addr != "" {
		dialCtx, cancelDial := context.WithTimeout(context.Background(), 5*time.Second)
		shared, err := cache.NewValkeyProvider(dialCtx, cfg.Intake.Valkey)
		cancelDial()
		if err != nil {
			logger.Error("failed to connect to valkey", slog.String("addr", cfg.Intake.Valkey.Addr), slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("alert dedupe shared through valkey", slog.String("addr", cfg.Intake.Valkey.Addr))
		dedupe = cache.Namespaced{Provider: shared, Prefix: "mirador-oracle:"}
	}
	defer dedupe.Close()

	oracleService, err := services.NewOracleService(logger, *cfg, services.Deps{
		Coordinator: coordinator,
		Assistant:   assistant,
		Remediator:  remediator,
		Gate:        gate,
		Runbooks:    runbooks,
		Latency:     exec,
		Dedupe:      dedupe,
	})
	if err != nil {
		logger.Error("failed to build oracle service", slog.Any("error", err))
		os.Exit(1)
	}

	server, err := api.NewServer(cfg.Server, oracleService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if cfg.Runbooks.Watch && runbooks != nil {
		g.Go(func() error {
			if err := runbooks.Watch(gctx); err != nil {
				logger.Warn("runbook watcher stopped", slog.Any("error", err))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("gRPC server listening", slog.String("address", server.Address()))
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
		if err := coordinator.Shutdown(shutdownCtx); err != nil {
			logger.Warn("incidents still running at shutdown", slog.Any("error", err))
		}

		if metricsServer != nil {
			metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelMetrics()
			if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server shutdown", slog.Any("error", err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("oracle exited", slog.Any("error", err))
	}

	logger.Info("mirador-oracle stopped",
		slog.Float64("total_cost_usd", costs.Total()),
		slog.Int("incidents", coordinator.Stats().Total),
	)
}
