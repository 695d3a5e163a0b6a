package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/davidahmann/strix/internal/api"
	"github.com/davidahmann/strix/internal/config"
	"github.com/davidahmann/strix/internal/decisionlog"
	"github.com/davidahmann/strix/internal/logging"
	"github.com/davidahmann/strix/internal/metrics"
	"github.com/davidahmann/strix/internal/policy"
	"go.uber.org/zap"
)

const (
	defaultAddr           = ":8080"
	defaultDecisionLogDir = "logs"
	shutdownTimeout       = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runFn(ctx, os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("strix-kernel: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

type envFn func(string) string
type listenFn func(*http.Server) error

// serverFactory builds the server; the returned cleanup releases what it opened.
type serverFactory func(ctx context.Context, cfg config.Config, getenv envFn, logger *zap.Logger) (*http.Server, func(), error)

func newServer(ctx context.Context, cfg config.Config, getenv envFn, logger *zap.Logger) (*http.Server, func(), error) {
	var recorder *metrics.Recorder
	opts := []policy.Option{
		policy.WithPath(cfg.Policy.Path),
		policy.WithGetenv(getenv),
		policy.WithLogger(logger.Named("policy")),
	}
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder(cfg.Metrics.Namespace, nil)
		opts = append(opts, policy.WithObserver(recorder))
	}
	if cfg.Policy.RequireSource {
		opts = append(opts, policy.RequireSource())
	}

	engine, err := policy.NewEngine(opts...)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("policy engine ready",
		zap.String("origin", string(engine.Origin())),
		zap.String("source", engine.Location()),
		zap.String("policy_version", engine.Version()),
	)

	sink, err := openSink(ctx, cfg.DecisionLog)
	if err != nil {
		return nil, nil, fmt.Errorf("decision log: %w", err)
	}
	cleanup := func() {
		if sink != nil {
			_ = sink.Close()
		}
	}

	h := &api.Handler{Engine: engine, Logger: logger.Named("api")}
	var metricsHandler http.Handler
	if recorder != nil {
		recorder.PolicyLoaded()
		metricsHandler = recorder.Handler()
		h.LogObserver = recorder
	}
	if sink != nil {
		h.Log = sink
		pruner := decisionlog.NewPruner(sink, cfg.DecisionLog.RetentionDays, logger.Named("retention"))
		scheduler := decisionlog.NewScheduler(pruner, cfg.DecisionLog.PruneSchedule)
		if err := scheduler.Start(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanup = func() {
			scheduler.Stop()
			_ = sink.Close()
		}
	}

	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h, metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}, cleanup, nil
}

func run(ctx context.Context, args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("strix-kernel", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to strix config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := resolveConfig(firstNonEmpty(*configPath, getenv("STRIX_CONFIG_PATH")), getenv)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	server, cleanup, err := factory(ctx, cfg, getenv, logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("strix-kernel listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("decision_log", cfg.DecisionLog.Driver),
	)
	if err := listen(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// resolveConfig layers environment over the config file over defaults.
func resolveConfig(path string, getenv envFn) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	cfg.ListenAddr = firstNonEmpty(getenv("STRIX_LISTEN_ADDR"), cfg.ListenAddr, defaultAddr)
	cfg.Log.Level = firstNonEmpty(getenv("STRIX_LOG_LEVEL"), cfg.Log.Level)

	dl := &cfg.DecisionLog
	dl.Driver = firstNonEmpty(getenv("STRIX_DECISION_LOG_DRIVER"), dl.Driver, "file")
	dl.Dir = firstNonEmpty(getenv("STRIX_DECISION_LOG_DIR"), dl.Dir, defaultDecisionLogDir)
	dl.DSN = firstNonEmpty(getenv("STRIX_DECISION_LOG_DSN"), dl.DSN)
	dl.PruneSchedule = firstNonEmpty(getenv("STRIX_DECISION_LOG_PRUNE_SCHEDULE"), dl.PruneSchedule, decisionlog.DefaultPruneSchedule)
	if raw := getenv("STRIX_DECISION_LOG_RETENTION_DAYS"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return config.Config{}, fmt.Errorf("STRIX_DECISION_LOG_RETENTION_DAYS: %w", err)
		}
		dl.RetentionDays = days
	}

	if getenv("STRIX_METRICS_ENABLED") == "true" {
		cfg.Metrics.Enabled = true
	}
	cfg.Metrics.Namespace = firstNonEmpty(cfg.Metrics.Namespace, metrics.DefaultNamespace)

	return cfg, cfg.Validate()
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
