// Package main is the entry point for the item tracker server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/itemtracker/internal/app"
	"github.com/vyrodovalexey/itemtracker/internal/auth"
	"github.com/vyrodovalexey/itemtracker/internal/config"
	"github.com/vyrodovalexey/itemtracker/internal/kv"
	"github.com/vyrodovalexey/itemtracker/internal/server"
	"github.com/vyrodovalexey/itemtracker/internal/storage"
	"github.com/vyrodovalexey/itemtracker/internal/view"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// The configured logger needs the config.
		basicLogger, _ := zap.NewProduction()
		basicLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.Strings("cors_origins", cfg.CORSOrigins),
		zap.String("auth_mode", cfg.AuthMode),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.String("storage_key", cfg.StorageKey),
	)

	authenticator, err := createAuthenticator(cfg, logger)
	if err != nil {
		logger.Error("failed to create authenticator", zap.Error(err))
		return 1
	}

	application, err := newApplication(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to start tracker", zap.Error(err))
		return 1
	}
	defer func() {
		if err := application.close(); err != nil {
			logger.Warn("error releasing storage", zap.Error(err))
		}
	}()

	srv := server.New(cfg, logger, application.deps(authenticator))

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return 1
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return 1
		}
	}

	logger.Info("server stopped")
	return 0
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}

// createAuthenticator creates an authenticator based on the config auth
// mode. It returns nil when authentication is disabled.
func createAuthenticator(cfg *config.Config, logger *zap.Logger) (auth.Authenticator, error) {
	authenticator, err := auth.New(cfg.AuthMode, cfg.BasicAuthUsers, cfg.APIKeys)
	if err != nil {
		return nil, fmt.Errorf("creating %s authenticator: %w", cfg.AuthMode, err)
	}

	if authenticator == nil {
		logger.Info("authentication disabled")
		return nil, nil
	}

	logger.Info("authentication enabled", zap.String("scheme", string(authenticator.Scheme())))
	return authenticator, nil
}

// application is the running tracker: storage, presentation and the
// controller that ties them together.
type application struct {
	store   kv.Store
	backend *storage.Items
	bus     *view.Bus
	surface *view.View
	ctrl    *app.Controller
}

// newApplication opens storage and loads the saved items.
func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	store, err := kv.Open(kv.Options{
		Backend:  cfg.StorageBackend,
		Path:     cfg.StoragePath,
		RedisURL: cfg.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.StorageBackend, err)
	}

	backend := storage.NewItems(store, cfg.StorageKey)
	bus := view.NewBus(logger)
	surface := view.New(bus, logger)

	ctrl, err := app.New(ctx, backend, surface, logger)
	if err != nil {
		return nil, errors.Join(err, bus.Close(), store.Close())
	}

	return &application{
		store:   store,
		backend: backend,
		bus:     bus,
		surface: surface,
		ctrl:    ctrl,
	}, nil
}

func (a *application) deps(authenticator auth.Authenticator) server.Deps {
	return server.Deps{
		Tracker:       a.ctrl,
		Views:         a.surface,
		Subscriber:    a.bus,
		Pinger:        a.backend,
		Authenticator: authenticator,
	}
}

// close stops view delivery before releasing storage.
func (a *application) close() error {
	return errors.Join(a.bus.Close(), a.store.Close())
}
