package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	pkgch "DepthWatch/pkg/clickhouse"
	"DepthWatch/pkg/config"
	xhttp "DepthWatch/pkg/http"
	pkgkafka "DepthWatch/pkg/kafka"
	applogger "DepthWatch/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Detector is the orchestrator surface the app lifecycle needs.
type Detector interface {
	Start(ctx context.Context, symbols []string) error
	StopAll()
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	detector   Detector
	handler    xhttp.Handler
	chClient   *pkgch.Client
	producer   *pkgkafka.Producer
	redisCli   *redis.Client
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	detector Detector,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	redisCli *redis.Client,
) *App {
	return &App{
		cfg:      cfg,
		logger:   l,
		detector: detector,
		handler:  handler,
		chClient: chClient,
		producer: producer,
		redisCli: redisCli,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if err := a.detector.Start(ctx, a.cfg.Exchange.Symbols); err != nil {
		a.logger.Error("detector start error", applogger.Error(err))
		return err
	}
	a.logger.Info("detector running", applogger.Strings("symbols", a.cfg.Exchange.Symbols))

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.detector.StopAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.redisCli != nil {
		if err := a.redisCli.Close(); err != nil {
			a.logger.Warn("redis close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
