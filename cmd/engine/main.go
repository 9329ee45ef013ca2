// Command engine is the trading engine's single executable: it loads
// configuration, wires the Event Queue, Order & Position Manager, Engine
// Core, Scripting Interface, and the mode-appropriate market-data/execution
// adapters, then runs until SIGINT.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestreltrading/engine-core/internal/applog"
	"github.com/kestreltrading/engine-core/internal/config"
	"github.com/kestreltrading/engine-core/internal/engine"
	"github.com/kestreltrading/engine-core/internal/events"
	"github.com/kestreltrading/engine-core/internal/marketdata"
	"github.com/kestreltrading/engine-core/internal/metrics"
	"github.com/kestreltrading/engine-core/internal/orders"
	"github.com/kestreltrading/engine-core/internal/risk"
	"github.com/kestreltrading/engine-core/internal/scripting"
)

const eventQueueBuffer = 1024

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func run() error {
	configPath := "configs/config.yaml"
	if v := os.Getenv("ENGINE_CONFIG_PATH"); v != "" {
		configPath = v
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger, logErr := applog.New(cfg.EngineSettings.LogFilePath, cfg.EngineSettings.LogLevel, cfg.EngineSettings.LogFormat)
	if logErr != nil {
		logger.Warn().Err(logErr).Msg("falling back to stdout-only logging")
	}
	logger.Info().Str("mode", cfg.EngineSettings.Mode).Msg("engine starting")

	engineMetrics := metrics.New("engine_core")

	riskChecker := risk.NewChecker(risk.Limits{
		MaxOrderSize:        cfg.RiskManagement.MaxOrderSize,
		MaxPositionValueUSD: cfg.RiskManagement.MaxPositionValueUSD,
	}, logger)

	orderManager := orders.NewManager(logger, engineMetrics)
	orderManager.SetRiskChecker(riskChecker)

	queue := events.NewQueue(eventQueueBuffer, logger, engineMetrics)
	defer queue.Close()

	mode := engine.ModeMock
	if cfg.EngineSettings.Mode == "live" {
		mode = engine.ModeLive
	}
	core := engine.New(mode, queue, orderManager, logger)

	scriptingIface := scripting.New(queue.Sender(), mode == engine.ModeMock, logger)
	core.SetPublisher(scriptingIface)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mockHandler *marketdata.MockHandler
	if mode == engine.ModeMock {
		mockHandler = marketdata.NewMockHandler("data/mock_ticks.csv", queue.Sender(), logger)
		scriptingIface.SetMockFeedStarter(mockHandler)
		if err := mockHandler.Connect(ctx); err != nil {
			return fmt.Errorf("mock market data handler failed to connect: %w", err)
		}
		defer mockHandler.Disconnect()
	} else {
		// No concrete BrokerClient ships with this module: live-mode wiring
		// (internal/marketdata.LiveHandler, internal/execution.LiveHandler)
		// is a contract the engine exposes for an external broker adapter to
		// satisfy, not a vendored implementation. See DESIGN.md.
		return fmt.Errorf("engine_settings.mode=live requires a BrokerClient adapter, none is compiled into this build")
	}

	metricsServer := &http.Server{Addr: cfg.EngineSettings.MetricsAddr, Handler: metricsRouter(core)}
	go func() {
		logger.Info().Str("addr", cfg.EngineSettings.MetricsAddr).Msg("metrics/health server starting")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	publishServer := &http.Server{Addr: cfg.Scripting.PublishEndpoint, Handler: scriptingRouter("publish", scriptingIface.PublishHandler, engineMetrics)}
	go func() {
		logger.Info().Str("addr", cfg.Scripting.PublishEndpoint).Msg("scripting publish endpoint starting")
		if err := publishServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("publish server failed")
		}
	}()

	subscribeServer := &http.Server{Addr: cfg.Scripting.SubscribeEndpoint, Handler: scriptingRouter("subscribe", scriptingIface.SubscribeHandler(ctx), engineMetrics)}
	go func() {
		logger.Info().Str("addr", cfg.Scripting.SubscribeEndpoint).Msg("scripting subscribe endpoint starting")
		if err := subscribeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("subscribe server failed")
		}
	}()

	go core.Run(ctx)

	for _, topic := range cfg.MarketDataSubscriptions {
		core.PostEvent(events.NewSubscribeRequestEvent(topic))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	core.Stop()
	cancel()

	select {
	case <-core.Done():
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("engine core did not stop within the shutdown grace period")
	}

	scriptingIface.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	_ = publishServer.Shutdown(shutdownCtx)
	_ = subscribeServer.Shutdown(shutdownCtx)

	logger.Info().Msg("engine shutdown complete")
	return nil
}

func metricsRouter(core *engine.Core) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-core.Done():
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	return r
}

func scriptingRouter(endpoint string, handler http.HandlerFunc, engineMetrics *metrics.EngineMetrics) http.Handler {
	r := chi.NewRouter()
	r.Get("/", engineMetrics.WrapScriptingEndpoint(endpoint, handler))
	return r
}
