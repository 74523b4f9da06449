package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livepush/internal/core/domain"
	"livepush/internal/core/services"
	httphandlers "livepush/internal/handlers/http"
	capturedev "livepush/internal/infrastructure/capture"
	"livepush/internal/infrastructure/middleware"
	"livepush/internal/infrastructure/monitoring"
	repositories "livepush/internal/infrastructure/repositories"
	"livepush/internal/infrastructure/transport"
	"livepush/pkg/config"
	"livepush/pkg/logger"
	"livepush/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func domainCaptureConfig(cfg *config.Config) domain.CaptureConfig {
	return domain.CaptureConfig{
		SampleRateHz:     cfg.Audio.SampleRateHz,
		ChannelCount:     cfg.Audio.ChannelCount,
		Bitrate:          cfg.Audio.Bitrate,
		BitsPerSample:    cfg.Audio.BitsPerSample,
		BufferDurationMs: cfg.Audio.BufferDurationMs,
	}
}

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/livepush/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "livepush",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Session storage
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	sessionRepo := repoFactory.CreateSessionRepository()

	// Audio pipeline
	audioCfg := domainCaptureConfig(cfg)
	if err := audioCfg.Validate(); err != nil {
		log.Fatalw("invalid audio configuration", "error", err)
	}

	device := capturedev.NewLoopbackDevice(log)
	captureManager := services.NewCaptureLifecycleManager(device, audioCfg, cfg.Health.PollInterval, log)
	healthMonitor := services.NewHealthMonitor(cfg.Health.TickInterval, log)
	synthesizer := services.NewTimestampSynthesizer(log)
	collector := monitoring.NewPrometheusCollector()

	publisher := transport.NewWebRTCPublisher(transport.DefaultPublisherConfig(), log)

	controller := services.NewConnectionController(
		services.ControllerConfig{
			MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
			ReconnectBaseDelay:   cfg.Reconnect.BaseDelay,
			ReconnectMaxDelay:    cfg.Reconnect.MaxDelay,
			RestartPause:         cfg.Reconnect.RestartPause,
			ConnectTimeout:       10 * time.Second,
			StatsInterval:        cfg.Monitoring.StatsInterval,
		},
		captureManager,
		healthMonitor,
		synthesizer,
		publisher,
		collector,
		sessionRepo,
		log,
	)

	// Control API
	controlHandler := httphandlers.NewControlHandler(
		controller, captureManager, healthMonitor, synthesizer, sessionRepo)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware(func() string {
			return controller.State().Load().Phase.String()
		}))
	}
	router.Use(middleware.AuthMiddleware(cfg))

	controlHandler.SetupRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(503, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		c.JSON(200, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting LivePush control server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Bring up the local capture preview immediately; streaming starts on
	// request via the control API.
	if err := controller.StartPreview(); err != nil {
		log.Warnw("preview startup failed", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down LivePush...")

	controller.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("LivePush stopped")
}
