package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"optimal-protocol-sync/internal/config"
	"optimal-protocol-sync/internal/handlers"
	"optimal-protocol-sync/internal/metrics"
	"optimal-protocol-sync/internal/middleware"
	"optimal-protocol-sync/internal/reaper"
	"optimal-protocol-sync/internal/remote"
)

func main() {
	runOnce := flag.Bool("run-once", false, "Run a single vital-signs check and exit")
	flag.Parse()

	if *runOnce {
		runOnceAndExit()
		return
	}

	runServer()
}

// runOnceAndExit executes one vital-signs check, prints the report, and
// exits. Intended for external schedulers and manual runs.
func runOnceAndExit() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	cfg, err := config.LoadService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	r := reaper.New(remote.NewClient(cfg.RemoteURL, cfg.ServiceRoleKey))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := r.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Vital-signs check failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Checked %d candidate(s), %d casualt(y/ies)\n", report.Checked, len(report.Casualties))
	for _, id := range report.Casualties {
		fmt.Printf("  DEAD: %s\n", id)
	}
}

func runServer() {
	cfg, err := config.LoadService()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting optimal-protocol-sync vital-signs service",
		"host", cfg.Host,
		"port", cfg.Port,
		"remote", cfg.RemoteURL,
		"schedule", cfg.ReaperSchedule,
		"log_level", cfg.LogLevel)

	r := reaper.New(remote.NewClient(cfg.RemoteURL, cfg.ServiceRoleKey))
	vitalsHandler := handlers.NewVitalsHandler(r, cfg)

	// Scheduled reap. The HTTP trigger stays available as a backup path.
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.ReaperSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if _, err := r.Run(ctx); err != nil {
			logger.Error("Scheduled vital-signs check failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("Invalid reaper schedule", "schedule", cfg.ReaperSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	mux := http.NewServeMux()
	mux.Handle("/check-vital-signs", middleware.WrapHandler(metrics.EndpointCheckVitalSigns, vitalsHandler.HandleCheck))
	mux.Handle("/health", middleware.WrapHandler(metrics.EndpointHealth, vitalsHandler.HandleHealth))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second, // A triggered check can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Start metrics server if enabled
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsAddr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
		metricsServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("Server stopped")
}
