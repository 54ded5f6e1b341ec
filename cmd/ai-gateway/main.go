/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

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

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/admin"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/config"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/llm"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/llm/anthropic"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/metrics"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/statemanager"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/tracing"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/xdsclient"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile      = flag.String("config", "", "Path to configuration file (required)")
	xdsServerAddr   = flag.String("xds-server", "", "xDS server address (e.g., localhost:15010)")
	localConfigPath = flag.String("local-config", "", "Path to local gateway config YAML (enables file mode)")
)

func main() {
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Usage: %s -config <path-to-config.toml>\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration from %s: %v\n", *configFile, err)
		os.Exit(1)
	}

	applyFlagOverrides(cfg)

	logger := setupLogger(cfg)
	slog.SetDefault(logger)
	ctx := context.Background()

	slog.InfoContext(ctx, "AI Gateway starting",
		"version", Version,
		"git_commit", GitCommit,
		"build_date", BuildDate,
		"config_file", *configFile,
		"xds_enabled", cfg.Gateway.XDS.Enabled,
		"local_config", cfg.Gateway.LocalConfig.Path)

	// Initialize metrics immediately so they're available throughout the
	// codebase
	metrics.Init()

	tracingShutdown, err := tracing.InitTracer(cfg)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer tracingShutdown()

	// Wire the configuration sources into the state manager
	opts := statemanager.Options{
		LocalPath: cfg.Gateway.LocalConfig.Path,
	}
	if cfg.Gateway.XDS.Enabled {
		opts.XDS = buildXDSConfig(cfg)
	}

	manager, err := statemanager.New(opts)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to initialize state manager", "error", err)
		os.Exit(1)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_ = manager.Run(runCtx)
	}()

	// Build the LLM chat-completions proxy
	provider := anthropic.New(anthropic.Config{
		Host:   cfg.Gateway.LLM.Host,
		Model:  cfg.Gateway.LLM.Model,
		APIKey: cfg.Gateway.LLM.APIKey,
	})
	proxy := llm.NewChatProxy(provider, &http.Client{
		Timeout: cfg.Gateway.LLM.RequestTimeout,
	})

	mux := http.NewServeMux()
	mux.Handle("/v1/chat/completions", proxy)

	proxyServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Gateway.Proxy.Port),
		Handler:     mux,
		ReadTimeout: cfg.Gateway.Proxy.ReadTimeout,
	}

	// Start admin HTTP server if enabled
	var adminServer *admin.Server
	if cfg.Gateway.Admin.Enabled {
		adminServer = admin.NewServer(&cfg.Gateway.Admin, manager.Stores())
		go func() {
			if err := adminServer.Start(ctx); err != nil {
				slog.ErrorContext(ctx, "Admin server error", "error", err)
			}
		}()
	}

	// Start metrics HTTP server if enabled
	var metricsServer *metrics.Server
	if cfg.Gateway.Metrics.Enabled {
		metricsServer = metrics.NewServer(&cfg.Gateway.Metrics)
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				slog.ErrorContext(ctx, "Metrics server error", "error", err)
			}
		}()
		metrics.StartMemoryMetricsUpdater(runCtx, 15*time.Second)
	}

	// Wait for the initial configuration before accepting traffic
	select {
	case <-manager.Ready():
		slog.InfoContext(ctx, "Initial configuration applied")
	case <-time.After(30 * time.Second):
		slog.WarnContext(ctx, "Timed out waiting for initial configuration, serving anyway")
	}

	serverErrCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Chat completions server listening", "port", cfg.Gateway.Proxy.Port)
		if err := proxyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.InfoContext(ctx, "Received signal, shutting down gracefully", "signal", sig)
	case err := <-serverErrCh:
		slog.ErrorContext(ctx, "Server error", "error", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := proxyServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "Error stopping chat completions server", "error", err)
	}

	if adminServer != nil {
		adminCtx, adminCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer adminCancel()
		if err := adminServer.Stop(adminCtx); err != nil {
			slog.ErrorContext(ctx, "Error stopping admin server", "error", err)
		}
	}

	if metricsServer != nil {
		metricsCtx, metricsCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer metricsCancel()
		if err := metricsServer.Stop(metricsCtx); err != nil {
			slog.ErrorContext(ctx, "Error stopping metrics server", "error", err)
		}
	}

	slog.InfoContext(ctx, "AI Gateway shut down successfully")
}

// applyFlagOverrides applies command-line flag overrides to the configuration
func applyFlagOverrides(cfg *config.Config) {
	if *xdsServerAddr != "" {
		cfg.Gateway.XDS.Enabled = true
		cfg.Gateway.XDS.ServerAddress = *xdsServerAddr
	}
	if *localConfigPath != "" {
		cfg.Gateway.LocalConfig.Path = *localConfigPath
	}
}

// buildXDSConfig maps the file configuration onto the client config
func buildXDSConfig(cfg *config.Config) *xdsclient.Config {
	xds := cfg.Gateway.XDS
	c := xdsclient.NewConfig(xds.ServerAddress, xds.GatewayName, xds.Namespace)
	c.OnDemand = xds.OnDemand
	c.InitialReconnectDelay = xds.InitialReconnectDelay
	c.MaxReconnectDelay = xds.MaxReconnectDelay
	c.TLS = xdsclient.TLSConfig{
		Enabled:  xds.TLS.Enabled,
		CertPath: xds.TLS.CertPath,
		KeyPath:  xds.TLS.KeyPath,
		CAPath:   xds.TLS.CAPath,
	}
	return c
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Gateway.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Gateway.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
