package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/clustereye/collector/internal/collector"
	"github.com/clustereye/collector/internal/config"
	"github.com/clustereye/collector/internal/history"
	"github.com/clustereye/collector/internal/logging"
	"github.com/clustereye/collector/internal/meta"
	"github.com/clustereye/collector/internal/models"
	"github.com/clustereye/collector/internal/monitor"
	"github.com/clustereye/collector/internal/queue"
	"github.com/clustereye/collector/internal/registry"
	"github.com/clustereye/collector/internal/router"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Collector service starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Connect to etcd
	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Etcd.Endpoints,
		DialTimeout: cfg.Etcd.DialTimeout,
		Username:    cfg.Etcd.Username,
		Password:    cfg.Etcd.Password,
	})
	if err != nil {
		logger.Fatal("Failed to connect to etcd", "error", err)
	}
	defer func() { _ = etcdClient.Close() }()
	logger.Info("Connected to etcd", "endpoints", cfg.Etcd.Endpoints)

	// 4. Register the collector instance
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	registration := registry.NewCollectorRegistration(etcdClient, models.CollectorInfo{
		ID:      cfg.Collector.AppName,
		Address: address,
		Status:  "active",
		Version: Version,
	}, logger)

	if err := registration.Register(ctx); err != nil {
		logger.Fatal("Failed to register collector", "error", err)
	}
	defer func() {
		deregCtx, deregCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer deregCancel()
		if err := registration.Deregister(deregCtx); err != nil {
			logger.Error("Failed to deregister collector", "error", err)
		}
	}()

	// 5. Merge discovered storage nodes into the configured node list
	discovery := registry.NewNodeDiscovery(etcdClient, logger)
	discoverCtx, discoverCancel := context.WithTimeout(ctx, 5*time.Second)
	discovered, err := discovery.ListNodes(discoverCtx)
	discoverCancel()
	if err != nil {
		logger.Warn("Storage node discovery failed, using configured nodes only", "error", err)
	}
	configured := len(cfg.Collector.Nodes)
	known := make(map[string]bool, configured)
	for _, node := range cfg.Collector.Nodes {
		known[node.Key()] = true
	}
	for _, node := range discovered {
		addr := config.NodeAddr{Host: node.Host, Port: node.Port, Family: node.Family}
		if !known[addr.Key()] {
			cfg.Collector.Nodes = append(cfg.Collector.Nodes, addr)
			known[addr.Key()] = true
		}
	}
	logger.Info("Node list resolved",
		"configured", configured, "discovered", len(discovered), "total", len(cfg.Collector.Nodes))

	// 6. Connect the snapshot event publisher
	publisher, err := queue.NewPublisher(cfg.Queue)
	if err != nil {
		logger.Warn("Queue unavailable, snapshot events disabled", "error", err)
		publisher = nil
	} else {
		defer func() { _ = publisher.Close() }()
	}

	// 7. Build the collection core. The storage-protocol client is provided
	// by the deployment; without it metadata reads fail per-group and the
	// affected groups keep their previous metadata.
	statClient := monitor.NewClient(cfg.Collector)
	session := meta.NewDisconnectedSession()

	core := collector.New(cfg.Collector, statClient, session, publisher, logger)
	go core.Run(ctx)

	// 8. Serve the HTTP API
	app, routerHandler := router.New(logger, core)
	if cfg.Metadata.URL != "" {
		historyCtx, historyCancel := context.WithTimeout(ctx, cfg.Metadata.ConnectTimeout)
		historyReader, err := history.NewReader(historyCtx, cfg.Metadata, logger)
		historyCancel()
		if err != nil {
			logger.Warn("History database unavailable", "error", err)
		} else {
			defer func() {
				closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer closeCancel()
				_ = historyReader.Close(closeCtx)
			}()
			routerHandler.SetHistorySource(historyReader)
		}
	}
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
		logger.Info("Server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	logger.Info("Collector service started",
		"nodes", len(cfg.Collector.Nodes),
		"monitor_port", cfg.Collector.MonitorPort,
		"refresh_period", cfg.Collector.RefreshPeriod)

	waitForShutdown(logger, cancel)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}

	logger.Info("Collector service stopped")
}

// waitForShutdown waits for interrupt signal and triggers graceful shutdown
func waitForShutdown(logger *logging.Logger, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig.String())
	cancel()

	// Give some time for graceful shutdown
	time.Sleep(2 * time.Second)
}
