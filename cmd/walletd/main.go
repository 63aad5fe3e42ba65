package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"walletd/go-backend/internal/composition/walletserver"
	"walletd/go-backend/internal/daemon/mockcontrol"
	"walletd/go-backend/internal/daemonconfig"
	"walletd/go-backend/internal/platform/privacylog"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to walletd.yaml (optional)")
	dataDir := flag.String("data-dir", "", "Directory for wallet data (optional)")
	backend := flag.String("backend", "", "Wallet backend override: mock")
	metricsAddr := flag.String("metrics-addr", "127.0.0.1:9464", "Metrics and health listen address, empty to disable")
	flag.Parse()
	if *showVersion {
		fmt.Printf("walletd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	if *dataDir != "" {
		_ = os.Setenv("WALLETD_DATA_DIR", *dataDir)
	}
	if *backend != "" {
		_ = os.Setenv("WALLETD_BACKEND", *backend)
	}
	cfg, err := daemonconfig.LoadFromPath(*configPath)
	if err != nil {
		log.Fatalf("walletd failed to load config: %v", err)
	}

	logger := privacylog.NewJSONLogger(os.Stderr, privacylog.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := walletserver.New(cfg, mockcontrol.NewLauncher(), *metricsAddr, logger)
	logger.Info("walletd starting", "network", cfg.Network, "backend", cfg.Backend)
	if err := srv.Run(ctx); err != nil {
		logger.Error("walletd failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("walletd stopped")
}
