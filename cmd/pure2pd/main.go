// Package main provides pure2pd, the Pure2P node daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pure2p/pure2p/internal/app"
	"github.com/pure2p/pure2p/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.pure2p", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		port        = flag.Int("port", 0, "Internal listen port, overrides config and smart-port persistence")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("pure2pd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	configPath := *configFile
	if configPath == "" {
		configPath = app.ConfigPath(*dataDir)
	}

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	cfg.DataDir = *dataDir
	cfg.LogLevel = *logLevel
	if *port != 0 {
		cfg.Port = *port
	}

	log = logging.New(&logging.Config{Level: cfg.LogLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("config loaded", "path", configPath, "data_dir", filepath.Clean(cfg.DataDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal("failed to start node", "error", err)
	}

	state, err := node.LoadState()
	if err != nil {
		log.Fatal("failed to load node state", "error", err)
	}
	printBanner(log, state)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	if err := node.Close(); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	log.Info("goodbye")
}

func printBanner(log *logging.Logger, state *app.StateResult) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  Pure2P Node")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  UID: %s", state.UID)
	if state.ExternalIP != "" {
		log.Infof("  Reachable at: %s:%d", state.ExternalIP, state.ExternalPort)
	} else {
		log.Info("  Reachable at: connectivity probe in progress")
	}
	log.Infof("  Contacts: %d | Chats: %d", len(state.Contacts), len(state.Chats))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
