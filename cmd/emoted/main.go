// emoted: facial expression daemon
// Captures stills, classifies expressions and emits emotion change events
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-emote/internal/config"
	applog "github.com/teslashibe/go-emote/internal/log"
)

var (
	version     = "0.1.0"
	configPath  = flag.String("config", os.Getenv("EMOTE_CONFIG"), "path to the YAML configuration file")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("emoted", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "emoted: %v\n", err)
		os.Exit(1)
	}

	level, _ := applog.ParseLevel(cfg.Server.LogLevel)
	logger := applog.New(os.Stdout, level, cfg.Server.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	logger.Info("emoted starting",
		"version", version,
		"listen", cfg.Server.Listen,
		"sessions", len(cfg.Sessions),
		"estimators", len(cfg.Estimators),
	)

	runErr := d.run(ctx)
	if err := d.close(context.Background()); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	if runErr != nil {
		logger.Error("emoted stopped", "error", runErr)
		os.Exit(1)
	}
	logger.Info("emoted stopped")
}
