// Command agentsim is the SNMP agent simulator binary.
//
// It loads YAML configuration from a directory named by an environment
// variable (or a command-line flag override), builds the full pipeline, and
// runs until interrupted (SIGINT / SIGTERM).
//
// Usage:
//
//	agentsim [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mocksnmp/agentsim/pkg/agentsim/app"
	"github.com/mocksnmp/agentsim/pkg/agentsim/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentsim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		logLevel    string
		logFmt      string
		engineID    string
		persistPath string
		tickMS      int
		busCapacity int
		configRoot  string
	)

	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")
	flag.StringVar(&engineID, "engine.id", "", "Simulator SNMPv3 engine ID (default: agentsim-simulator)")
	flag.StringVar(&persistPath, "persist.path", "", "Write-cache durability file (default: agentsim_writecache.log)")
	flag.IntVar(&tickMS, "sim.tick.ms", 100, "Simulation Engine tick granularity in milliseconds")
	flag.IntVar(&busCapacity, "events.bus.capacity", 256, "Per-topic event bus ring buffer capacity")
	flag.StringVar(&configRoot, "config.root", "", "Override AGENTSIM_CONFIG_DIRECTORY_PATH")

	flag.Parse()

	logger, err := buildLogger(logLevel, logFmt)
	if err != nil {
		return err
	}

	paths := config.PathsFromEnv()
	applyPathOverrides(&paths, configRoot)

	cfg := app.Config{
		ConfigPaths:      paths,
		EngineID:         engineID,
		PersistPath:      persistPath,
		TickInterval:     millisToDuration(tickMS),
		EventBusCapacity: busCapacity,
	}

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	logger.Info("agentsim: running — press Ctrl-C to stop")

	<-ctx.Done()
	logger.Info("agentsim: received shutdown signal")

	application.Stop()
	return nil
}

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}

func applyPathOverrides(p *config.Paths, root string) {
	if root != "" {
		p.Root = root
	}
}

func millisToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
