package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ammlsh/ammlsh/internal/config"
)

func main() {
	// Define command-line flags
	configPath := flag.String("config", "", "Path to TOML configuration file (default: ~/.config/ammlsh/config.toml)")
	watchDirsFlag := flag.String("watch-dirs", "", "Comma-separated list of directories to watch for swap datasets")
	socketPath := flag.String("socket", "", "Unix socket path for IPC")
	outputDir := flag.String("output-dir", "", "Directory for generated reports")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")

	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	cfg, err := buildConfig(*configPath, *watchDirsFlag, *socketPath, *outputDir)
	if err != nil {
		logger.Error("failed to build configuration", "error", err)
		os.Exit(1)
	}

	paths := config.DefaultPaths()
	if err := paths.EnsureDirectories(); err != nil {
		logger.Error("failed to create directories", "error", err)
		os.Exit(1)
	}

	daemon, err := NewDaemon(cfg, logger)
	if err != nil {
		logger.Error("failed to create daemon", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	logger.Info("starting ammlsh daemon",
		"watchDirs", cfg.Daemon.Directories,
		"socket", cfg.Daemon.Socket,
		"outputDir", cfg.Daemon.OutputDir,
		"bits", cfg.LSH.Bits,
		"hash", cfg.LSH.Hash,
		"mode", cfg.LSH.Mode,
	)

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon error", "error", err)
		os.Exit(1)
	}

	logger.Info("daemon stopped gracefully")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildConfig loads the configuration file and applies flag overrides.
func buildConfig(configPath, watchDirs, socketPath, outputDir string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.DefaultPaths().ConfigFile
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if watchDirs != "" {
		dirs := strings.Split(watchDirs, ",")
		for i, dir := range dirs {
			dirs[i] = config.ExpandPath(strings.TrimSpace(dir))
		}
		cfg.Daemon.Directories = dirs
	}

	if socketPath != "" {
		cfg.Daemon.Socket = config.ExpandPath(socketPath)
	}

	if outputDir != "" {
		cfg.Daemon.OutputDir = config.ExpandPath(outputDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
