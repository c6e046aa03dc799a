package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/spf13/cobra"
)

var (
	configFile string
	cacheDir   string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "imgcache",
		Short:         "Tiered image cache tool",
		Long:          "Warm, inspect and clear an image cache directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "dir", "", "Cache directory, overrides disk.dir")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(warmCmd(), statsCmd(), clearCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Cache, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadConfig(configFile); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if cacheDir != "" {
		cfg.Disk.Dir = cacheDir
	}
	// a one-shot command has nothing to report periodically
	cfg.Telemetry = nil
	cfg.AdjustConfig()
	return cfg, nil
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With("service", "imgcache")
}
