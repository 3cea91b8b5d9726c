// Package main is the entry point for the flowgate API gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/flowgate/internal/config"
	"github.com/vyrodovalexey/flowgate/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags(os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	gin.SetMode(gin.ReleaseMode)

	cfg, err := config.LoadConfig(flags.configPath)
	if err == nil {
		err = config.ValidateConfig(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration %s: %v\n", flags.configPath, err)
		os.Exit(1)
	}

	logger := initLogger(flags, cfg.Logging)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting flowgate",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.Int("apis", len(cfg.APIs)),
	)

	app, err := newApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", observability.Error(err))
	}

	if err := runGateway(context.Background(), app, flags.configPath, logger); err != nil {
		logger.Fatal("gateway failed", observability.Error(err))
	}
}

// parseFlags parses command line flags. Environment variables provide
// the defaults.
func parseFlags(args []string) cliFlags {
	fs := flag.NewFlagSet("flowgate", flag.ExitOnError)
	configPath := fs.String("config", getEnvOrDefault("GATEWAY_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := fs.String("log-level", getEnvOrDefault("GATEWAY_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the configuration")
	logFormat := fs.String("log-format", getEnvOrDefault("GATEWAY_LOG_FORMAT", ""),
		"Log format (json, console); overrides the configuration")
	showVersion := fs.Bool("version", false, "Show version information")
	_ = fs.Parse(args)

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("flowgate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// logConfig merges the logging section with command line overrides.
func logConfig(flags cliFlags, cfg config.LoggingConfig) observability.LogConfig {
	lc := observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	}
	if flags.logLevel != "" {
		lc.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		lc.Format = flags.logFormat
	}
	return lc
}

// initLogger initializes the logger and installs it globally.
func initLogger(flags cliFlags, cfg config.LoggingConfig) observability.Logger {
	logger, err := observability.NewLogger(logConfig(flags, cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}
