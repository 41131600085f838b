// Package main is the entry point for the reverse proxy.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/avrproxy/internal/config"
	"github.com/vyrodovalexey/avrproxy/internal/observability"
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
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, flags, logger)
	logger = observability.GetGlobalLogger()

	app := newApplication(cfg, logger)
	if err := app.run(flags.configPath); err != nil {
		logger.Fatal("proxy exited with error", observability.Error(err))
	}
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AVRPROXY_CONFIG_PATH", "configs/proxy.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("AVRPROXY_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AVRPROXY_LOG_FORMAT", ""),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

func printVersion() {
	fmt.Printf("avrproxy version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger. Flag values win over the config
// file; the config file is re-checked after loading.
func initLogger(flags cliFlags) observability.Logger {
	cfg := observability.DefaultLogConfig()
	if flags.logLevel != "" {
		cfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Format = flags.logFormat
	}

	logger, err := observability.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration, and
// rebuilds the logger when the file configures logging and no flag
// overrode it.
func loadAndValidateConfig(configPath string, flags cliFlags, logger observability.Logger) *config.Config {
	logger.Info("starting avrproxy",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	resolved, err := config.ResolvePath(configPath)
	if err != nil {
		logger.Fatal("configuration not found", observability.Error(err))
	}

	cfg, err := config.Load(resolved)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}
	if err := config.Validate(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	if flags.logLevel == "" && flags.logFormat == "" {
		fileLogger, err := observability.NewLogger(observability.LogConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.OutputPath,
		})
		if err == nil {
			observability.SetGlobalLogger(fileLogger)
		}
	}

	return cfg
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, def string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return def
}
