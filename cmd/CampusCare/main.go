package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/CampusCare/internal/api"
	"github.com/BTreeMap/CampusCare/internal/genai"
	"github.com/BTreeMap/CampusCare/internal/store"
	"github.com/BTreeMap/CampusCare/internal/support"
	"github.com/BTreeMap/CampusCare/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CampusCare state data
	DefaultStateDir = "/var/lib/campuscare"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "campuscare.db"
)

// version is set via -ldflags at build time.
var version = "(devel)"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := loadEnvironmentConfig()
	if err := newRootCmd(config).ExecuteContext(ctx); err != nil {
		slog.Error("CampusCare failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// Config holds environment configuration
type Config struct {
	StateDir          string
	DatabaseURL       string
	OpenAIKey         string
	OpenAIModel       string
	APIAddr           string
	ConfigDir         string
	WatchConfig       bool
	MockGenAI         bool
	GenerationTimeout time.Duration
	LogLevel          string
}

// initializeLogger sets up structured logging at the given level
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:          util.GetEnvDefault("CAMPUSCARE_STATE_DIR", DefaultStateDir),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       util.GetEnvDefault("OPENAI_MODEL", genai.DefaultModel),
		APIAddr:           util.GetEnvDefault("API_ADDR", api.DefaultAddr),
		ConfigDir:         os.Getenv("CAMPUSCARE_CONFIG_DIR"),
		WatchConfig:       util.ParseBoolEnv("CAMPUSCARE_WATCH_CONFIG", true),
		MockGenAI:         util.ParseBoolEnv("CAMPUSCARE_MOCK_GENAI", false),
		GenerationTimeout: util.ParseDurationEnv("CAMPUSCARE_GENERATION_TIMEOUT", support.DefaultGenerationTimeout),
		LogLevel:          util.GetEnvDefault("CAMPUSCARE_LOG_LEVEL", "info"),
	}

	slog.Debug("environment variables loaded",
		"CAMPUSCARE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"CAMPUSCARE_CONFIG_DIR", config.ConfigDir,
		"CAMPUSCARE_WATCH_CONFIG", config.WatchConfig,
		"CAMPUSCARE_MOCK_GENAI", config.MockGenAI,
		"CAMPUSCARE_GENERATION_TIMEOUT", config.GenerationTimeout)

	return config
}

// resolveDSN returns DATABASE_URL when set, otherwise a SQLite file in the state directory
func resolveDSN(config Config) string {
	if config.DatabaseURL != "" {
		return config.DatabaseURL
	}
	return filepath.Join(config.StateDir, DefaultDBFileName)
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(dsn string) []store.Option {
	var storeOpts []store.Option
	if dsn == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		storeOpts = append(storeOpts, store.WithPostgresDSN(dsn))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(dsn))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(config Config) []genai.Option {
	var genaiOpts []genai.Option
	if config.OpenAIKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(config.OpenAIKey))
	}
	if config.OpenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(config.OpenAIModel))
	}
	if config.GenerationTimeout > 0 {
		genaiOpts = append(genaiOpts, genai.WithTimeout(config.GenerationTimeout))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config) []api.Option {
	var apiOpts []api.Option
	if config.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(config.APIAddr))
	}
	return apiOpts
}
