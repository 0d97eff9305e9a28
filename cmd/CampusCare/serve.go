package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BTreeMap/CampusCare/internal/api"
	"github.com/BTreeMap/CampusCare/internal/genai"
	"github.com/BTreeMap/CampusCare/internal/lockfile"
	"github.com/BTreeMap/CampusCare/internal/metrics"
	"github.com/BTreeMap/CampusCare/internal/notify"
	"github.com/BTreeMap/CampusCare/internal/registry"
	"github.com/BTreeMap/CampusCare/internal/store"
	"github.com/BTreeMap/CampusCare/internal/support"
	"github.com/spf13/cobra"
)

const outboxPollInterval = 5 * time.Second

func newServeCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the CampusCare HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for CampusCare data (overrides $CAMPUSCARE_STATE_DIR)")
	f.StringVar(&cfg.DatabaseURL, "db-dsn", cfg.DatabaseURL, "PostgreSQL DSN or SQLite path (overrides $DATABASE_URL; default is a SQLite file in the state directory)")
	f.StringVar(&cfg.OpenAIKey, "openai-api-key", cfg.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	f.StringVar(&cfg.OpenAIModel, "openai-model", cfg.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)")
	f.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)")
	f.BoolVar(&cfg.WatchConfig, "watch-config", cfg.WatchConfig, "reload config files when they change (overrides $CAMPUSCARE_WATCH_CONFIG)")
	f.BoolVar(&cfg.MockGenAI, "mock-genai", cfg.MockGenAI, "use a canned reply instead of OpenAI (overrides $CAMPUSCARE_MOCK_GENAI)")
	f.DurationVar(&cfg.GenerationTimeout, "generation-timeout", cfg.GenerationTimeout, "deadline for one text-generation call (overrides $CAMPUSCARE_GENERATION_TIMEOUT)")
	return cmd
}

// runServe wires the store, registry, generator and alerting into the API
// server and blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg Config) error {
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", cfg.StateDir, err)
	}
	dsn := resolveDSN(cfg)
	lock, err := lockfile.ForDSN(dsn)
	if err != nil {
		return err
	}
	defer lock.Release()

	reg, err := registry.Load(cfg.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.WatchConfig && cfg.ConfigDir != "" {
		w, err := registry.NewWatcher(reg, registry.WithReloadHook(metrics.RecordConfigReload))
		if err != nil {
			return err
		}
		w.Start(ctx)
		defer w.Stop()
		slog.Info("Watching configuration directory", "dir", cfg.ConfigDir)
	}

	st, err := store.New(buildStoreOptions(dsn)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	sender := store.NewOutboxSender(st, notify.OutboxHandler(buildNotifier()), outboxPollInterval)
	if err := sender.RecoverStaleMessages(); err != nil {
		slog.Error("Failed to recover stale outbox messages", "error", err)
	}
	go sender.Run(ctx)

	svc := support.NewService(st, reg, buildGenerator(cfg),
		support.WithGenerationTimeout(cfg.GenerationTimeout),
		support.WithCounsellorAlerts(true))
	writerCtx, stopWriter := context.WithCancel(ctx)
	pendingDone := make(chan struct{})
	go func() {
		defer close(pendingDone)
		svc.RunPendingWriter(writerCtx, support.DefaultPendingRetryInterval)
	}()
	// The final retry must finish before the store closes.
	defer func() {
		stopWriter()
		<-pendingDone
	}()

	slog.Info("Bootstrapping CampusCare",
		"version", version,
		"state_dir", cfg.StateDir,
		"catalog_version", reg.Catalog().Version(),
		"lexicon_version", reg.Lexicon().Version())
	return api.NewServer(svc, buildAPIOptions(cfg)...).Run(ctx)
}

// buildGenerator returns the mock, the OpenAI client, or nil when no key is
// configured. A nil generator makes every reply the fallback response.
func buildGenerator(cfg Config) genai.Generator {
	if cfg.MockGenAI {
		slog.Warn("Using mock text generator")
		return genai.NewMockGenerator()
	}
	client, err := genai.NewClient(buildGenAIOptions(cfg)...)
	if err != nil {
		slog.Warn("Text generation disabled, all replies will use the fallback response", "error", err)
		return nil
	}
	return client
}

// buildNotifier returns the Twilio SMS notifier when configured, otherwise a
// notifier that only logs.
func buildNotifier() notify.Notifier {
	n, err := notify.NewTwilioNotifier()
	if err != nil {
		slog.Warn("Counsellor SMS alerts disabled", "reason", err)
		return notify.LogNotifier{}
	}
	return n
}
