package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Flag defaults come from config, so
// flags override environment variables.
func newRootCmd(config Config) *cobra.Command {
	cfg := config
	root := &cobra.Command{
		Use:           "CampusCare",
		Short:         "Student mental-health screening and escalation service",
		Long:          "CampusCare scores screening questionnaires, classifies chat messages for crisis language and escalates sessions to the counselling team.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initializeLogger(cfg.LogLevel)
		},
	}

	root.PersistentFlags().StringVar(&cfg.ConfigDir, "config-dir", cfg.ConfigDir, "directory holding instruments.yaml and safety.yaml (overrides $CAMPUSCARE_CONFIG_DIR)")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error (overrides $CAMPUSCARE_LOG_LEVEL)")

	root.AddCommand(newServeCmd(&cfg))
	root.AddCommand(newScoreCmd(&cfg))
	root.AddCommand(newClassifyCmd(&cfg))
	root.AddCommand(newCheckConfigCmd(&cfg))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "CampusCare", version)
		},
	})
	return root
}
