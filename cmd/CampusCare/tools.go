package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/CampusCare/internal/catalog"
	"github.com/BTreeMap/CampusCare/internal/lexicon"
	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/BTreeMap/CampusCare/internal/registry"
	"github.com/BTreeMap/CampusCare/internal/screening"
	"github.com/spf13/cobra"
)

func newScoreCmd(cfg *Config) *cobra.Command {
	var instrumentID, responses string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a questionnaire offline",
		Example: "  CampusCare score --instrument phq9 --responses 0,1,2,1,0,0,1,2,1",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(cfg.ConfigDir)
			if err != nil {
				return err
			}
			inst, err := reg.Catalog().Get(instrumentID)
			if err != nil {
				return err
			}
			rs, err := parseResponses(responses)
			if err != nil {
				return err
			}
			result, err := screening.Evaluate(inst, "", rs, time.Now())
			if err != nil {
				return err
			}
			rec := screening.Recommend(result.Band, reg.Catalog().Recommendations())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d/%d\n", inst.Name, result.Score, result.MaxScore)
			fmt.Fprintf(out, "Band: %s (%s)\n", result.Band.Label, result.Band.Urgency)
			fmt.Fprintf(out, "Tier: %s\n", rec.Tier)
			for _, item := range rec.Items {
				fmt.Fprintf(out, "  - %s\n", item)
			}
			if notice := screening.SafetyNoticeFor(inst, result.Score, reg.SafetyNotice()); notice != nil {
				fmt.Fprintf(out, "Safety notice: %s\n", notice.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&instrumentID, "instrument", "", "instrument id, e.g. phq9")
	cmd.Flags().StringVar(&responses, "responses", "", "comma-separated answers in question order, each 0-3")
	cmd.MarkFlagRequired("instrument")
	cmd.MarkFlagRequired("responses")
	return cmd
}

// parseResponses turns "0,1,2" into a response set keyed by question index.
func parseResponses(s string) (models.ResponseSet, error) {
	rs := make(models.ResponseSet)
	if strings.TrimSpace(s) == "" {
		return rs, nil
	}
	for i, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("answer %d: %q is not a number", i, part)
		}
		rs[i] = v
	}
	return rs, nil
}

func newClassifyCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Classify a message for crisis language",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(cfg.ConfigDir)
			if err != nil {
				return err
			}
			m := reg.Lexicon().Match(strings.Join(args, " "))
			fmt.Fprintf(cmd.OutOrStdout(), "Priority: %s\n", m.Priority)
			if m.Term != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Matched: %s\n", m.Term)
			}
			return nil
		},
	}
}

func newCheckConfigCmd(cfg *Config) *cobra.Command {
	var writeDefaults bool
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the instrument catalog and safety lexicon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if writeDefaults {
				if cfg.ConfigDir == "" {
					return fmt.Errorf("--write-defaults needs --config-dir")
				}
				if err := writeDefaultConfig(cfg.ConfigDir); err != nil {
					return err
				}
			}
			snap, err := registry.LoadSnapshot(cfg.ConfigDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog %s: %d instruments\n", snap.Catalog.Version(), len(snap.Catalog.List()))
			for _, inst := range snap.Catalog.List() {
				fmt.Fprintf(out, "  - %s (%s): %d questions, %d bands, safety threshold %d\n",
					inst.ID, inst.Name, len(inst.Questions), len(inst.Bands), inst.SafetyThreshold)
			}
			fmt.Fprintf(out, "Lexicon %s: %d crisis terms, %d distress terms, %d emergency resources\n",
				snap.Lexicon.Version(), len(snap.Lexicon.CrisisTerms()), len(snap.Lexicon.DistressTerms()), len(snap.Lexicon.EmergencyResources()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&writeDefaults, "write-defaults", false, "write the built-in files into --config-dir when missing")
	return cmd
}

// writeDefaultConfig writes the embedded files into dir without overwriting.
func writeDefaultConfig(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	files := map[string][]byte{
		catalog.FileName: catalog.DefaultBytes(),
		lexicon.FileName: lexicon.DefaultBytes(),
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
