package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kalambet/intake/internal/config"
	"github.com/kalambet/intake/internal/export"
	"github.com/kalambet/intake/internal/profile"
	"github.com/kalambet/intake/internal/questionnaire"
	"github.com/kalambet/intake/internal/storage"
)

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [source]",
	Short: "Load and check a questionnaire document",
	Long: `Load a questionnaire document from a URL or a JSON/YAML file and check its
structure: question types, options, visibility rules, mapping and
cross-field rules. Every problem found is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := ""
		if len(args) == 1 {
			source = args[0]
		} else {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			source = cfg.Questionnaire.Source
		}

		doc, err := newLoader(source).Load(contextOf(cmd))
		if err != nil {
			var cerr *questionnaire.ConfigError
			if errors.As(err, &cerr) && cerr.Err != nil {
				printError("%s: %s", cerr.Source, cerr.Reason)
				for _, line := range strings.Split(cerr.Err.Error(), "\n") {
					fmt.Fprintf(stderr, "    %s\n", line)
				}
				return fmt.Errorf("invalid questionnaire")
			}
			return err
		}

		printSuccess("%s is valid", source)
		summarize(cmd.OutOrStdout(), doc)
		return nil
	},
}

func summarize(out io.Writer, doc *questionnaire.Config) {
	conditional := 0
	for _, s := range doc.Sections {
		for _, q := range s.Questions {
			if q.VisibleIf != nil {
				conditional++
			}
		}
	}
	line := func(label, format string, args ...any) {
		fmt.Fprintf(out, "%-18s %s\n", label+":", fmt.Sprintf(format, args...))
	}
	if doc.Metadata.Version != "" {
		line("version", "%s", doc.Metadata.Version)
	}
	line("sections", "%d", len(doc.Sections))
	line("questions", "%d (%d conditional)", doc.QuestionCount(), conditional)
	line("mapped fields", "%d", len(doc.Mapping))
	line("cross-field rules", "%d", len(doc.CrossFieldRules()))
	line("estimated time", "%g min", doc.Metadata.EstimatedMinutes())
	for i, s := range doc.Sections {
		marker := ""
		if s.Critical() {
			marker = " " + colorize("(important)", color.FgYellow)
		}
		fmt.Fprintf(out, "  %d. %s [%d question(s)]%s\n", i+1, s.Title, len(s.Questions), marker)
	}
}

// --- submissions ---

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "Browse and export the submission history",
}

// openStore is replaced in tests.
var openStore = func() (*storage.Store, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, cfg, fmt.Errorf("opening storage: %w", err)
	}
	return store, cfg, nil
}

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		subs, err := store.ListSubmissions(contextOf(cmd), limit, offset)
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No submissions found.")
			return nil
		}
		for _, sub := range subs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  %d/%d eligible\n",
				colorize(sub.ID, color.FgCyan),
				sub.CreatedAt.Local().Format("2006-01-02 15:04"),
				statusLabel(sub.Status),
				sub.EligibleAides, sub.TotalAides,
			)
		}
		return nil
	},
}

func statusLabel(status string) string {
	switch status {
	case storage.StatusCompleted:
		return colorize(fmt.Sprintf("%-9s", status), color.FgGreen)
	case storage.StatusFailed:
		return colorize(fmt.Sprintf("%-9s", status), color.FgRed)
	default:
		return colorize(fmt.Sprintf("%-9s", status), color.FgYellow)
	}
}

var submissionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a submission: profile and ranked result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sub, err := store.GetSubmission(contextOf(cmd), args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("submission %s not found", args[0])
		}
		if err != nil {
			return err
		}
		p, err := sub.Profile()
		if err != nil {
			return err
		}
		res, err := sub.Result()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"id":      sub.ID,
				"status":  sub.Status,
				"error":   sub.Error,
				"profile": p,
				"result":  res,
			})
		}

		printStatus("Submission", "%s", sub.ID)
		printStatus("Status", "%s", statusLabel(sub.Status))
		if sub.Error != "" {
			printStatus("Error", "%s", sub.Error)
		}
		for _, k := range p.Keys() {
			v, _ := p.Get(k)
			switch k {
			case profile.FieldID:
				v = p.ID
			case profile.FieldCreatedAt:
				v = p.CreatedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(out, "  %-24s %v\n", k, v)
		}
		printResult(out, res)
		return nil
	},
}

var submissionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a submission from the local history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		err = store.DeleteSubmission(contextOf(cmd), args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("submission %s not found", args[0])
		}
		if err != nil {
			return err
		}
		printSuccess("Deleted submission %s", args[0])
		return nil
	},
}

var submissionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the submission history as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		toS3, _ := cmd.Flags().GetBool("s3")

		store, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		ctx := contextOf(cmd)

		if toS3 {
			if cfg.Export.S3Bucket == "" {
				return fmt.Errorf("export.s3_bucket is not set")
			}
			exp, err := export.NewS3Exporter(cfg.Export.S3Region, cfg.Export.S3Bucket, cfg.Export.S3Prefix)
			if err != nil {
				return err
			}
			printStep("Uploading to s3://%s", cfg.Export.S3Bucket)
			key, n, err := exp.Export(ctx, store)
			if err != nil {
				return err
			}
			printSuccess("Exported %d submission(s) to s3://%s/%s", n, cfg.Export.S3Bucket, key)
			return nil
		}

		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		n, err := export.WriteJSONL(ctx, store, w)
		if err != nil {
			return err
		}
		if output != "" {
			printSuccess("Exported %d submission(s) to %s", n, output)
		}
		return nil
	},
}

func init() {
	submissionsListCmd.Flags().Int("limit", 20, "maximum number of submissions to list")
	submissionsListCmd.Flags().Int("offset", 0, "number of submissions to skip")
	submissionsShowCmd.Flags().Bool("json", false, "print as JSON")
	submissionsExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	submissionsExportCmd.Flags().Bool("s3", false, "upload to the configured S3 bucket instead")
	submissionsCmd.AddCommand(submissionsListCmd)
	submissionsCmd.AddCommand(submissionsShowCmd)
	submissionsCmd.AddCommand(submissionsDeleteCmd)
	submissionsCmd.AddCommand(submissionsExportCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(k.Key, color.Bold), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
