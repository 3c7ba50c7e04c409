package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kalambet/intake/internal/config"
)

var version = "dev"

// noColor disables ANSI colours in CLI output.
var noColor bool

var rootCmd = &cobra.Command{
	Use:           "intake",
	Short:         "Farm questionnaire engine and aid matching client",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		noColor = colorDisabled(noColor, os.Getenv("NO_COLOR"), isatty.IsTerminal(os.Stderr.Fd()))
		color.NoColor = noColor
		return nil
	},
}

func colorDisabled(flag bool, noColorEnv string, stderrTTY bool) bool {
	return flag || noColorEnv != "" || !stderrTTY
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(submissionsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
