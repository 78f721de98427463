package commands

import (
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "inkpipe",
	Short: "inkpipe - PDF to Markdown and mindmap publishing pipeline",
	Long: `inkpipe polls a Google Drive folder or local directory for new PDF
documents, converts them to Markdown or FreeMind mindmaps, and publishes
the results to a filesystem, git repository, Obsidian vault, or Google
Drive folder. A durable ledger guarantees each document is processed once.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load() // Ignore error if .env doesn't exist
		if noColor {
			color.NoColor = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
