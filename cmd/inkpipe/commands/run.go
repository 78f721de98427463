package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/inkpipe/inkpipe/internal/config"
	"github.com/inkpipe/inkpipe/internal/observability"
	"github.com/inkpipe/inkpipe/internal/pipeline"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the processing pipeline",
	Long: `Run the processing pipeline. By default the pipeline polls the source
on the configured interval until interrupted; with --once a single poll
iteration is performed and the command exits.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "perform a single poll iteration and exit")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logCfg := observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "inkpipe",
	}
	if verbose {
		logCfg.Level = "debug"
	}
	logger := observability.NewLogger(logCfg)

	proc, cleanup, err := pipeline.Build(ctx, cfg, cfgFile, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if runOnce {
		processed, err := proc.RunOnce(ctx)
		if err != nil {
			return err
		}
		color.Green("Processed %d new document(s)", processed)
		return nil
	}

	color.Cyan("Polling %s every %s (pipeline: %s); press Ctrl+C to stop", cfg.Provider, cfg.PollInterval, cfg.Pipeline)
	if err := proc.RunForever(ctx, cfg.PollInterval); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Println()
	color.Yellow("Shutting down")
	return nil
}
