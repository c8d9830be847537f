package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenreach/visibility-cli/internal/automation"
)

var scheduleOnce bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the tier-based automation scheduler",
	Long:  "Periodically sweeps all businesses, crawling and publishing those whose subscription tier makes them due. Runs until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		driver := automation.NewDriver(cfg, env.Store, env.Pipeline)

		if scheduleOnce {
			stats, err := driver.Sweep(ctx)
			if err != nil {
				return err
			}
			zap.L().Info("sweep complete",
				zap.Int("evaluated", stats.Evaluated),
				zap.Int("submitted", stats.Submitted),
				zap.Int("published", stats.Published),
				zap.Int("failed", stats.Failed),
			)
			return nil
		}

		if err := driver.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		zap.L().Info("shutting down scheduler")
		driver.Stop()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "run a single sweep and exit")
	rootCmd.AddCommand(scheduleCmd)
}
