package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenreach/visibility-cli/internal/model"
)

var (
	runBusinessID string
	runPublish    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the crawl-fingerprint-publish pipeline for one business",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, runBusinessID, runPublish)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		fields := []zap.Field{
			zap.String("business_id", runBusinessID),
			zap.String("run_id", result.RunID),
			zap.String("status", string(result.Business.Status)),
		}
		if result.Fingerprint != nil {
			fields = append(fields, zap.Float64("visibility_score", result.Fingerprint.VisibilityScore))
		}
		if result.Business.Status == model.StatusPublished && result.Business.WikidataQID != nil {
			fields = append(fields, zap.String("qid", *result.Business.WikidataQID))
		}
		zap.L().Info("run complete", fields...)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runBusinessID, "business", "", "business id (required)")
	runCmd.Flags().BoolVar(&runPublish, "publish", false, "allow publishing when the business qualifies")
	_ = runCmd.MarkFlagRequired("business")
	rootCmd.AddCommand(runCmd)
}
