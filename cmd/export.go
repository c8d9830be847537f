package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

var (
	exportBusinessID string
	exportOut        string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the latest fingerprint leaderboard to a spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		fp, err := st.GetLatestFingerprint(ctx, exportBusinessID)
		if err != nil {
			return eris.Wrapf(err, "fingerprint for %s", exportBusinessID)
		}
		if fp.Leaderboard == nil {
			return eris.Errorf("fingerprint %s has no leaderboard", fp.ID)
		}

		file := xlsx.NewFile()
		sheet, err := file.AddSheet("Leaderboard")
		if err != nil {
			return eris.Wrap(err, "add sheet")
		}

		header := sheet.AddRow()
		for _, h := range []string{"Rank", "Name", "Mentions", "Avg Position", "Market Share %", "Appears With Target"} {
			header.AddCell().Value = h
		}

		lb := fp.Leaderboard
		target := sheet.AddRow()
		target.AddCell().SetInt(lb.TargetBusiness.Rank)
		target.AddCell().Value = lb.TargetBusiness.Name + " (target)"
		target.AddCell().SetInt(lb.TargetBusiness.MentionCount)
		if lb.TargetBusiness.AvgPosition != nil {
			target.AddCell().SetFloat(*lb.TargetBusiness.AvgPosition)
		} else {
			target.AddCell().Value = "-"
		}
		target.AddCell().Value = "-"
		target.AddCell().Value = "-"

		for _, c := range lb.Competitors {
			row := sheet.AddRow()
			row.AddCell().SetInt(c.Rank)
			row.AddCell().Value = c.Name
			row.AddCell().SetInt(c.MentionCount)
			if c.AvgPosition != nil {
				row.AddCell().SetFloat(*c.AvgPosition)
			} else {
				row.AddCell().Value = "-"
			}
			row.AddCell().SetInt(c.MarketShare)
			if c.AppearsWithTarget {
				row.AddCell().Value = "yes"
			} else {
				row.AddCell().Value = "no"
			}
		}

		scores := sheet.AddRow()
		scores.AddCell().Value = "Visibility score"
		scores.AddCell().SetFloat(fp.VisibilityScore)

		if err := file.Save(exportOut); err != nil {
			return eris.Wrapf(err, "save %s", exportOut)
		}

		zap.L().Info("leaderboard exported",
			zap.String("business_id", exportBusinessID),
			zap.String("file", exportOut),
			zap.Int("competitors", len(lb.Competitors)))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportBusinessID, "business", "", "business id (required)")
	exportCmd.Flags().StringVar(&exportOut, "out", "leaderboard.xlsx", "output file path")
	_ = exportCmd.MarkFlagRequired("business")
	rootCmd.AddCommand(exportCmd)
}
