package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/internal/store"
)

var (
	listStatus string
	listTeam   string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List businesses and their pipeline status",
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

		businesses, err := st.ListBusinesses(ctx, store.BusinessFilter{
			Status: model.BusinessStatus(listStatus),
			TeamID: listTeam,
			Limit:  listLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tQID\tLAST CRAWLED")
		for _, b := range businesses {
			qid := "-"
			if b.WikidataQID != nil {
				qid = *b.WikidataQID
			}
			lastCrawled := "never"
			if b.LastCrawledAt != nil {
				lastCrawled = b.LastCrawledAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Name, b.Status, qid, lastCrawled)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().StringVar(&listTeam, "team", "", "filter by team id")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "max rows (0 = all)")
	rootCmd.AddCommand(listCmd)
}
