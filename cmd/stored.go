package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lumenreach/visibility-cli/internal/model"
)

var storedCmd = &cobra.Command{
	Use:   "stored",
	Short: "Inspect and act on entities held for manual review",
}

var storedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored manual-review snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Manual.List()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tBUSINESS\tCAN PUBLISH\tCONFIDENCE\tSTORED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%t\t%.2f\t%s\n",
				e.EntityFileName, e.BusinessName, e.CanPublish,
				e.Notability.Confidence, e.StoredAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var storedShowCmd = &cobra.Command{
	Use:   "show <entity-file>",
	Short: "Print a stored entity as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		entity, err := env.Manual.LoadEntity(args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entity)
	},
}

var storedPublishCmd = &cobra.Command{
	Use:   "publish <entity-file>",
	Short: "Publish a stored entity after human review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		stored, err := findStored(env, args[0])
		if err != nil {
			return err
		}
		entity, err := env.Manual.LoadEntity(args[0])
		if err != nil {
			return err
		}

		qid, err := env.Pipeline.PublishReviewed(ctx, *stored, *entity)
		if err != nil {
			return err
		}

		fmt.Println(qid)
		return nil
	},
}

var storedDeleteCmd = &cobra.Command{
	Use:   "delete <entity-file>",
	Short: "Delete a stored snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		stored, err := findStored(env, args[0])
		if err != nil {
			return err
		}
		return env.Manual.Delete(*stored)
	},
}

func findStored(env *pipelineEnv, entityFileName string) (*model.StoredManualEntity, error) {
	entries, err := env.Manual.List()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].EntityFileName == entityFileName {
			return &entries[i], nil
		}
	}
	return nil, eris.Errorf("no stored snapshot named %s", entityFileName)
}

func init() {
	storedCmd.AddCommand(storedListCmd, storedShowCmd, storedPublishCmd, storedDeleteCmd)
	rootCmd.AddCommand(storedCmd)
}
