package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenreach/visibility-cli/internal/model"
)

var (
	addTeamName string
	addTeamTier string

	addName       string
	addURL        string
	addTeamID     string
	addAutomation bool
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Create a team",
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

		tier := model.Tier(addTeamTier)
		switch tier {
		case model.TierFree, model.TierStarter, model.TierPro, model.TierAgency:
		default:
			return eris.Errorf("unknown tier %q", addTeamTier)
		}

		team := &model.Team{
			Name:               addTeamName,
			Tier:               tier,
			SubscriptionStatus: model.SubscriptionActive,
		}
		if err := st.CreateTeam(ctx, team); err != nil {
			return err
		}

		zap.L().Info("team created", zap.String("id", team.ID), zap.String("tier", string(team.Tier)))
		fmt.Println(team.ID)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a business to the pipeline",
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

		// Fail early on a bad team id rather than at first sweep.
		if _, err := st.GetTeam(ctx, addTeamID); err != nil {
			return eris.Wrapf(err, "team %s", addTeamID)
		}

		business := &model.Business{
			TeamID:            addTeamID,
			Name:              addName,
			URL:               addURL,
			AutomationEnabled: addAutomation,
		}
		if err := st.CreateBusiness(ctx, business); err != nil {
			return err
		}

		zap.L().Info("business created",
			zap.String("id", business.ID),
			zap.String("url", business.URL),
			zap.Bool("automation", business.AutomationEnabled))
		fmt.Println(business.ID)
		return nil
	},
}

func init() {
	teamCmd.Flags().StringVar(&addTeamName, "name", "", "team name (required)")
	teamCmd.Flags().StringVar(&addTeamTier, "tier", "free", "subscription tier: free|starter|pro|agency")
	_ = teamCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(teamCmd)

	addCmd.Flags().StringVar(&addName, "name", "", "business name (required)")
	addCmd.Flags().StringVar(&addURL, "url", "", "business website URL (required)")
	addCmd.Flags().StringVar(&addTeamID, "team", "", "owning team id (required)")
	addCmd.Flags().BoolVar(&addAutomation, "automation", false, "enable tier-based automation")
	_ = addCmd.MarkFlagRequired("name")
	_ = addCmd.MarkFlagRequired("url")
	_ = addCmd.MarkFlagRequired("team")
	rootCmd.AddCommand(addCmd)
}
