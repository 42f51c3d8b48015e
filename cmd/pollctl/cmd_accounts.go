package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	httptransport "agora/contexts/governance/polling-ledger/transport/http"

	"github.com/spf13/cobra"
)

var myPollsCmd = &cobra.Command{
	Use:   "my-polls",
	Short: "List polls created by --as",
	Args:  cobra.NoArgs,
	RunE:  runMyPolls,
}

var myVotesCmd = &cobra.Command{
	Use:   "my-votes",
	Short: "List polls --as has voted on",
	Args:  cobra.NoArgs,
	RunE:  runMyVotes,
}

var myStatsCmd = &cobra.Command{
	Use:   "my-stats",
	Short: "Participation and reputation of --as",
	Args:  cobra.NoArgs,
	RunE:  runMyStats,
}

var tokenBalanceCmd = &cobra.Command{
	Use:   "token-balance [account]",
	Short: "Show an account's balance in the local balance book",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTokenBalance,
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List poll templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplates,
}

var (
	balanceAsset string
	templatesAll bool
)

func init() {
	tokenBalanceCmd.Flags().StringVar(&balanceAsset, "asset", "", "asset id; defaults to the governance asset")
	templatesCmd.Flags().BoolVar(&templatesAll, "all", false, "include deactivated templates")

	rootCmd.AddCommand(myPollsCmd, myVotesCmd, myStatsCmd, tokenBalanceCmd, templatesCmd)
}

func runMyPolls(cmd *cobra.Command, args []string) error {
	account, err := accountArg(nil)
	if err != nil {
		return err
	}
	return withLedger(cmd, false, func(ctx context.Context, s *session) error {
		ids, err := s.module.Handler.UserCreatedPollsHandler(ctx, account)
		if err != nil {
			return err
		}
		return printSummaries(ctx, cmd, s, ids)
	})
}

func runMyVotes(cmd *cobra.Command, args []string) error {
	account, err := accountArg(nil)
	if err != nil {
		return err
	}
	return withLedger(cmd, false, func(ctx context.Context, s *session) error {
		ids, err := s.module.Handler.UserVotedPollsHandler(ctx, account)
		if err != nil {
			return err
		}
		return printSummaries(ctx, cmd, s, ids)
	})
}

type accountStats struct {
	Stats      httptransport.UserStatsResponse   `json:"stats"`
	Reputation httptransport.ReputationResponse  `json:"reputation"`
	Rewards    httptransport.UserRewardsResponse `json:"rewards"`
}

func runMyStats(cmd *cobra.Command, args []string) error {
	account, err := accountArg(nil)
	if err != nil {
		return err
	}
	return withLedger(cmd, false, func(ctx context.Context, s *session) error {
		var out accountStats
		if out.Stats, err = s.module.Handler.UserStatsHandler(ctx, account); err != nil {
			return err
		}
		if out.Reputation, err = s.module.Handler.ReputationHandler(ctx, account); err != nil {
			return err
		}
		if out.Rewards, err = s.module.Handler.UserRewardsHandler(ctx, account); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
}

func runTokenBalance(cmd *cobra.Command, args []string) error {
	account, err := accountArg(args)
	if err != nil {
		return err
	}
	return withLedger(cmd, false, func(ctx context.Context, s *session) error {
		asset := strings.TrimSpace(balanceAsset)
		if asset == "" {
			asset = s.policy.GovernanceAssetID
		}
		balance, err := s.local.BalanceOf(ctx, account, asset)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s holds %s %s\n", account, formatTokens(balance), asset)
		return nil
	})
}

func runTemplates(cmd *cobra.Command, args []string) error {
	return withLedger(cmd, false, func(ctx context.Context, s *session) error {
		list, err := s.module.Handler.ListTemplatesHandler(ctx, !templatesAll)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tCATEGORY\tDURATION\tACTIVE\tTAGS")
		for _, item := range list.Items {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\t%s\n",
				item.ID, item.Name, item.PollType, item.Category,
				time.Duration(item.DurationSeconds)*time.Second, item.Active,
				strings.Join(item.DefaultTags, ","))
		}
		return w.Flush()
	})
}

func printSummaries(ctx context.Context, cmd *cobra.Command, s *session, ids httptransport.PollIDsResponse) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tVOTES\tQUESTION")
	for _, id := range ids.PollIDs {
		summary, err := s.module.Handler.PollSummaryHandler(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", summary.ID, summary.Status, summary.TotalVotes, summary.Question)
	}
	return w.Flush()
}
