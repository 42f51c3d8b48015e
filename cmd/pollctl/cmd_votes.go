package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"agora/contexts/governance/polling-ledger/domain/entities"
	httptransport "agora/contexts/governance/polling-ledger/transport/http"

	"github.com/spf13/cobra"
)

var voteCmd = &cobra.Command{
	Use:   "vote [poll-id] [option...]",
	Short: "Cast a ballot",
	Long: `Casts a ballot on a poll, choosing the voting rule from the poll type.

Ranked-choice polls take the full preference order, approval polls take every
approved option and all other types take exactly one option. Liquid-democracy
polls also cast for everyone currently delegating to you.

Example:
  pollctl --as bob vote 3 1
  pollctl --as bob vote 4 2 0 1`,
	Args: cobra.MinimumNArgs(2),
	RunE: runVote,
}

var voteDelegateCmd = &cobra.Command{
	Use:   "vote-delegate [poll-id] [option]",
	Short: "Vote on behalf of an account that delegated to you",
	Args:  cobra.ExactArgs(2),
	RunE:  runVoteDelegate,
}

var setDelegateCmd = &cobra.Command{
	Use:   "set-delegate [account]",
	Short: "Delegate your voting power, replacing any earlier delegate",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetDelegate,
}

var removeDelegateCmd = &cobra.Command{
	Use:   "remove-delegate",
	Short: "Take back your delegated voting power",
	Args:  cobra.NoArgs,
	RunE:  runRemoveDelegate,
}

var delegationCmd = &cobra.Command{
	Use:   "delegation [account]",
	Short: "Show who an account delegates to and who delegates to it",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDelegation,
}

var (
	voteFor      string
	delegateKind string
)

func init() {
	voteDelegateCmd.Flags().StringVar(&voteFor, "for", "", "delegator whose slot the ballot fills")
	_ = voteDelegateCmd.MarkFlagRequired("for")
	setDelegateCmd.Flags().StringVar(&delegateKind, "kind", "proxy", "proxy or representative")

	rootCmd.AddCommand(voteCmd, voteDelegateCmd, setDelegateCmd, removeDelegateCmd, delegationCmd)
}

func runVote(cmd *cobra.Command, args []string) error {
	pollID, err := parsePollID(args[0])
	if err != nil {
		return err
	}
	options, err := parseOptions(args[1:])
	if err != nil {
		return err
	}
	return withLedger(cmd, true, func(ctx context.Context, s *session) error {
		poll, err := s.module.Handler.GetPollHandler(ctx, pollID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		h := s.module.Handler

		switch entities.PollType(poll.PollType) {
		case entities.PollTypeRankedChoice:
			vote, err := h.RankedVoteHandler(ctx, callerID, pollID, httptransport.RankedVoteRequest{Ranking: options})
			if err != nil {
				return err
			}
			printVote(cmd, vote)
			return nil
		case entities.PollTypeApproval:
			vote, err := h.ApprovalVoteHandler(ctx, callerID, pollID, httptransport.ApprovalVoteRequest{Options: options})
			if err != nil {
				return err
			}
			printVote(cmd, vote)
			return nil
		}

		if len(options) != 1 {
			return fmt.Errorf("%s polls take exactly one option", poll.PollType)
		}
		request := httptransport.VoteRequest{Option: options[0]}
		switch entities.PollType(poll.PollType) {
		case entities.PollTypeLiquidDemocracy:
			result, err := h.LiquidVoteHandler(ctx, callerID, pollID, request)
			if err != nil {
				return err
			}
			printVote(cmd, result.Own)
			for _, delegated := range result.Delegated {
				printVote(cmd, delegated)
			}
			fmt.Fprintf(out, "total weight %d\n", result.TotalWeight)
			return nil
		case entities.PollTypeTimeWeighted:
			vote, err := h.VoteHandler(ctx, callerID, pollID, "time_weighted", request)
			if err != nil {
				return err
			}
			printVote(cmd, vote)
			return nil
		case entities.PollTypeReputationBased:
			vote, err := h.VoteHandler(ctx, callerID, pollID, "reputation_based", request)
			if err != nil {
				return err
			}
			printVote(cmd, vote)
			return nil
		default:
			vote, err := h.VoteHandler(ctx, callerID, pollID, "", request)
			if err != nil {
				return err
			}
			printVote(cmd, vote)
			return nil
		}
	})
}

func runVoteDelegate(cmd *cobra.Command, args []string) error {
	pollID, err := parsePollID(args[0])
	if err != nil {
		return err
	}
	options, err := parseOptions(args[1:])
	if err != nil {
		return err
	}
	return withLedger(cmd, true, func(ctx context.Context, s *session) error {
		vote, err := s.module.Handler.DelegateVoteHandler(ctx, callerID, pollID, httptransport.DelegateVoteRequest{
			Option:    options[0],
			Delegator: voteFor,
		})
		if err != nil {
			return err
		}
		printVote(cmd, vote)
		return nil
	})
}

func runSetDelegate(cmd *cobra.Command, args []string) error {
	return withLedger(cmd, true, func(ctx context.Context, s *session) error {
		if err := s.module.Handler.SetDelegateHandler(ctx, callerID, httptransport.SetDelegateRequest{
			Delegate: args[0],
			Kind:     delegateKind,
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s now delegates to %s\n", callerID, strings.TrimSpace(args[0]))
		return nil
	})
}

func runRemoveDelegate(cmd *cobra.Command, args []string) error {
	return withLedger(cmd, true, func(ctx context.Context, s *session) error {
		if err := s.module.Handler.RemoveDelegateHandler(ctx, callerID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s no longer delegates\n", callerID)
		return nil
	})
}

func runDelegation(cmd *cobra.Command, args []string) error {
	account, err := accountArg(args)
	if err != nil {
		return err
	}
	return withLedger(cmd, false, func(ctx context.Context, s *session) error {
		info, err := s.module.Handler.DelegationHandler(ctx, account)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), info)
	})
}

func parseOptions(raw []string) ([]int, error) {
	options := make([]int, 0, len(raw))
	for _, item := range raw {
		option, err := strconv.Atoi(strings.TrimSpace(item))
		if err != nil {
			return nil, fmt.Errorf("invalid option index %q", item)
		}
		options = append(options, option)
	}
	return options, nil
}

func printVote(cmd *cobra.Command, vote httptransport.VoteResponse) {
	if vote.CastBy != "" && vote.CastBy != vote.Voter {
		fmt.Fprintf(cmd.OutOrStdout(), "poll %d: %s voted %v for %s with weight %d\n",
			vote.PollID, vote.CastBy, vote.Options, vote.Voter, vote.Weight)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "poll %d: %s voted %v with weight %d\n", vote.PollID, vote.Voter, vote.Options, vote.Weight)
}

// accountArg resolves an optional account argument, falling back to --as.
func accountArg(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	if account := strings.TrimSpace(callerID); account != "" {
		return account, nil
	}
	return "", fmt.Errorf("pass an account or --as")
}
