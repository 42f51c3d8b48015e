package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"agora/contexts/governance/polling-ledger/application/queries"
	"agora/contexts/governance/polling-ledger/domain/entities"
	httptransport "agora/contexts/governance/polling-ledger/transport/http"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a poll",
	Long: `Creates a poll owned by the --as account.

With --template the type, category, duration, participation threshold and
asset gate come from the template; tags fall back to the template defaults.

Example:
  pollctl --as alice create --question "Raise quorum?" --option yes --option no \
    --type weighted --asset AGORA --min-balance 1000000000000000000000`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

var viewCmd = &cobra.Command{
	Use:   "view [poll-id]",
	Short: "Show every field of a poll",
	Args:  cobra.ExactArgs(1),
	RunE:  runView,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List polls, newest first unless a filter is set",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var resultsCmd = &cobra.Command{
	Use:   "results [poll-id]",
	Short: "Show per-option tallies; ranked-choice polls also show the runoff",
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

var closeCmd = &cobra.Command{
	Use:   "close [poll-id]",
	Short: "Close a poll you created",
	Args:  cobra.ExactArgs(1),
	RunE:  runClose,
}

var extendCmd = &cobra.Command{
	Use:   "extend [poll-id]",
	Short: "Push back the end time of an active poll you created",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtend,
}

var archiveCmd = &cobra.Command{
	Use:   "archive [poll-id]",
	Short: "Archive a finished poll once the archive delay has passed",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchive,
}

var exportCmd = &cobra.Command{
	Use:   "export [poll-id]",
	Short: "Export a poll as json, csv or table",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics [poll-id]",
	Short: "Ledger-wide analytics, or the breakdown of one poll",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalytics,
}

var (
	createQuestion    string
	createOptions     []string
	createDuration    time.Duration
	createType        string
	createCategory    string
	createMinPart     uint64
	createAsset       string
	createMinBalance  string
	createDescription string
	createTags        []string
	createFee         string
	createTemplate    int64

	listFilter   queries.PollFilter
	listStatus   string
	listType     string
	listCategory string
	listOffset   int
	listLimit    int

	extendBy     time.Duration
	exportFormat string
)

func init() {
	createCmd.Flags().StringVar(&createQuestion, "question", "", "poll question")
	createCmd.Flags().StringArrayVar(&createOptions, "option", nil, "option label (repeat for each option)")
	createCmd.Flags().DurationVar(&createDuration, "duration", 0, "voting window; defaults to the policy default")
	createCmd.Flags().StringVar(&createType, "type", "", "standard, weighted, quadratic, ranked_choice, approval, liquid_democracy, time_weighted or reputation_based")
	createCmd.Flags().StringVar(&createCategory, "category", "", "general, governance, technical, community or finance")
	createCmd.Flags().Uint64Var(&createMinPart, "min-participation", 0, "votes required before the poll can be closed")
	createCmd.Flags().StringVar(&createAsset, "asset", "", "asset id gating participation")
	createCmd.Flags().StringVar(&createMinBalance, "min-balance", "", "minimum asset balance in base units")
	createCmd.Flags().StringVar(&createDescription, "description", "", "longer description")
	createCmd.Flags().StringArrayVar(&createTags, "tag", nil, "tag (repeatable)")
	createCmd.Flags().StringVar(&createFee, "fee", "", "creation fee paid into the reward pool, in base units")
	createCmd.Flags().Int64Var(&createTemplate, "template", -1, "template id to seed the poll from")

	listCmd.Flags().StringVar(&listCategory, "category", "", "only this category")
	listCmd.Flags().StringVar(&listFilter.Tag, "tag", "", "only polls carrying this tag")
	listCmd.Flags().StringVar(&listStatus, "status", "", "only this status")
	listCmd.Flags().StringVar(&listType, "type", "", "only this poll type")
	listCmd.Flags().StringVar(&listFilter.Creator, "creator", "", "only polls created by this account")
	listCmd.Flags().BoolVar(&listFilter.ActiveOnly, "active", false, "only polls still accepting votes")
	listCmd.Flags().BoolVar(&listFilter.IncludeArchived, "archived", false, "include archived polls in filtered listings")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "page offset")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "page size")

	extendCmd.Flags().DurationVar(&extendBy, "by", 24*time.Hour, "how much to add to the end time")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "json, csv or table")

	rootCmd.AddCommand(createCmd, viewCmd, listCmd, resultsCmd, closeCmd, extendCmd, archiveCmd, exportCmd, analyticsCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	return withLedger(cmd, true, func(ctx context.Context, s *session) error {
		var (
			created httptransport.CreatePollResponse
			err     error
		)
		if createTemplate >= 0 {
			created, err = s.module.Handler.CreatePollFromTemplateHandler(ctx, callerID, httptransport.CreateFromTemplateRequest{
				TemplateID:  uint64(createTemplate),
				Question:    createQuestion,
				Options:     createOptions,
				Description: createDescription,
				Tags:        createTags,
				Fee:         createFee,
			})
		} else {
			created, err = s.module.Handler.CreatePollHandler(ctx, callerID, httptransport.CreatePollRequest{
				Question:         createQuestion,
				Options:          createOptions,
				DurationSeconds:  int64(createDuration / time.Second),
				PollType:         createType,
				Category:         createCategory,
				MinParticipation: createMinPart,
				AssetID:          createAsset,
				MinBalance:       createMinBalance,
				Description:      createDescription,
				Tags:             createTags,
				Fee:              createFee,
			})
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created poll %d\n", created.PollID)
		return nil
	})
}

func runView(cmd *cobra.Command, args []string) error {
	pollID, err := parsePollID(args[0])
	if err != nil {
		return err
	}
	return withLedger(cmd, false, func(ctx context.Context, s *session) error {
		poll, err := s.module.Handler.GetPollHandler(ctx, pollID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), poll)
	})
}

func runList(cmd *cobra.Command, args []string) error {
	filter := listFilter
	filter.Category = entities.Category(listCategory)
	filter.Status = entities.PollStatus(listStatus)
	filter.Type = entities.PollType(listType)
	return withLedger(cmd, false, func(ctx context.Context, s *session) error {
		page, err := s.module.Handler.ListPollsHandler(ctx, filter, listOffset, listLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTYPE\tCATEGORY\tVOTES\tENDS\tQUESTION")
		for _, item := range page.Items {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
				item.ID, item.Status, item.PollType, item.Category, item.TotalVotes,
				item.EndTime.Format(time.RFC3339), item.Question)
		}
		return w.Flush()
	})
}

func runResults(cmd *cobra.Command, args []string) error {
	pollID, err := parsePollID(args[0])
	if err != nil {
		return err
	}
	return withLedger(cmd, false, func(ctx context.Context, s *session) error {
		results, err := s.module.Handler.PollResultsHandler(ctx, pollID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "poll %d (%s): %d votes, weight %d\n", results.PollID, results.Status, results.TotalVotes, results.TotalWeight)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for idx, label := range results.Options {
			fmt.Fprintf(w, "  [%d]\t%s\t%d\t%s\n", idx, label, results.Votes[idx], percent(results.Votes[idx], results.TotalWeight))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		poll, err := s.module.Handler.GetPollHandler(ctx, pollID)
		if err != nil {
			return err
		}
		if poll.PollType != string(entities.PollTypeRankedChoice) {
			return nil
		}
		runoff, err := s.module.Handler.RankedChoiceHandler(ctx, pollID)
		if err != nil {
			return err
		}
		if runoff.Winner < 0 {
			fmt.Fprintf(out, "runoff: no winner after %d rounds\n", len(runoff.Rounds))
			return nil
		}
		fmt.Fprintf(out, "runoff winner: [%d] %s after %d rounds\n", runoff.Winner, runoff.WinnerLabel, len(runoff.Rounds))
		return nil
	})
}

func runClose(cmd *cobra.Command, args []string) error {
	pollID, err := parsePollID(args[0])
	if err != nil {
		return err
	}
	return withLedger(cmd, true, func(ctx context.Context, s *session) error {
		changed, err := s.module.Handler.ClosePollHandler(ctx, callerID, pollID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "poll %d is now %s\n", changed.PollID, changed.Status)
		return nil
	})
}

func runExtend(cmd *cobra.Command, args []string) error {
	pollID, err := parsePollID(args[0])
	if err != nil {
		return err
	}
	return withLedger(cmd, true, func(ctx context.Context, s *session) error {
		extended, err := s.module.Handler.ExtendPollHandler(ctx, callerID, pollID, httptransport.ExtendPollRequest{
			ExtraSeconds: int64(extendBy / time.Second),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "poll %d now ends %s\n", extended.PollID, extended.EndTime.Format(time.RFC3339))
		return nil
	})
}

func runArchive(cmd *cobra.Command, args []string) error {
	pollID, err := parsePollID(args[0])
	if err != nil {
		return err
	}
	return withLedger(cmd, true, func(ctx context.Context, s *session) error {
		changed, err := s.module.Handler.ArchivePollHandler(ctx, callerID, pollID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "poll %d is now %s\n", changed.PollID, changed.Status)
		return nil
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	pollID, err := parsePollID(args[0])
	if err != nil {
		return err
	}
	return withLedger(cmd, false, func(ctx context.Context, s *session) error {
		body, _, err := s.module.Handler.ExportPollHandler(ctx, pollID, exportFormat)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(body)
		return err
	})
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	return withLedger(cmd, false, func(ctx context.Context, s *session) error {
		if len(args) == 0 {
			stats, err := s.module.Handler.AnalyticsHandler(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		}
		pollID, err := parsePollID(args[0])
		if err != nil {
			return err
		}
		stats, err := s.module.Handler.PollAnalyticsHandler(ctx, pollID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	})
}

func parsePollID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid poll id %q", raw)
	}
	return id, nil
}

func printJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func percent(part uint64, total uint64) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)*100/float64(total))
}
