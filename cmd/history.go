package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/reviewpipe/internal/git"
	"github.com/joescharf/reviewpipe/internal/output"
	"github.com/joescharf/reviewpipe/internal/store"
)

var (
	historyRepo   string
	historyStage  string
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse finished reviews",
	Long: `Browse the review history archive.

Running bare 'reviewpipe history' is the same as 'reviewpipe history list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun(cmd)
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List finished reviews, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun(cmd)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a finished review (id or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyShowRun(cmd, args[0])
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a review from the archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyDeleteRun(args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{historyCmd, historyListCmd} {
		c.Flags().StringVar(&historyRepo, "repo", "", "Filter by repository (owner/repo or URL)")
		c.Flags().StringVar(&historyStage, "stage", "", "Filter by final stage (completed, escalated, error)")
		c.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of reviews to list (0 for all)")
	}
	historyShowCmd.Flags().StringVarP(&historyFormat, "format", "f", "text", "Output format: text, json, yaml")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyListRun(cmd *cobra.Command) error {
	filter := store.ReviewFilter{Stage: historyStage, Limit: historyLimit}
	if historyRepo != "" {
		owner, repo, err := git.ParseRepoURL(historyRepo)
		if err != nil {
			return usageError(cmd, err)
		}
		filter.Owner, filter.Repo = owner, repo
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	recs, err := s.ListReviews(context.Background(), filter)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		ui.Info("No reviews found")
		return nil
	}

	table := ui.Table([]string{"Review", "Change", "Stage", "Recommendation", "Files", "Finished"})
	for _, r := range recs {
		change := "local"
		if r.Owner != "" {
			change = fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.ChangeID)
		}
		table.Append([]string{
			output.Cyan(r.ReviewID),
			change,
			output.StageColor(r.Stage),
			output.RecommendationColor(r.Recommendation),
			fmt.Sprintf("%d", r.FilesReviewed),
			r.FinishedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return nil
}

func historyShowRun(cmd *cobra.Command, id string) error {
	switch historyFormat {
	case "text", "json", "yaml":
	default:
		return usageError(cmd, fmt.Errorf("invalid format %q: must be text, json or yaml", historyFormat))
	}

	out := ui.Out
	if historyFormat != "text" {
		var restore func()
		out, restore = logToStderr()
		defer restore()
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	rec, err := s.GetReview(context.Background(), id)
	if err != nil {
		return err
	}
	st, err := store.StateFromRecord(rec)
	if err != nil {
		return err
	}

	if historyFormat == "text" {
		ui.Info("Finished %s", rec.FinishedAt.Local().Format("2006-01-02 15:04:05"))
		if st.Details.Title != "" {
			ui.Info("%s", strings.TrimSpace(st.Details.Title))
		}
	}
	return renderReview(out, st, thresholdsFromConfig(), historyFormat)
}

func historyDeleteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	rec, err := s.GetReview(context.Background(), id)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would delete review %s", rec.ReviewID)
		return nil
	}
	if err := s.DeleteReview(context.Background(), rec.ID); err != nil {
		return err
	}
	ui.Success("Deleted review %s", rec.ReviewID)
	return nil
}
