package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/reviewpipe/internal/git"
	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/output"
	"github.com/joescharf/reviewpipe/internal/review"
)

var (
	reviewFormat string
	reviewBase   string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review a pull request, local files, or a local diff",
}

var reviewPRCmd = &cobra.Command{
	Use:   "pr <repo-url|owner/repo> <number>",
	Short: "Review a GitHub pull request",
	Long: `Review a GitHub pull request through the gh CLI.

The repository can be given as owner/repo or as any GitHub URL. A pull
request URL may be passed alone:

  reviewpipe review pr acme/widgets 42
  reviewpipe review pr https://github.com/acme/widgets/pull/42`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parsePRArgs(args)
		if err != nil {
			return usageError(cmd, err)
		}
		return reviewRun(cmd, func() review.ChangeSetProvider {
			return git.NewGitHubProvider(viper.GetString("github.hostname"), configuredExtensions(), ui)
		}, ref)
	},
}

var reviewFilesCmd = &cobra.Command{
	Use:   "files <paths...>",
	Short: "Review local files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkLocalFiles(args, configuredExtensions()); err != nil {
			return usageError(cmd, err)
		}
		return reviewRun(cmd, func() review.ChangeSetProvider {
			return &git.LocalProvider{Paths: args, Extensions: configuredExtensions()}
		}, models.ChangeRef{})
	},
}

var reviewDiffCmd = &cobra.Command{
	Use:   "diff [path]",
	Short: "Review the changes of a local git checkout against a base branch",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return usageError(cmd, fmt.Errorf("not a directory: %s", dir))
		}
		return reviewRun(cmd, func() review.ChangeSetProvider {
			return &git.DiffProvider{Dir: dir, Base: reviewBase, Extensions: configuredExtensions()}
		}, models.ChangeRef{})
	},
}

func init() {
	reviewCmd.PersistentFlags().StringVarP(&reviewFormat, "format", "f", "text", "Output format: text, json, yaml")
	reviewDiffCmd.Flags().StringVar(&reviewBase, "base", "main", "Base branch to diff against")

	reviewCmd.AddCommand(reviewPRCmd)
	reviewCmd.AddCommand(reviewFilesCmd)
	reviewCmd.AddCommand(reviewDiffCmd)
	rootCmd.AddCommand(reviewCmd)
}

// usageError prints the command usage and returns err. No workflow runs.
func usageError(cmd *cobra.Command, err error) error {
	_ = cmd.Usage()
	return err
}

// parsePRArgs resolves the change reference from "<repo> <number>" or a
// single pull request URL.
func parsePRArgs(args []string) (models.ChangeRef, error) {
	owner, repo, err := git.ParseRepoURL(args[0])
	if err != nil {
		return models.ChangeRef{}, err
	}

	var raw string
	if len(args) == 2 {
		raw = args[1]
	} else {
		_, after, ok := strings.Cut(args[0], "/pull/")
		if !ok {
			return models.ChangeRef{}, fmt.Errorf("missing pull request number for %s/%s", owner, repo)
		}
		raw, _, _ = strings.Cut(after, "/")
	}

	n, err := strconv.Atoi(strings.TrimPrefix(raw, "#"))
	if err != nil || n <= 0 {
		return models.ChangeRef{}, fmt.Errorf("invalid pull request number: %q", raw)
	}
	return models.ChangeRef{Owner: owner, Repo: repo, Number: n}, nil
}

// checkLocalFiles rejects the file list before any workflow action when no
// file can be reviewed.
func checkLocalFiles(paths []string, exts []string) error {
	reviewable := 0
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", p, err)
		}
		if fi.IsDir() {
			return fmt.Errorf("%s is a directory", p)
		}
		if git.Reviewable(p, exts) {
			reviewable++
		} else {
			ui.Warning("Skipping %s: unsupported file type", p)
		}
	}
	if reviewable == 0 {
		return fmt.Errorf("no reviewable files (supported extensions: %s)", strings.Join(exts, ", "))
	}
	return nil
}

// reviewRun builds the provider only after output routing is settled, since
// providers log through ui.
func reviewRun(cmd *cobra.Command, newProvider func() review.ChangeSetProvider, ref models.ChangeRef) error {
	switch reviewFormat {
	case "text", "json", "yaml":
	default:
		return usageError(cmd, fmt.Errorf("invalid format %q: must be text, json or yaml", reviewFormat))
	}

	out := ui.Out
	if reviewFormat != "text" {
		var restore func()
		out, restore = logToStderr()
		defer restore()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st, err := runReview(ctx, newProvider(), ref)
	if err != nil {
		return err
	}

	if err := renderReview(out, st, thresholdsFromConfig(), reviewFormat); err != nil {
		return err
	}
	if st.Stage == review.StageError {
		return fmt.Errorf("review %s failed: %s", st.ID, st.Error)
	}
	return nil
}

// logToStderr sends all progress output to stderr so stdout carries only the
// encoded review. It returns the original stdout and a func restoring ui.
func logToStderr() (io.Writer, func()) {
	prev := ui
	ui = &output.UI{Out: prev.ErrOut, ErrOut: prev.ErrOut, Verbose: prev.Verbose, DryRun: prev.DryRun}
	return prev.Out, func() { ui = prev }
}

// renderReview writes the final state to w in the requested format. The text
// format's table goes through ui, so w must be ui.Out there.
func renderReview(w io.Writer, st *review.State, th review.Thresholds, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "yaml":
		return encodeYAML(w, st)
	}

	fmt.Fprintf(w, "\nReview %s: %s\n", st.ID, output.StageColor(string(st.Stage)))
	if st.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", output.Red(st.Error))
		return nil
	}
	if st.Summary != nil {
		rec := string(st.Summary.Recommendation)
		fmt.Fprintf(w, "  Recommendation: %s (priority %s)\n", output.RecommendationColor(rec), st.Summary.Priority)
	}
	fmt.Fprintf(w, "  Files reviewed: %d\n\n", len(st.Files))

	renderAnalyzerTable(st, th)

	fmt.Fprintln(w)
	if st.HasCriticalIssues {
		fmt.Fprintf(w, "  %s %s\n", output.Yellow("Escalated:"), st.CriticalReason)
	} else {
		fmt.Fprintf(w, "  %s %s\n", output.Green("Approved:"), st.CriticalReason)
	}
	for _, warn := range st.Warnings {
		ui.VerboseLog("%s", warn)
	}
	if verbose && st.Summary != nil {
		fmt.Fprintln(w)
		fmt.Fprint(w, review.FormatReport(st, th))
	}
	return nil
}

func renderAnalyzerTable(st *review.State, th review.Thresholds) {
	a := review.ComputeAverages(st)
	needTests := 0
	for _, m := range st.MissingTests {
		if m.NeedsTests {
			needTests++
		}
	}
	table := ui.Table([]string{"Analyzer", "Score", "Threshold", "Detail"})

	row := func(name string, has bool, score, threshold float64, format, detail string) {
		if !has {
			table.Append([]string{name, "n/a", fmt.Sprintf(format, threshold), detail})
			return
		}
		table.Append([]string{name, output.ScoreColor(format, score, threshold), fmt.Sprintf(format, threshold), detail})
	}
	row("Security", a.HasSecurity, a.Security, th.Security, "%.2f",
		fmt.Sprintf("%d vulnerabilities, %d high", a.Vulnerabilities, a.HighSeverity))
	row("Quality", a.HasLint, a.Lint, th.Lint, "%.2f", "")
	row("Coverage", a.HasCoverage, a.Coverage, th.Coverage, "%.1f", fmt.Sprintf("%d files need tests", needTests))
	row("AI Review", a.HasAI, a.AIConfidence, th.AIConfidence, "%.2f", fmt.Sprintf("score %.2f", a.AIScore))
	row("Documentation", a.HasDocumentation, a.Documentation, th.Documentation, "%.1f",
		fmt.Sprintf("%d missing", a.MissingDocs))

	table.Render()
}

// encodeYAML round-trips v through JSON so the yaml keys match the json tags.
func encodeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode review: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("encode review: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode review: %w", err)
	}
	return enc.Close()
}
