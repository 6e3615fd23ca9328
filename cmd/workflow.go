package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joescharf/reviewpipe/internal/analyzer"
	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/notify"
	"github.com/joescharf/reviewpipe/internal/review"
	"github.com/joescharf/reviewpipe/internal/source"
	"github.com/joescharf/reviewpipe/internal/store"
)

// thresholdsFromConfig reads the approval thresholds.
func thresholdsFromConfig() review.Thresholds {
	return review.Thresholds{
		Lint:          viper.GetFloat64("thresholds.lint"),
		Coverage:      viper.GetFloat64("thresholds.coverage"),
		AIConfidence:  viper.GetFloat64("thresholds.ai_confidence"),
		Security:      viper.GetFloat64("thresholds.security"),
		Documentation: viper.GetFloat64("thresholds.documentation"),
	}
}

// taskTimeoutFromConfig maps analysis.task_timeout onto the workflow's
// convention: a configured 0 disables forced completion.
func taskTimeoutFromConfig() time.Duration {
	d := viper.GetDuration("analysis.task_timeout")
	if d <= 0 {
		return -1
	}
	return d
}

// configuredExtensions accepts both a yaml list and a comma-separated env value.
func configuredExtensions() []string {
	var exts []string
	for _, v := range viper.GetStringSlice("analysis.extensions") {
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				exts = append(exts, e)
			}
		}
	}
	return exts
}

// buildNotifier returns the console notifier, plus email when enabled.
func buildNotifier() (review.Notifier, error) {
	console := &notify.ConsoleNotifier{UI: ui}
	if !viper.GetBool("email.enabled") {
		return console, nil
	}
	if dryRun {
		ui.DryRunMsg("Would email notifications to %s", strings.Join(viper.GetStringSlice("email.to"), ", "))
		return console, nil
	}
	smtpN, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     viper.GetString("email.smtp_server"),
		Port:     viper.GetInt("email.smtp_port"),
		From:     viper.GetString("email.from"),
		Password: viper.GetString("email.password"),
		To:       viper.GetStringSlice("email.to"),
	})
	if err != nil {
		return nil, fmt.Errorf("configure email: %w", err)
	}
	return notify.Multi{console, smtpN}, nil
}

// newWorkflow wires the standard analyzers, the LLM client and the notifiers
// around provider.
func newWorkflow(provider review.ChangeSetProvider) (*review.Workflow, error) {
	notifier, err := buildNotifier()
	if err != nil {
		return nil, err
	}

	acfg := analyzer.Config{
		Linters: map[source.Language]analyzer.Linter{
			source.Python: analyzer.NewPylint(viper.GetString("quality.pylint_path"), viper.GetDuration("quality.lint_timeout")),
		},
		CoverageMin: viper.GetFloat64("thresholds.coverage"),
		Logger:      ui,
	}
	cfg := review.Config{
		Provider:    provider,
		Notifier:    notifier,
		Thresholds:  thresholdsFromConfig(),
		TaskTimeout: taskTimeoutFromConfig(),
		MaxParallel: viper.GetInt("analysis.max_parallel"),
		Logger:      ui,
	}
	if client := newLLMClient(); client != nil {
		acfg.Reviewer = client
		cfg.Summarizer = client
	} else {
		ui.VerboseLog("No Anthropic API key configured, AI review uses fallback results")
	}
	cfg.Tasks = analyzer.Defaults(acfg)

	return review.NewWorkflow(cfg)
}

// runReview runs one review through provider and archives the result when
// history is enabled. Archive failures are reported but do not fail the review.
func runReview(ctx context.Context, provider review.ChangeSetProvider, ref models.ChangeRef) (*review.State, error) {
	wf, err := newWorkflow(provider)
	if err != nil {
		return nil, err
	}
	st, err := wf.Run(ctx, ref)
	if err != nil {
		return st, err
	}
	archiveReview(ctx, st)
	return st, nil
}

func archiveReview(ctx context.Context, st *review.State) {
	if !viper.GetBool("history.enabled") || dryRun {
		return
	}
	s, err := getStore()
	if err != nil {
		ui.Warning("Review history unavailable: %v", err)
		return
	}
	rec, err := store.RecordFromState(st)
	if err == nil {
		err = s.SaveReview(ctx, rec)
	}
	if err != nil {
		ui.Warning("Failed to archive review %s: %v", st.ID, err)
		return
	}
	ui.VerboseLog("Archived review %s", st.ID)
}
