package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joescharf/reviewpipe/internal/models"
)

// ErrNoFiles is returned by detection when the change has nothing to review.
var ErrNoFiles = errors.New("no reviewable files in change set")

func (w *Workflow) detect(ctx context.Context, st *State) error {
	st.SetStage(StageDetecting)

	cs, err := w.cfg.Provider.Fetch(ctx, st.Ref)
	if err != nil {
		return fmt.Errorf("fetch change set: %w", err)
	}
	if cs == nil || len(cs.Files) == 0 {
		return ErrNoFiles
	}

	st.Details = cs.Details
	st.Files = clone(cs.Files)
	w.log.Info("%d files to review in %s", len(st.Files), st.Ref)

	w.notify(ctx, st, models.EventReviewStarted, StartedMessage(st))
	return nil
}

func (w *Workflow) analyze(ctx context.Context, st *State) error {
	st.SetStage(StageParallelAnalysis)
	w.log.VerboseLog("launching analyzers: %v", TaskNames(w.dispatcher.Tasks()))

	return w.dispatcher.Dispatch(ctx, st)
}

func (w *Workflow) coordinate(ctx context.Context, st *State) error {
	st.SetStage(StageCoordinating)
	w.notify(ctx, st, models.EventAnalysisComplete, AnalysisCompleteMessage(st))

	sum := BuildSummary(st, w.cfg.Thresholds)
	if w.cfg.Summarizer != nil {
		enhanced, err := w.cfg.Summarizer.Summarize(ctx, st.Details, sum)
		if err != nil {
			msg := fmt.Sprintf("summary generation failed, using computed summary: %v", err)
			w.log.Warning("%s", msg)
			st.Warnings = append(st.Warnings, msg)
		} else {
			sum = mergeNarrative(sum, enhanced)
		}
	}
	st.Summary = &sum
	return nil
}

func (w *Workflow) decide(_ context.Context, st *State) error {
	st.SetStage(StageDeciding)
	if st.Summary == nil {
		return errors.New("decide before coordination")
	}

	st.HasCriticalIssues, st.CriticalReason = Decide(st, w.cfg.Thresholds)
	if st.HasCriticalIssues {
		w.log.Warning("Critical issues: %s", st.CriticalReason)
	} else {
		w.log.VerboseLog("no critical issues")
	}
	return nil
}

func (w *Workflow) report(ctx context.Context, st *State) error {
	st.SetStage(StageReporting)

	text := FormatReport(st, w.cfg.Thresholds)
	w.notify(ctx, st, models.EventFinalReport, FinalReportMessage(st, text))

	if st.HasCriticalIssues {
		st.SetStage(StageEscalated)
		w.log.Warning("Review %s escalated: %s", st.ID, st.CriticalReason)
	} else {
		st.SetStage(StageCompleted)
		w.log.Info("Review %s completed", st.ID)
	}
	return nil
}

// fail is the error stage: a best-effort notification, then the terminal stage.
func (w *Workflow) fail(ctx context.Context, st *State) error {
	failed := st.Stage
	w.log.Warning("Review %s failed in %s: %s", st.ID, failed, st.Error)

	// The review may have failed because ctx is done; still try to notify.
	nctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
	}
	w.notify(nctx, st, models.EventErrorNotification, ErrorMessage(st, failed))

	st.SetStage(StageError)
	return nil
}

// notify sends one notification and records the attempt.
func (w *Workflow) notify(ctx context.Context, st *State, event models.NotificationEvent, msg models.Message) {
	if w.cfg.Notifier == nil {
		return
	}
	err := w.cfg.Notifier.Notify(ctx, event, msg)
	if err != nil {
		w.log.Warning("notification %s failed: %v", event, err)
	}
	st.Apply(Update{Notifications: []models.Notification{{
		Event:     event,
		Delivered: err == nil,
		Timestamp: time.Now(),
	}}})
}
