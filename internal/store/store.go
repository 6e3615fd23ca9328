package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/review"
)

// ErrNotFound is returned when no review matches a lookup.
var ErrNotFound = errors.New("review not found")

// ReviewFilter specifies filters for listing reviews.
type ReviewFilter struct {
	Owner string
	Repo  string
	Stage string
	Limit int
}

// Store is the review history archive. It only records finished reviews;
// nothing is resumed from it.
type Store interface {
	SaveReview(ctx context.Context, rec *models.ReviewRecord) error
	GetReview(ctx context.Context, id string) (*models.ReviewRecord, error)
	ListReviews(ctx context.Context, filter ReviewFilter) ([]*models.ReviewRecord, error)
	DeleteReview(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// RecordFromState builds the archive record of a finished review.
func RecordFromState(st *review.State) (*models.ReviewRecord, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode review state: %w", err)
	}
	rec := &models.ReviewRecord{
		ReviewID:       st.ID,
		Owner:          st.Ref.Owner,
		Repo:           st.Ref.Repo,
		ChangeID:       st.Ref.Number,
		Stage:          string(st.Stage),
		Critical:       st.HasCriticalIssues,
		CriticalReason: st.CriticalReason,
		FilesReviewed:  len(st.Files),
		Error:          st.Error,
		StateJSON:      string(data),
		CreatedAt:      st.CreatedAt,
		FinishedAt:     st.UpdatedAt,
	}
	if st.Summary != nil {
		rec.Recommendation = string(st.Summary.Recommendation)
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	return rec, nil
}

// StateFromRecord decodes the review state kept in rec.
func StateFromRecord(rec *models.ReviewRecord) (*review.State, error) {
	var st review.State
	if err := json.Unmarshal([]byte(rec.StateJSON), &st); err != nil {
		return nil, fmt.Errorf("decode review state: %w", err)
	}
	return &st, nil
}
