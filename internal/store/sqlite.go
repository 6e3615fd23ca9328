package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/reviewpipe/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers; the MCP server and CLI can share a file.
	db.SetMaxOpenConns(1)

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p.what, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const reviewColumns = `id, review_id, owner, repo, change_id, stage, recommendation, critical, critical_reason,
	files_reviewed, error, state_json, created_at, finished_at`

func (s *SQLiteStore) SaveReview(ctx context.Context, rec *models.ReviewRecord) error {
	if rec.ID == "" {
		rec.ID = newULID()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.FinishedAt = rec.FinishedAt.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (`+reviewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ReviewID, rec.Owner, rec.Repo, rec.ChangeID, rec.Stage, rec.Recommendation,
		boolToInt(rec.Critical), rec.CriticalReason, rec.FilesReviewed, rec.Error, rec.StateJSON,
		rec.CreatedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	return nil
}

// GetReview looks a review up by record id or review id. A unique prefix of
// either is accepted.
func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*models.ReviewRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	recs, err := s.scanReviews(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = ? OR review_id = ?`, id, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		prefix := escapeLike(strings.ToUpper(id)) + "%"
		recs, err = s.scanReviews(ctx,
			`SELECT `+reviewColumns+` FROM reviews
			WHERE upper(id) LIKE ? ESCAPE '\' OR upper(review_id) LIKE ? ESCAPE '\'
			ORDER BY finished_at DESC LIMIT 2`, prefix, prefix)
		if err != nil {
			return nil, err
		}
	}

	switch len(recs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return recs[0], nil
	default:
		return nil, fmt.Errorf("ambiguous review id %q: matches %s and %s", id, recs[0].ReviewID, recs[1].ReviewID)
	}
}

func (s *SQLiteStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]*models.ReviewRecord, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE 1=1`
	var args []any
	if filter.Owner != "" {
		query += " AND owner = ?"
		args = append(args, filter.Owner)
	}
	if filter.Repo != "" {
		query += " AND repo = ?"
		args = append(args, filter.Repo)
	}
	if filter.Stage != "" {
		query += " AND stage = ?"
		args = append(args, filter.Stage)
	}
	query += " ORDER BY finished_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return s.scanReviews(ctx, query, args...)
}

func (s *SQLiteStore) DeleteReview(ctx context.Context, id string) error {
	rec, err := s.GetReview(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM reviews WHERE id = ?", rec.ID); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanReviews(ctx context.Context, query string, args ...any) ([]*models.ReviewRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*models.ReviewRecord
	for rows.Next() {
		r := &models.ReviewRecord{}
		var critical int
		if err := rows.Scan(&r.ID, &r.ReviewID, &r.Owner, &r.Repo, &r.ChangeID, &r.Stage, &r.Recommendation,
			&critical, &r.CriticalReason, &r.FilesReviewed, &r.Error, &r.StateJSON,
			&r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		r.Critical = critical != 0
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
