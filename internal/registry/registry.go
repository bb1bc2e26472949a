// Package registry records pipeline runs and saved models in SQLite.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run or model does not exist.
var ErrNotFound = errors.New("registry: not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one execution of the pipeline.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
}

// ModelRecord is a saved pipeline with its test metrics. Metrics that
// could not be computed are NaN.
type ModelRecord struct {
	RunID     string
	Dataset   string
	Model     string
	Path      string
	ROCAUC    float64
	PRAUC     float64
	Accuracy  float64
	CreatedAt time.Time
}

// Registry manages the run database.
type Registry struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the registry at path.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection serializes writers from concurrent stages
	db.SetMaxOpenConns(1)

	r := &Registry{db: db, path: path, now: time.Now}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

// Close closes the database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Registry) Path() string {
	return r.path
}

func (r *Registry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS models (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		dataset TEXT NOT NULL,
		model TEXT NOT NULL,
		path TEXT NOT NULL,
		roc_auc REAL,
		pr_auc REAL,
		accuracy REAL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	CREATE INDEX IF NOT EXISTS idx_models_dataset ON models(dataset, model);
	`
	_, err := r.db.Exec(schema)
	return err
}

// timeLayout keeps a fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// StartRun inserts a running run and returns its id.
func (r *Registry) StartRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		id, formatTime(r.now()), StatusRunning)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the end time and final status of a run.
func (r *Registry) FinishRun(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ? WHERE id = ?`,
		formatTime(r.now()), status, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// Run returns a run by id.
func (r *Registry) Run(ctx context.Context, id string) (Run, error) {
	row := r.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

// ListRuns returns every run, most recent first.
func (r *Registry) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, selectRuns+` ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// RecordModel stores a saved model. A zero CreatedAt is set to now.
func (r *Registry) RecordModel(ctx context.Context, rec ModelRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO models (run_id, dataset, model, path, roc_auc, pr_auc, accuracy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Dataset, rec.Model, rec.Path,
		nullable(rec.ROCAUC), nullable(rec.PRAUC), nullable(rec.Accuracy),
		formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("record model: %w", err)
	}
	return nil
}

const selectRuns = `SELECT id, started_at, finished_at, status FROM runs`

const selectModels = `SELECT run_id, dataset, model, path, roc_auc, pr_auc, accuracy, created_at FROM models`

// ListModels returns the models of a dataset, or of all datasets when
// dataset is empty, oldest first.
func (r *Registry) ListModels(ctx context.Context, dataset string) ([]ModelRecord, error) {
	query := selectModels + ` WHERE (? = '' OR dataset = ?) ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, dataset, dataset)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []ModelRecord
	for rows.Next() {
		rec, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Latest returns the most recent model of a dataset with the given name.
func (r *Registry) Latest(ctx context.Context, dataset, model string) (ModelRecord, error) {
	row := r.db.QueryRowContext(ctx,
		selectModels+` WHERE dataset = ? AND model = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		dataset, model)
	rec, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelRecord{}, fmt.Errorf("%s %s model: %w", dataset, model, ErrNotFound)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var run Run
	var started string
	var finished sql.NullString
	if err := s.Scan(&run.ID, &started, &finished, &run.Status); err != nil {
		return Run{}, err
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}

func scanModel(s scanner) (ModelRecord, error) {
	var rec ModelRecord
	var roc, pr, acc sql.NullFloat64
	var created string
	if err := s.Scan(&rec.RunID, &rec.Dataset, &rec.Model, &rec.Path, &roc, &pr, &acc, &created); err != nil {
		return ModelRecord{}, err
	}
	rec.ROCAUC, rec.PRAUC, rec.Accuracy = orNaN(roc), orNaN(pr), orNaN(acc)
	var err error
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return ModelRecord{}, err
	}
	return rec, nil
}
