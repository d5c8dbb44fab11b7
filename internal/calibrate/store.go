// Package calibrate stores realized project outcomes, refits risk
// distributions from them, and scores how well past simulations predicted
// reality.
package calibrate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ProjectOutcome is one realized project result, the calibration unit.
type ProjectOutcome struct {
	ProjectID        string             `json:"project_id"`
	ProjectType      string             `json:"project_type"`
	CompletionDate   time.Time          `json:"completion_date"`
	ActualCost       float64            `json:"actual_cost"`
	BaselineCost     float64            `json:"baseline_cost"`
	ActualDuration   float64            `json:"actual_duration"`
	BaselineDuration float64            `json:"baseline_duration"`
	RiskOutcomes     map[string]float64 `json:"risk_outcomes"`
	Characteristics  map[string]any     `json:"project_characteristics"`
}

// Validate checks the outcome's structural invariants.
func (o ProjectOutcome) Validate() error {
	if o.ProjectID == "" {
		return fmt.Errorf("project outcome: project_id must not be empty")
	}
	if o.ActualCost < 0 || o.BaselineCost < 0 {
		return fmt.Errorf("project outcome %q: costs must be >= 0", o.ProjectID)
	}
	if o.ActualDuration < 0 || o.BaselineDuration < 0 {
		return fmt.Errorf("project outcome %q: durations must be >= 0", o.ProjectID)
	}
	return nil
}

// PerformanceRecord is one appended entry of a model's accuracy history.
type PerformanceRecord struct {
	ModelID    string          `json:"model_id"`
	Category   string          `json:"category"`
	Metrics    AccuracyMetrics `json:"metrics"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Store persists project outcomes and model-performance history in SQLite.
// Outcomes are never deleted automatically; later entries for the same
// project id supersede earlier ones. The store supports a single owning
// caller; a surrounding service is responsible for serializing writers.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS project_outcomes (
	project_id        TEXT PRIMARY KEY,
	project_type      TEXT NOT NULL,
	completion_date   TEXT NOT NULL,
	actual_cost       REAL NOT NULL,
	baseline_cost     REAL NOT NULL,
	actual_duration   REAL NOT NULL,
	baseline_duration REAL NOT NULL,
	risk_outcomes     TEXT NOT NULL,
	characteristics   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS model_performance (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	model_id    TEXT NOT NULL,
	category    TEXT NOT NULL,
	metrics     TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_model_performance_model ON model_performance(model_id, id);
`

// NewStore opens (or creates) the history database at path.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutOutcome upserts a project outcome by project id.
func (s *Store) PutOutcome(ctx context.Context, o ProjectOutcome) error {
	if err := o.Validate(); err != nil {
		return err
	}

	riskJSON, err := json.Marshal(o.RiskOutcomes)
	if err != nil {
		return fmt.Errorf("encode risk outcomes: %w", err)
	}
	charJSON, err := json.Marshal(o.Characteristics)
	if err != nil {
		return fmt.Errorf("encode characteristics: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO project_outcomes
			(project_id, project_type, completion_date, actual_cost, baseline_cost, actual_duration, baseline_duration, risk_outcomes, characteristics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			project_type      = excluded.project_type,
			completion_date   = excluded.completion_date,
			actual_cost       = excluded.actual_cost,
			baseline_cost     = excluded.baseline_cost,
			actual_duration   = excluded.actual_duration,
			baseline_duration = excluded.baseline_duration,
			risk_outcomes     = excluded.risk_outcomes,
			characteristics   = excluded.characteristics`,
		o.ProjectID, o.ProjectType, o.CompletionDate.UTC().Format(time.RFC3339), o.ActualCost, o.BaselineCost,
		o.ActualDuration, o.BaselineDuration, string(riskJSON), string(charJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert project outcome %q: %w", o.ProjectID, err)
	}
	return nil
}

// Outcomes returns all stored project outcomes in project-id order.
func (s *Store) Outcomes(ctx context.Context) ([]ProjectOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, project_type, completion_date, actual_cost, baseline_cost, actual_duration, baseline_duration, risk_outcomes, characteristics
		FROM project_outcomes ORDER BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("query project outcomes: %w", err)
	}
	defer rows.Close()

	var out []ProjectOutcome
	for rows.Next() {
		var o ProjectOutcome
		var completion, riskJSON, charJSON string
		if err := rows.Scan(&o.ProjectID, &o.ProjectType, &completion, &o.ActualCost, &o.BaselineCost,
			&o.ActualDuration, &o.BaselineDuration, &riskJSON, &charJSON); err != nil {
			return nil, fmt.Errorf("scan project outcome: %w", err)
		}
		if o.CompletionDate, err = time.Parse(time.RFC3339, completion); err != nil {
			return nil, fmt.Errorf("parse completion date for %q: %w", o.ProjectID, err)
		}
		if err := json.Unmarshal([]byte(riskJSON), &o.RiskOutcomes); err != nil {
			return nil, fmt.Errorf("decode risk outcomes for %q: %w", o.ProjectID, err)
		}
		if err := json.Unmarshal([]byte(charJSON), &o.Characteristics); err != nil {
			return nil, fmt.Errorf("decode characteristics for %q: %w", o.ProjectID, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// AppendPerformance appends one accuracy record to a model's chronological
// history.
func (s *Store) AppendPerformance(ctx context.Context, modelID, category string, m AccuracyMetrics) error {
	if modelID == "" {
		return fmt.Errorf("model performance: model_id must not be empty")
	}
	metricsJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO model_performance (model_id, category, metrics, recorded_at) VALUES (?, ?, ?, ?)`,
		modelID, category, string(metricsJSON), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append performance for %q: %w", modelID, err)
	}
	return nil
}

// PerformanceHistory returns a model's records oldest-first.
func (s *Store) PerformanceHistory(ctx context.Context, modelID string) ([]PerformanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT model_id, category, metrics, recorded_at FROM model_performance WHERE model_id = ? ORDER BY id`,
		modelID)
	if err != nil {
		return nil, fmt.Errorf("query performance history: %w", err)
	}
	defer rows.Close()

	var out []PerformanceRecord
	for rows.Next() {
		var rec PerformanceRecord
		var metricsJSON, recordedAt string
		if err := rows.Scan(&rec.ModelID, &rec.Category, &metricsJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan performance record: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &rec.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics for %q: %w", modelID, err)
		}
		if rec.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("parse recorded_at for %q: %w", modelID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
