package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/banshee-data/eventseg/internal/segmentation"
	"github.com/banshee-data/eventseg/internal/timeutil"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("segmentation run not found")

// Run is a persisted segmentation result.
type Run struct {
	RunID        string                 `json:"run_id"`
	Source       string                 `json:"source"`
	FrameCount   int                    `json:"frame_count"`
	FeatureNames []string               `json:"feature_names"`
	PathCost     float64                `json:"path_cost"`
	Modes        []segmentation.Mode    `json:"modes"`
	Segments     []segmentation.Segment `json:"segments"`
	TuningJSON   json.RawMessage        `json:"tuning_json,omitempty"`
	DurationMs   int64                  `json:"duration_ms"`
	Workers      int                    `json:"workers"`
	CreatedAt    int64                  `json:"created_at"`
}

// RunStore provides persistence for segmentation runs.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore stamping runs with the wall clock.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used for CreatedAt.
func (s *RunStore) SetClock(c timeutil.Clock) { s.clock = c }

// encodeModes packs modes as one digit per frame ("11233331").
func encodeModes(modes []segmentation.Mode) string {
	var b strings.Builder
	b.Grow(len(modes))
	for _, m := range modes {
		b.WriteByte('0' + byte(m))
	}
	return b.String()
}

func decodeModes(s string) ([]segmentation.Mode, error) {
	modes := make([]segmentation.Mode, len(s))
	for i := 0; i < len(s); i++ {
		m := segmentation.Mode(s[i] - '0')
		if !m.Valid() {
			return nil, fmt.Errorf("invalid mode %q at frame %d", s[i], i)
		}
		modes[i] = m
	}
	return modes, nil
}

// Insert persists a run and its segments in one transaction. If RunID is
// empty a UUID is generated; if CreatedAt is zero the current time is used.
func (s *RunStore) Insert(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}

	names, err := json.Marshal(run.FeatureNames)
	if err != nil {
		return fmt.Errorf("failed to marshal feature names: %w", err)
	}
	var tuning interface{}
	if len(run.TuningJSON) > 0 {
		tuning = string(run.TuningJSON)
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`
			INSERT INTO segmentation_runs (
				run_id, source, frame_count, feature_names, path_cost,
				modes, tuning_json, duration_ms, workers, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Source, run.FrameCount, string(names), run.PathCost,
			encodeModes(run.Modes), tuning, run.DurationMs, run.Workers, run.CreatedAt,
		); err != nil {
			return err
		}

		for i, seg := range run.Segments {
			if _, err := tx.Exec(`
				INSERT INTO segmentation_segments (run_id, seq, start_frame, end_frame)
				VALUES (?, ?, ?, ?)`,
				run.RunID, i, seg.Start, seg.End,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

const runColumns = `run_id, source, frame_count, feature_names, path_cost,
	modes, tuning_json, duration_ms, workers, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run    Run
		names  string
		modes  string
		tuning sql.NullString
	)
	if err := row.Scan(&run.RunID, &run.Source, &run.FrameCount, &names, &run.PathCost,
		&modes, &tuning, &run.DurationMs, &run.Workers, &run.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(names), &run.FeatureNames); err != nil {
		return nil, fmt.Errorf("run %s: bad feature names: %w", run.RunID, err)
	}
	var err error
	if run.Modes, err = decodeModes(modes); err != nil {
		return nil, fmt.Errorf("run %s: %w", run.RunID, err)
	}
	if tuning.Valid {
		run.TuningJSON = json.RawMessage(tuning.String)
	}
	return &run, nil
}

// Get returns a run with its segments.
func (s *RunStore) Get(runID string) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM segmentation_runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run.Segments, err = s.segments(runID); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *RunStore) segments(runID string) ([]segmentation.Segment, error) {
	rows, err := s.db.Query(`
		SELECT start_frame, end_frame FROM segmentation_segments
		WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var segs []segmentation.Segment
	for rows.Next() {
		var seg segmentation.Segment
		if err := rows.Scan(&seg.Start, &seg.End); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// List returns the most recent runs, newest first, without segments.
// limit <= 0 returns every run.
func (s *RunStore) List(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM segmentation_runs ORDER BY created_at DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Delete removes a run and, through the foreign key cascade, its segments.
func (s *RunStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`DELETE FROM segmentation_runs WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}
