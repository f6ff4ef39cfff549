// Package runlog keeps a SQLite record of experiment runs and their shots.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/plume-lab/plume/tdc"
)

// ErrNoRun is returned when a run id is not in the log
var ErrNoRun = errors.New("no such run")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  id         TEXT PRIMARY KEY,
  started_ms INTEGER NOT NULL,
  note       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS shots (
  run_id        TEXT NOT NULL REFERENCES runs(id),
  idx           INTEGER NOT NULL,
  wall_ms       INTEGER NOT NULL,
  set_delay_ns  INTEGER NOT NULL,
  true_delay_ns INTEGER NOT NULL,
  image         TEXT NOT NULL,
  ch1           INTEGER NOT NULL,
  ch2           INTEGER NOT NULL,
  ch3           INTEGER NOT NULL,
  ch4           INTEGER NOT NULL,
  x             INTEGER NOT NULL,
  y             INTEGER NOT NULL,
  PRIMARY KEY (run_id, idx)
);`

// Run is one scan
type Run struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`
	Note    string    `json:"note"`
}

// Shot is the record of one ablation shot
type Shot struct {
	// RunID is the run the shot belongs to
	RunID string `json:"runId"`

	// Index counts shots within the run from zero
	Index int `json:"index"`

	// Time is the wall time of the shot
	Time time.Time `json:"time"`

	// SetDelay is the programmed flashlamp delay, ns
	SetDelay int64 `json:"setDelay"`

	// TrueDelay is the delay measured by the TDC, ns
	TrueDelay int64 `json:"trueDelay"`

	// Image is the path of the saved frame
	Image string `json:"image"`

	// Counts are the TDC events per channel
	Counts tdc.Counts `json:"counts"`

	// X and Y are the stage position, steps of motor 2 and motor 1
	X int `json:"x"`
	Y int `json:"y"`
}

// Store is a run log backed by a SQLite file
type Store struct {
	db *sql.DB
}

// Open opens or creates the log at path.  ":memory:" makes a private
// in-memory log
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps :memory: alive
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating run log schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRun starts a run with a fresh id
func (s *Store) NewRun(ctx context.Context, note string) (Run, error) {
	r := Run{ID: uuid.NewString(), Started: time.Now().UTC(), Note: note}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs(id, started_ms, note) VALUES (?, ?, ?)",
		r.ID, r.Started.UnixMilli(), r.Note)
	if err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}
	// the database keeps milliseconds
	r.Started = r.Started.Truncate(time.Millisecond)
	return r, nil
}

// Record appends a shot to its run
func (s *Store) Record(ctx context.Context, sh Shot) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO shots(run_id, idx, wall_ms, set_delay_ns, true_delay_ns, image, ch1, ch2, ch3, ch4, x, y)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.RunID, sh.Index, sh.Time.UnixMilli(), sh.SetDelay, sh.TrueDelay, sh.Image,
		sh.Counts[0], sh.Counts[1], sh.Counts[2], sh.Counts[3], sh.X, sh.Y)
	if err != nil {
		return fmt.Errorf("recording shot %d of run %s: %w", sh.Index, sh.RunID, err)
	}
	return nil
}

// Runs lists every run, oldest first
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, started_ms, note FROM runs ORDER BY started_ms, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var (
			r  Run
			ms int64
		)
		if err = rows.Scan(&r.ID, &ms, &r.Note); err != nil {
			return nil, err
		}
		r.Started = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Shots returns the shots of a run in order
func (s *Store) Shots(ctx context.Context, runID string) ([]Shot, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", runID).Scan(&n)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoRun, runID)
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT idx, wall_ms, set_delay_ns, true_delay_ns, image, ch1, ch2, ch3, ch4, x, y
FROM shots WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Shot
	for rows.Next() {
		sh := Shot{RunID: runID}
		var ms int64
		err = rows.Scan(&sh.Index, &ms, &sh.SetDelay, &sh.TrueDelay, &sh.Image,
			&sh.Counts[0], &sh.Counts[1], &sh.Counts[2], &sh.Counts[3], &sh.X, &sh.Y)
		if err != nil {
			return nil, err
		}
		sh.Time = time.UnixMilli(ms).UTC()
		out = append(out, sh)
	}
	return out, rows.Err()
}
