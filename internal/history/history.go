// Package history records agent runs and their steps in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"manus/internal/db"
)

// Run statuses.
const (
	StatusRunning     = "running"
	StatusFinished    = "finished"
	StatusMaxSteps    = "max_steps"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

type Run struct {
	ID         string
	Profile    string
	Model      string
	Prompt     string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
}

type Step struct {
	RunID     string
	N         int
	Kind      string // "thought", "tool" or "note"
	Name      string
	Content   string
	CreatedAt time.Time
}

type Store struct {
	conn *sql.DB
	now  func() time.Time
}

func NewStore(database *db.DB) *Store {
	return &Store{conn: database.Conn(), now: time.Now}
}

func (s *Store) StartRun(ctx context.Context, r Run) error {
	if r.Status == "" {
		r.Status = StatusRunning
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO runs (id, profile, model, prompt, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Profile, r.Model, r.Prompt, r.Status, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

func (s *Store) AppendStep(ctx context.Context, st Step) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO steps (run_id, step, kind, name, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		st.RunID, st.N, st.Kind, st.Name, st.Content, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting step: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, id, status string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, s.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, profile, model, prompt, status, started_at, finished_at FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Profile, &r.Model, &r.Prompt, &r.Status, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64)
	}
	return r, nil
}

func (s *Store) Steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT run_id, step, kind, name, content, created_at FROM steps WHERE run_id = ? ORDER BY step, id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var (
			st      Step
			created int64
		)
		if err := rows.Scan(&st.RunID, &st.N, &st.Kind, &st.Name, &st.Content, &created); err != nil {
			return nil, err
		}
		st.CreatedAt = time.UnixMilli(created)
		steps = append(steps, st)
	}
	return steps, rows.Err()
}
