// Package journal keeps an append-only SQLite history of project lifecycle
// events. The JSON data file stays the source of truth; the journal only
// records what happened to it.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Event is one recorded lifecycle change.
type Event struct {
	ID        string    `json:"id" yaml:"id"`
	ProjectID string    `json:"projectId" yaml:"projectId"`
	TaskID    string    `json:"taskId,omitempty" yaml:"taskId,omitempty"`
	EventType string    `json:"eventType" yaml:"eventType"`
	Summary   string    `json:"summary" yaml:"summary"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Journal manages the SQLite database.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.RWMutex
	now    func() time.Time
}

// Open opens (or creates) the journal database and runs migrations.
func Open(dbPath string, logger zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	j := &Journal{
		db:     db,
		logger: logger.With().Str("component", "journal").Logger(),
		now:    time.Now,
	}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	j.logger.Info().Str("path", dbPath).Msg("journal initialized")
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Append stores an event and returns it with id and timestamp filled in.
func (j *Journal) Append(ctx context.Context, e Event) (*Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e.ID = uuid.NewString()
	e.CreatedAt = j.now().UTC()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO project_events (id, project_id, task_id, event_type, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.TaskID, e.EventType, e.Summary, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return &e, nil
}

// RecordEvent appends an event, logging and discarding any failure.
func (j *Journal) RecordEvent(projectID, taskID, eventType, summary string) {
	_, err := j.Append(context.Background(), Event{
		ProjectID: projectID,
		TaskID:    taskID,
		EventType: eventType,
		Summary:   summary,
	})
	if err != nil {
		j.logger.Warn().Err(err).
			Str("project_id", projectID).
			Str("event_type", eventType).
			Msg("failed to record event")
	}
}

// ListEvents returns the newest events of a project first. A limit of zero
// or less returns every event.
func (j *Journal) ListEvents(ctx context.Context, projectID string, limit int) ([]Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, project_id, task_id, event_type, summary, created_at
		 FROM project_events WHERE project_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e       Event
			created int64
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.TaskID, &e.EventType, &e.Summary, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune deletes events older than the retention window and returns how many
// were removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().Add(-olderThan).UnixMilli()
	res, err := j.db.ExecContext(ctx, "DELETE FROM project_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		j.logger.Info().Int64("deleted", n).Msg("journal retention completed")
	}
	return n, nil
}
