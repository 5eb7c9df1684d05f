package journal

import "fmt"

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS project_events (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		task_id TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_project_events_project ON project_events(project_id, created_at);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := j.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', '1')`); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
