package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesSchema(t *testing.T) {
	j := newTestJournal(t)

	for _, table := range []string{"project_events", "meta"} {
		var count int
		err := j.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	var version string
	require.NoError(t, j.db.QueryRow("SELECT value FROM meta WHERE key='schema_version'").Scan(&version))
	assert.Equal(t, "1", version)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	j.RecordEvent("proj-1", "", "project_created", "created")
	require.NoError(t, j.Close())

	j, err = Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer j.Close()
	events, err := j.ListEvents(context.Background(), "proj-1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAppendAndList_NewestFirst(t *testing.T) {
	j := newTestJournal(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	j.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	ctx := context.Background()
	first, err := j.Append(ctx, Event{ProjectID: "proj-1", EventType: "project_created", Summary: "created"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	_, err = j.Append(ctx, Event{ProjectID: "proj-1", TaskID: "task-1", EventType: "task_updated"})
	require.NoError(t, err)
	_, err = j.Append(ctx, Event{ProjectID: "proj-2", EventType: "project_created"})
	require.NoError(t, err)

	events, err := j.ListEvents(ctx, "proj-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "task_updated", events[0].EventType)
	assert.Equal(t, "task-1", events[0].TaskID)
	assert.Equal(t, "project_created", events[1].EventType)
	assert.Equal(t, first.ID, events[1].ID)
	assert.True(t, events[1].CreatedAt.Equal(base.Add(time.Second)))

	limited, err := j.ListEvents(ctx, "proj-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "task_updated", limited[0].EventType)

	none, err := j.ListEvents(ctx, "proj-9", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordEvent_FailureIsSwallowed(t *testing.T) {
	j := newTestJournal(t)
	require.NoError(t, j.db.Close())
	assert.NotPanics(t, func() { j.RecordEvent("proj-1", "", "project_created", "x") })
}

func TestPrune(t *testing.T) {
	j := newTestJournal(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	j.now = func() time.Time { return now.Add(-48 * time.Hour) }
	_, err := j.Append(ctx, Event{ProjectID: "proj-1", EventType: "project_created"})
	require.NoError(t, err)
	j.now = func() time.Time { return now }
	_, err = j.Append(ctx, Event{ProjectID: "proj-1", EventType: "tasks_added"})
	require.NoError(t, err)

	n, err := j.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := j.ListEvents(ctx, "proj-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "tasks_added", events[0].EventType)
}
