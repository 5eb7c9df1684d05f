package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "data", "tasks.json"), zerolog.Nop())
}

func sampleStore() *models.StoreFile {
	return &models.StoreFile{Projects: []*models.Project{
		{
			ProjectID:     "proj-1",
			InitialPrompt: "build a thing",
			ProjectPlan:   "plan",
			Tasks: []*models.Task{
				{ID: "task-1", Title: "T1", Description: "D1", Status: models.StatusNotStarted},
				{ID: "task-2", Title: "T2", Description: "D2", Status: models.StatusDone, Approved: true,
					CompletedDetails: "shipped", ToolRecommendations: "use grep"},
			},
		},
		{ProjectID: "proj-4", InitialPrompt: "other", ProjectPlan: "other", AutoApprove: true, Tasks: []*models.Task{}},
	}}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	f, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, f.Projects)
	assert.Empty(t, f.Projects)
}

func TestLoad_MalformedJSON(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"projects": [`), 0o644))

	_, err := s.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrFileRead)
}

func TestLoad_UnknownStatusIsReadError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	raw := `{"projects":[{"projectId":"proj-1","tasks":[{"id":"task-1","status":"blocked"}]}]}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(raw), 0o644))

	_, err := s.Reload()
	assert.ErrorIs(t, err, perrors.ErrFileRead)
}

func TestLoad_NullEntriesAreReadError(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"null task", `{"projects":[{"projectId":"proj-1","tasks":[null]}]}`},
		{"null project", `{"projects":[null]}`},
		{"both", `{"projects":[{"projectId":"proj-1","tasks":[null]}, null]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
			require.NoError(t, os.WriteFile(s.Path(), []byte(tt.raw), 0o644))

			_, err := s.Load()
			assert.ErrorIs(t, err, perrors.ErrFileRead)
			assert.Contains(t, err.Error(), "is null")
		})
	}
}

func TestLoad_NullTasksNormalized(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"projects":[{"projectId":"proj-1","tasks":null}]}`), 0o644))

	f, err := s.Load()
	require.NoError(t, err)
	require.Len(t, f.Projects, 1)
	assert.NotNil(t, f.Projects[0].Tasks)
}

func TestSave_CreatesParentDirectories(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(sampleStore()))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestSave_PrettyPrinted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(sampleStore()))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"projects\": [\n")
	assert.Contains(t, string(data), `"status": "not started"`)
	assert.Contains(t, string(data), `"completedDetails": ""`)
}

func TestRoundTrip_LoadOfSaveIsDeepEqual(t *testing.T) {
	s := newTestStore(t)
	want := sampleStore()
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleStore(), got)
}

func TestRoundTrip_SaveOfLoadKeepsBytes(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(sampleStore()))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	f, err := s.Load()
	require.NoError(t, err)
	require.NoError(t, s.Save(f))

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSave_UnwritableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	s := New(filepath.Join(dir, "tasks.json"), zerolog.Nop())
	err := s.Save(sampleStore())
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrFileWrite)
}

func TestClassifyWriteError(t *testing.T) {
	rofs := &fs.PathError{Op: "open", Path: "/ro/tasks.json", Err: syscall.EROFS}
	err := classifyWriteError(rofs, "failed to write /ro/tasks.json")
	assert.ErrorIs(t, err, perrors.ErrReadOnlyFileSystem)
	assert.NotErrorIs(t, err, perrors.ErrFileWrite)

	other := &fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOSPC}
	err = classifyWriteError(other, "failed to write /x")
	assert.ErrorIs(t, err, perrors.ErrFileWrite)
}

func TestCalculateMaxIDs(t *testing.T) {
	maxProject, maxTask := CalculateMaxIDs(sampleStore())
	assert.Equal(t, 4, maxProject)
	assert.Equal(t, 2, maxTask)
}

func TestCalculateMaxIDs_IgnoresMalformed(t *testing.T) {
	f := &models.StoreFile{Projects: []*models.Project{
		{ProjectID: "proj-abc", Tasks: []*models.Task{{ID: "task-"}, {ID: "task-7x"}, {ID: "TASK-9"}}},
		{ProjectID: "project-12", Tasks: []*models.Task{{ID: "task-3"}}},
		{ProjectID: "proj-2"},
	}}
	maxProject, maxTask := CalculateMaxIDs(f)
	assert.Equal(t, 2, maxProject)
	assert.Equal(t, 3, maxTask)

	maxProject, maxTask = CalculateMaxIDs(&models.StoreFile{})
	assert.Zero(t, maxProject)
	assert.Zero(t, maxTask)
}

func TestIDFormatting(t *testing.T) {
	assert.Equal(t, "proj-12", ProjectID(12))
	assert.Equal(t, "task-3", TaskID(3))
}

func TestReadSideFile(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	content, err := s.ReadSideFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", content)

	_, err = s.ReadSideFile(filepath.Join(t.TempDir(), "missing.md"))
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrFileRead)
	assert.Contains(t, err.Error(), "file not found")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestReadSideFile_Directory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadSideFile(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrFileRead)
	assert.NotContains(t, err.Error(), "file not found")
}

func TestFIFO_ResumesInArrivalOrder(t *testing.T) {
	q := NewFIFO()
	q.Acquire()

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = q.Do(func() error {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil
			})
		}(i)
		require.Eventually(t, func() bool { return q.pending() == i+1 }, time.Second, time.Millisecond)
	}

	q.Release()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFIFO_ReleasedAfterFailure(t *testing.T) {
	q := NewFIFO()
	err := q.Do(func() error { return fmt.Errorf("boom") })
	assert.EqualError(t, err, "boom")

	done := make(chan struct{})
	go func() {
		_ = q.Do(func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue was not released after a failed operation")
	}
}

func TestFIFO_ReleaseIdlePanics(t *testing.T) {
	assert.Panics(t, func() { NewFIFO().Release() })
}

func TestStore_ConcurrentSavesSerialized(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			f := &models.StoreFile{Projects: []*models.Project{{ProjectID: ProjectID(n), Tasks: []*models.Task{}}}}
			assert.NoError(t, s.Save(f))
		}(i)
	}
	wg.Wait()

	f, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, f.Projects, 1)
}
