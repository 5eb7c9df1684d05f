// Package storage owns the on-disk JSON file shared by every process that
// manages the same set of projects.
//
// All file operations issued through one FileStore are serialized by a FIFO
// queue. Nothing coordinates separate processes: two instances pointed at the
// same file can still overwrite each other's writes if both reload before
// either saves. Callers narrow that window by reloading immediately before
// every mutation.
package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/models"
)

const (
	projectIDPrefix = "proj-"
	taskIDPrefix    = "task-"
)

// FileStore reads and writes one JSON data file.
type FileStore struct {
	path   string
	queue  *FIFO
	logger zerolog.Logger
}

// New creates a store for the file at path. The file does not need to exist.
func New(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		queue:  NewFIFO(),
		logger: logger.With().Str("component", "storage").Str("path", path).Logger(),
	}
}

// Path returns the data file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the data file. A missing file yields an empty store.
func (s *FileStore) Load() (*models.StoreFile, error) {
	var out *models.StoreFile
	err := s.queue.Do(func() error {
		f, err := s.read()
		out = f
		return err
	})
	return out, err
}

// Reload is Load, named for the refresh that precedes every mutation.
func (s *FileStore) Reload() (*models.StoreFile, error) {
	f, err := s.Load()
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("projects", len(f.Projects)).Msg("reloaded store")
	return f, nil
}

func (s *FileStore) read() (*models.StoreFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &models.StoreFile{Projects: []*models.Project{}}, nil
		}
		return nil, perrors.Wrap(perrors.KindFileReadError, err, "failed to read %s", s.path)
	}

	var f models.StoreFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, perrors.Wrap(perrors.KindFileReadError, err, "failed to parse %s", s.path)
	}
	if err := f.Validate(); err != nil {
		return nil, perrors.Wrap(perrors.KindFileReadError, err, "failed to parse %s", s.path)
	}
	f.Normalize()
	return &f, nil
}

// Save writes the whole store, creating parent directories as needed.
// The file is replaced by rename so readers never see a partial write.
func (s *FileStore) Save(f *models.StoreFile) error {
	return s.queue.Do(func() error {
		f.Normalize()
		data, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return perrors.Wrap(perrors.KindFileWriteError, err, "failed to encode store")
		}
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return classifyWriteError(err, "failed to create directory for "+s.path)
		}
		if err := writeFileAtomic(s.path, data, 0o644); err != nil {
			return classifyWriteError(err, "failed to write "+s.path)
		}
		s.logger.Debug().Int("projects", len(f.Projects)).Int("bytes", len(data)).Msg("saved store")
		return nil
	})
}

// ReadSideFile reads an auxiliary text file such as a plan attachment or a
// rule file linked from a task description.
func (s *FileStore) ReadSideFile(path string) (string, error) {
	var out string
	err := s.queue.Do(func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return perrors.Wrap(perrors.KindFileReadError, err, "file not found: %s", path)
			}
			return perrors.Wrap(perrors.KindFileReadError, err, "failed to read file %s", path)
		}
		out = string(data)
		return nil
	})
	return out, err
}

// CalculateMaxIDs returns the largest numeric suffix among project ids and
// among task ids. Ids that do not parse are ignored.
func CalculateMaxIDs(f *models.StoreFile) (maxProjectID, maxTaskID int) {
	if f == nil {
		return 0, 0
	}
	for _, p := range f.Projects {
		if n, ok := parseID(p.ProjectID, projectIDPrefix); ok && n > maxProjectID {
			maxProjectID = n
		}
		for _, t := range p.Tasks {
			if n, ok := parseID(t.ID, taskIDPrefix); ok && n > maxTaskID {
				maxTaskID = n
			}
		}
	}
	return maxProjectID, maxTaskID
}

// ProjectID formats the id of the n-th project.
func ProjectID(n int) string {
	return projectIDPrefix + strconv.Itoa(n)
}

// TaskID formats the id of the n-th task.
func TaskID(n int) string {
	return taskIDPrefix + strconv.Itoa(n)
}

func parseID(id, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func classifyWriteError(err error, msg string) error {
	if errors.Is(err, syscall.EROFS) {
		return perrors.Wrap(perrors.KindReadOnlyFileSystem, err, "%s: read-only file system", msg)
	}
	return perrors.Wrap(perrors.KindFileWriteError, err, "%s", msg)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
