// Package status mirrors the task currently being worked on into a Cursor
// rule file so editor tooling can pick it up.
package status

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/taskqueue/internal/models"
)

const (
	relPath      = ".cursor/rules/current_status.mdc"
	excerptLines = 40
)

var ruleLink = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+\.mdc?)\)`)

// SideFileReader reads linked rule files.
type SideFileReader interface {
	ReadSideFile(path string) (string, error)
}

// WriteRecorder observes document writes.
type WriteRecorder interface {
	RecordStatusWrite(ok bool)
}

// Option configures a Writer.
type Option func(*Writer)

// WithRecorder attaches a write recorder.
func WithRecorder(r WriteRecorder) Option {
	return func(w *Writer) { w.recorder = r }
}

// Writer renders the current status document. A Writer with no base
// directory does nothing.
type Writer struct {
	baseDir  string
	reader   SideFileReader
	recorder WriteRecorder
	logger   zerolog.Logger
}

// New creates a status writer rooted at baseDir.
func New(baseDir string, reader SideFileReader, logger zerolog.Logger, opts ...Option) *Writer {
	w := &Writer{
		baseDir: baseDir,
		reader:  reader,
		logger:  logger.With().Str("component", "status").Logger(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Enabled reports whether a base directory is configured.
func (w *Writer) Enabled() bool {
	return w.baseDir != ""
}

// Path returns the document path, or "" when disabled.
func (w *Writer) Path() string {
	if !w.Enabled() {
		return ""
	}
	return filepath.Join(w.baseDir, filepath.FromSlash(relPath))
}

// TaskChanged renders the task selected for p after t changed.
func (w *Writer) TaskChanged(p *models.Project, t *models.Task) {
	if !w.Enabled() {
		return
	}
	selected := SelectTask(p, t)
	excerpt := ""
	if selected != nil {
		excerpt = w.linkedExcerpt(selected.Description)
	}
	w.write(Render(p, selected, excerpt))
}

// ProjectCompleted clears the document.
func (w *Writer) ProjectCompleted(_ *models.Project) {
	if !w.Enabled() {
		return
	}
	w.write(Render(nil, nil, ""))
}

// SelectTask picks the task to show after affected changed. A task that went
// back to not started leaves nothing active. A done task yields to another
// unapproved task of the project that is in progress.
func SelectTask(p *models.Project, affected *models.Task) *models.Task {
	switch affected.Status {
	case models.StatusNotStarted:
		return nil
	case models.StatusDone:
		for _, t := range p.Tasks {
			if t.ID != affected.ID && t.Status == models.StatusInProgress && !t.Approved {
				return t
			}
		}
	}
	return affected
}

// Render builds the document. A nil project renders the cleared document; a
// nil task renders the project with no active task.
func Render(p *models.Project, t *models.Task, excerpt string) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("description: Current project and task being worked on\n")
	b.WriteString("globs:\n")
	b.WriteString("alwaysApply: true\n")
	b.WriteString("---\n\n")

	if p == nil {
		b.WriteString("# Project: none\n\n")
		b.WriteString("# Task: none\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("# Project: %s\n", p.ProjectID))
	b.WriteString(fmt.Sprintf("- **Progress:** %d/%d tasks done\n", p.CountDone(), len(p.Tasks)))
	b.WriteString(fmt.Sprintf("\n## Initial Prompt\n%s\n", p.InitialPrompt))
	if p.ProjectPlan != "" && p.ProjectPlan != p.InitialPrompt {
		b.WriteString(fmt.Sprintf("\n## Plan\n%s\n", p.ProjectPlan))
	}

	if t == nil {
		b.WriteString("\n# Task: none\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("\n# Task: %s %s\n", t.ID, t.Title))
	b.WriteString(fmt.Sprintf("- **Status:** %s\n", t.Status))
	b.WriteString(fmt.Sprintf("- **Approved:** %t\n", t.Approved))
	if t.Description != "" {
		b.WriteString(fmt.Sprintf("\n## Description\n%s\n", t.Description))
	}
	if t.CompletedDetails != "" {
		b.WriteString(fmt.Sprintf("\n## Completed Details\n%s\n", t.CompletedDetails))
	}
	if excerpt != "" {
		b.WriteString(fmt.Sprintf("\n## Linked Rule\n%s\n", excerpt))
	}
	return b.String()
}

// linkedExcerpt returns the first lines of the first rule file linked from
// text. Read failures are logged and yield no excerpt.
func (w *Writer) linkedExcerpt(text string) string {
	m := ruleLink.FindStringSubmatch(text)
	if m == nil || w.reader == nil {
		return ""
	}
	path := m[1]
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.baseDir, path)
	}
	content, err := w.reader.ReadSideFile(path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("failed to read linked rule file")
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) > excerptLines {
		lines = lines[:excerptLines]
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func (w *Writer) write(doc string) {
	path := w.Path()
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err == nil {
		err = os.WriteFile(path, []byte(doc), 0o644)
	}
	if w.recorder != nil {
		w.recorder.RecordStatusWrite(err == nil)
	}
	if err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("failed to write status document")
		return
	}
	w.logger.Debug().Str("path", path).Msg("status document written")
}
