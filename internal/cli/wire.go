package cli

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/taskqueue/internal/config"
	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/journal"
	"github.com/p-blackswan/taskqueue/internal/metrics"
	"github.com/p-blackswan/taskqueue/internal/planner"
	"github.com/p-blackswan/taskqueue/internal/project"
	"github.com/p-blackswan/taskqueue/internal/status"
	"github.com/p-blackswan/taskqueue/internal/storage"
)

// deps is the object graph behind every command.
type deps struct {
	store    *storage.FileStore
	registry *project.Registry
	journal  *journal.Journal // nil unless TASK_MANAGER_JOURNAL_PATH is set
	metrics  *metrics.Metrics
	status   *status.Writer // nil unless TASK_MANAGER_STATUS_DIR is set
}

func openDeps(cfg *config.Config, logger zerolog.Logger) (*deps, error) {
	d := &deps{
		store:   storage.New(cfg.DataFilePath(), logger),
		metrics: metrics.New(),
	}
	opts := []project.Option{project.WithRecorder(d.metrics)}

	if cfg.StatusEnabled() {
		d.status = status.New(cfg.StatusDir, d.store, logger, status.WithRecorder(d.metrics))
		opts = append(opts, project.WithNotifier(d.status))
	}

	if cfg.JournalEnabled() {
		j, err := journal.Open(cfg.JournalPath, logger)
		if err != nil {
			return nil, perrors.Wrap(perrors.KindConfigurationError, err, "failed to open journal %s", cfg.JournalPath)
		}
		d.journal = j
		opts = append(opts, project.WithJournal(j))
	}

	if cfg.PlannerEnabled() {
		gen := planner.New(cfg.LLMProvider, cfg.LLMModel, logger,
			planner.WithProvider("anthropic", planner.AnthropicFactory(cfg.AnthropicAPIKey, cfg.LLMTimeout, logger)))
		opts = append(opts, project.WithPlanner(gen))
	}

	d.registry = project.NewRegistry(d.store, logger, opts...)

	logger.Debug().
		Str("file", d.store.Path()).
		Bool("status_enabled", d.status != nil).
		Bool("journal_enabled", d.journal != nil).
		Msg("dependencies ready")

	return d, nil
}

// requireJournal fails with a configuration error when the journal is off.
func (d *deps) requireJournal() (*journal.Journal, error) {
	if d.journal == nil {
		return nil, perrors.New(perrors.KindConfigurationError,
			"journal is not configured: set TASK_MANAGER_JOURNAL_PATH")
	}
	return d.journal, nil
}

func (d *deps) Close() error {
	if d.journal == nil {
		return nil
	}
	if err := d.journal.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

// withDeps opens the object graph, runs fn, and closes the graph.
func (a *app) withDeps(fn func(d *deps) error) (err error) {
	d, err := openDeps(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, d.Close())
	}()
	return fn(d)
}
