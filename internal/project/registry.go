// Package project implements the project and task lifecycle on top of the
// shared JSON store.
//
// Every operation reloads the file before touching it, so readers see writes
// made by other processes and writers allocate ids from the newest state on
// disk. This narrows, but does not close, the window in which a concurrent
// writer in another process can overwrite a change: the file is not locked.
package project

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/taskqueue/internal/models"
	"github.com/p-blackswan/taskqueue/internal/planner"
	"github.com/p-blackswan/taskqueue/internal/storage"
)

// Notifier is told about transitions that change what is being worked on.
// Implementations must not fail the caller.
type Notifier interface {
	TaskChanged(p *models.Project, t *models.Task)
	ProjectCompleted(p *models.Project)
}

// EventRecorder keeps a history of committed lifecycle events.
type EventRecorder interface {
	RecordEvent(projectID, taskID, eventType, summary string)
}

// OperationRecorder observes the outcome and latency of every operation.
type OperationRecorder interface {
	ObserveOperation(op string, d time.Duration, err error)
}

// Planner turns a free-form request into a project plan and task list.
type Planner interface {
	Generate(ctx context.Context, req planner.Request) (*planner.Plan, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier attaches a status notifier.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithJournal attaches a lifecycle event recorder.
func WithJournal(j EventRecorder) Option {
	return func(r *Registry) { r.journal = j }
}

// WithRecorder attaches an operation recorder such as a metrics collector.
func WithRecorder(rec OperationRecorder) Option {
	return func(r *Registry) { r.recorder = rec }
}

// WithPlanner enables GenerateProjectPlan.
func WithPlanner(p Planner) Option {
	return func(r *Registry) { r.planner = p }
}

// Registry is the only writer of projects and tasks.
type Registry struct {
	store    *storage.FileStore
	ops      *storage.FIFO
	notifier Notifier
	journal  EventRecorder
	recorder OperationRecorder
	planner  Planner
	logger   zerolog.Logger
}

// NewRegistry creates a registry over store.
func NewRegistry(store *storage.FileStore, logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		ops:    storage.NewFIFO(),
		logger: logger.With().Str("component", "project.registry").Logger(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Store returns the underlying file store.
func (r *Registry) Store() *storage.FileStore {
	return r.store
}

// mutate reloads the file, runs fn and saves if fn reports a change. The
// whole read-modify-write holds the registry queue so that two calls in this
// process never interleave. committed, if set, runs after a successful save
// while the queue is still held, so side effects follow commit order. Nothing
// is written when fn fails.
func (r *Registry) mutate(fn func(f *models.StoreFile) (bool, error), committed func()) error {
	return r.ops.Do(func() error {
		f, err := r.store.Reload()
		if err != nil {
			return err
		}
		changed, err := fn(f)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := r.store.Save(f); err != nil {
			return err
		}
		if committed != nil {
			committed()
		}
		return nil
	})
}

// view reloads the file and runs fn without saving.
func (r *Registry) view(fn func(f *models.StoreFile) error) error {
	return r.ops.Do(func() error {
		f, err := r.store.Reload()
		if err != nil {
			return err
		}
		return fn(f)
	})
}

func (r *Registry) observe(op string, start time.Time, err error) {
	if r.recorder != nil {
		r.recorder.ObserveOperation(op, time.Since(start), err)
	}
	if err != nil {
		r.logger.Debug().Err(err).Str("op", op).Msg("operation failed")
	}
}

func (r *Registry) record(projectID, taskID, eventType, summary string) {
	if r.journal != nil {
		r.journal.RecordEvent(projectID, taskID, eventType, summary)
	}
}
