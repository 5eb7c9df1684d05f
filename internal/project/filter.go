package project

import (
	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/models"
)

// StateFilter selects projects or tasks by lifecycle state.
type StateFilter string

const (
	FilterAll             StateFilter = "all"
	FilterOpen            StateFilter = "open"
	FilterCompleted       StateFilter = "completed"
	FilterPendingApproval StateFilter = "pending_approval"
)

// ParseStateFilter validates a raw filter. Empty means all.
func ParseStateFilter(raw string) (StateFilter, error) {
	f := StateFilter(raw)
	switch f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterOpen, FilterCompleted, FilterPendingApproval:
		return f, nil
	}
	return "", perrors.New(perrors.KindInvalidState,
		"invalid state filter %q: must be one of all, open, completed, pending_approval", raw)
}

// matchProject: open is not completed; pending_approval is every task done
// with the project itself still open.
func (f StateFilter) matchProject(p *models.Project) bool {
	switch f {
	case FilterOpen:
		return !p.Completed
	case FilterCompleted:
		return p.Completed
	case FilterPendingApproval:
		return !p.Completed && len(p.Tasks) > 0 && p.AllDone()
	}
	return true
}

func (f StateFilter) matchTask(t *models.Task) bool {
	switch f {
	case FilterOpen:
		return !t.Finished()
	case FilterCompleted:
		return t.Finished()
	case FilterPendingApproval:
		return t.Status == models.StatusDone && !t.Approved
	}
	return true
}
