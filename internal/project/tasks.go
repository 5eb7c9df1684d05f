package project

import (
	"fmt"
	"strings"
	"time"

	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/models"
)

// UpdateTask applies a partial update to a task. Status changes must follow
// the transition table, and a task may only be done with completion details.
// Tasks of an autoApprove project are approved as soon as they reach done.
func (r *Registry) UpdateTask(projectID, taskID string, upd models.TaskUpdate) (out *models.Task, err error) {
	defer func(start time.Time) { r.observe("update_task", start, err) }(time.Now())

	var (
		project       *models.Project
		from          models.Status
		statusChanged bool
	)
	err = r.mutate(func(f *models.StoreFile) (bool, error) {
		p, err := findOpenProject(f, projectID)
		if err != nil {
			return false, err
		}
		t, _ := p.FindTask(taskID)
		if t == nil {
			return false, taskNotFound(taskID)
		}
		if t.Approved {
			return false, perrors.New(perrors.KindCannotModifyApprovedTask,
				"task %s is approved and can no longer be modified", taskID)
		}
		if upd.Empty() {
			out = t.Clone()
			return false, nil
		}

		from = t.Status
		final := t.Status
		if upd.Status != nil && *upd.Status != t.Status {
			if !upd.Status.Valid() {
				return false, perrors.New(perrors.KindInvalidArgument, "invalid status %q", *upd.Status)
			}
			if !t.Status.CanTransitionTo(*upd.Status) {
				return false, perrors.New(perrors.KindInvalidArgument,
					"invalid status transition from %q to %q for task %s; allowed: %s",
					t.Status, *upd.Status, taskID, joinStatuses(t.Status.AllowedTransitions()))
			}
			final = *upd.Status
			statusChanged = true
		}

		details := t.CompletedDetails
		if upd.CompletedDetails != nil {
			details = *upd.CompletedDetails
		}
		if final == models.StatusDone && strings.TrimSpace(details) == "" {
			return false, perrors.New(perrors.KindMissingParameter,
				"completedDetails is required when setting task %s to %q", taskID, models.StatusDone)
		}

		if upd.Title != nil {
			t.Title = *upd.Title
		}
		if upd.Description != nil {
			t.Description = *upd.Description
		}
		if upd.ToolRecommendations != nil {
			t.ToolRecommendations = *upd.ToolRecommendations
		}
		if upd.RuleRecommendations != nil {
			t.RuleRecommendations = *upd.RuleRecommendations
		}
		t.Status = final
		if final == models.StatusDone {
			t.CompletedDetails = details
			if p.AutoApprove {
				t.Approved = true
			}
		} else {
			t.CompletedDetails = ""
		}

		project = p.Clone()
		out = t.Clone()
		return true, nil
	}, func() {
		fieldsChanged := upd.Title != nil || upd.Description != nil || upd.CompletedDetails != nil ||
			upd.ToolRecommendations != nil || upd.RuleRecommendations != nil
		if r.notifier != nil && (statusChanged || (fieldsChanged && out.Status != models.StatusNotStarted)) {
			r.notifier.TaskChanged(project, out)
		}

		summary := "fields updated"
		if statusChanged {
			summary = fmt.Sprintf("status %s -> %s", from, out.Status)
			r.logger.Info().Str("project_id", projectID).Str("task_id", taskID).
				Str("from", string(from)).Str("to", string(out.Status)).Msg("task status changed")
		}
		r.record(projectID, taskID, "task_updated", summary)
		if out.Approved && statusChanged {
			r.record(projectID, taskID, "task_approved", "approved automatically")
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveTaskCompletion approves a done task. Approving an already approved
// task returns it unchanged.
func (r *Registry) ApproveTaskCompletion(projectID, taskID string) (out *models.Task, err error) {
	defer func(start time.Time) { r.observe("approve_task", start, err) }(time.Now())

	var changed bool
	err = r.mutate(func(f *models.StoreFile) (bool, error) {
		p, _ := f.FindProject(projectID)
		if p == nil {
			return false, projectNotFound(projectID)
		}
		t, _ := p.FindTask(taskID)
		if t == nil {
			return false, taskNotFound(taskID)
		}
		if t.Status != models.StatusDone {
			return false, perrors.New(perrors.KindTaskNotDone,
				"task %s is %q; only done tasks can be approved", taskID, t.Status)
		}
		if !t.Approved {
			t.Approved = true
			changed = true
		}
		out = t.Clone()
		return changed, nil
	}, func() {
		r.record(projectID, taskID, "task_approved", "approved")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetNextTask returns the first task, in insertion order, that is not both
// done and approved.
func (r *Registry) GetNextTask(projectID string) (out *NextTaskResult, err error) {
	defer func(start time.Time) { r.observe("next_task", start, err) }(time.Now())

	err = r.view(func(f *models.StoreFile) error {
		p, err := findOpenProject(f, projectID)
		if err != nil {
			return err
		}
		if len(p.Tasks) == 0 {
			return perrors.New(perrors.KindTaskNotFound, "project %s has no tasks", projectID)
		}
		for _, t := range p.Tasks {
			if !t.Finished() {
				out = &NextTaskResult{
					Status:  NextTaskAvailable,
					Task:    t.Clone(),
					Message: fmt.Sprintf("Next task is %s: %s", t.ID, t.Title),
				}
				return nil
			}
		}
		out = &NextTaskResult{
			Status:  NextTaskAllDone,
			Message: "All tasks have been completed and approved. Awaiting project completion approval.",
		}
		return nil
	})
	return out, err
}

// DeleteTask removes a task that has not been approved from an open project.
func (r *Registry) DeleteTask(projectID, taskID string) (err error) {
	defer func(start time.Time) { r.observe("delete_task", start, err) }(time.Now())

	return r.mutate(func(f *models.StoreFile) (bool, error) {
		p, err := findOpenProject(f, projectID)
		if err != nil {
			return false, err
		}
		t, idx := p.FindTask(taskID)
		if t == nil {
			return false, taskNotFound(taskID)
		}
		if t.Approved {
			return false, perrors.New(perrors.KindCannotModifyApprovedTask,
				"task %s is approved and cannot be deleted", taskID)
		}
		p.Tasks = append(p.Tasks[:idx], p.Tasks[idx+1:]...)
		return true, nil
	}, func() {
		r.record(projectID, taskID, "task_deleted", "task removed")
	})
}

// ListTasks returns tasks matching filter. An empty projectID lists the tasks
// of every project.
func (r *Registry) ListTasks(projectID string, filter StateFilter) (out []TaskListing, err error) {
	defer func(start time.Time) { r.observe("list_tasks", start, err) }(time.Now())

	filter, err = ParseStateFilter(string(filter))
	if err != nil {
		return nil, err
	}
	err = r.view(func(f *models.StoreFile) error {
		projects := f.Projects
		if projectID != "" {
			p, _ := f.FindProject(projectID)
			if p == nil {
				return projectNotFound(projectID)
			}
			projects = []*models.Project{p}
		}
		out = []TaskListing{}
		for _, p := range projects {
			for _, t := range p.Tasks {
				if filter.matchTask(t) {
					out = append(out, TaskListing{ProjectID: p.ProjectID, Task: *t.Clone()})
				}
			}
		}
		return nil
	})
	return out, err
}

// OpenTaskDetails finds a task by id across all projects.
func (r *Registry) OpenTaskDetails(taskID string) (out *TaskDetails, err error) {
	defer func(start time.Time) { r.observe("task_details", start, err) }(time.Now())

	err = r.view(func(f *models.StoreFile) error {
		for _, p := range f.Projects {
			if t, _ := p.FindTask(taskID); t != nil {
				out = &TaskDetails{ProjectID: p.ProjectID, ProjectCompleted: p.Completed, Task: t.Clone()}
				return nil
			}
		}
		return taskNotFound(taskID)
	})
	return out, err
}

func joinStatuses(ss []models.Status) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
