package project

import (
	"fmt"
	"time"

	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/models"
	"github.com/p-blackswan/taskqueue/internal/storage"
)

// CreateProject creates a project and one task per definition, in order.
// Ids are allocated from the maxima found in the freshly reloaded file.
func (r *Registry) CreateProject(input CreateProjectInput) (out *CreateProjectResult, err error) {
	defer func(start time.Time) { r.observe("create_project", start, err) }(time.Now())

	err = r.mutate(func(f *models.StoreFile) (bool, error) {
		maxProject, maxTask := storage.CalculateMaxIDs(f)

		plan := input.ProjectPlan
		if plan == "" {
			plan = input.InitialPrompt
		}
		p := &models.Project{
			ProjectID:     storage.ProjectID(maxProject + 1),
			InitialPrompt: input.InitialPrompt,
			ProjectPlan:   plan,
			AutoApprove:   input.AutoApprove,
			Tasks:         newTasks(input.Tasks, maxTask),
		}
		f.Projects = append(f.Projects, p)

		out = &CreateProjectResult{
			ProjectID:  p.ProjectID,
			TotalTasks: len(p.Tasks),
			Tasks:      taskSummaries(p.Tasks),
			Message:    fmt.Sprintf("Project %s created with %d tasks.", p.ProjectID, len(p.Tasks)),
		}
		return true, nil
	}, func() {
		r.logger.Info().Str("project_id", out.ProjectID).Int("tasks", out.TotalTasks).Msg("project created")
		r.record(out.ProjectID, "", "project_created", fmt.Sprintf("created with %d tasks", out.TotalTasks))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddTasksToProject appends tasks to an open project.
func (r *Registry) AddTasksToProject(projectID string, defs []models.TaskDef) (out *AddTasksResult, err error) {
	defer func(start time.Time) { r.observe("add_tasks", start, err) }(time.Now())

	err = r.mutate(func(f *models.StoreFile) (bool, error) {
		p, err := findOpenProject(f, projectID)
		if err != nil {
			return false, err
		}
		_, maxTask := storage.CalculateMaxIDs(f)
		added := newTasks(defs, maxTask)
		p.Tasks = append(p.Tasks, added...)

		out = &AddTasksResult{
			ProjectID: p.ProjectID,
			NewTasks:  taskSummaries(added),
			Message:   fmt.Sprintf("Added %d new tasks to project %s.", len(added), p.ProjectID),
		}
		return true, nil
	}, func() {
		r.record(projectID, "", "tasks_added", fmt.Sprintf("added %d tasks", len(out.NewTasks)))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProject edits the prompt or plan of an open project.
func (r *Registry) UpdateProject(projectID string, input UpdateProjectInput) (out *models.Project, err error) {
	defer func(start time.Time) { r.observe("update_project", start, err) }(time.Now())

	err = r.mutate(func(f *models.StoreFile) (bool, error) {
		p, err := findOpenProject(f, projectID)
		if err != nil {
			return false, err
		}
		if input.InitialPrompt != nil {
			p.InitialPrompt = *input.InitialPrompt
		}
		if input.ProjectPlan != nil {
			p.ProjectPlan = *input.ProjectPlan
		}
		out = p.Clone()
		return true, nil
	}, func() {
		r.record(projectID, "", "project_updated", "prompt or plan edited")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveProjectCompletion marks a project completed once every task is done
// and approved. Completion is permanent.
func (r *Registry) ApproveProjectCompletion(projectID string) (out *ApproveProjectResult, err error) {
	defer func(start time.Time) { r.observe("approve_project", start, err) }(time.Now())

	var completed *models.Project
	err = r.mutate(func(f *models.StoreFile) (bool, error) {
		p, err := findOpenProject(f, projectID)
		if err != nil {
			return false, err
		}
		if !p.AllDone() {
			return false, perrors.New(perrors.KindTasksNotAllDone,
				"not all tasks in project %s are done (%d/%d)", projectID, p.CountDone(), len(p.Tasks))
		}
		if p.CountApproved() != len(p.Tasks) {
			return false, perrors.New(perrors.KindTasksNotAllApproved,
				"not all done tasks in project %s are approved (%d/%d)", projectID, p.CountApproved(), len(p.Tasks))
		}
		p.Completed = true
		completed = p.Clone()
		return true, nil
	}, func() {
		if r.notifier != nil {
			r.notifier.ProjectCompleted(completed)
		}
		r.logger.Info().Str("project_id", projectID).Msg("project completed")
		r.record(projectID, "", "project_completed", "project marked completed")
	})
	if err != nil {
		return nil, err
	}
	return &ApproveProjectResult{
		ProjectID: projectID,
		Message:   fmt.Sprintf("Project %s has been marked as completed.", projectID),
	}, nil
}

// DeleteProject removes a project by id. It is a convenience for external
// tooling and performs no lifecycle checks.
func (r *Registry) DeleteProject(projectID string) (err error) {
	defer func(start time.Time) { r.observe("delete_project", start, err) }(time.Now())

	return r.mutate(func(f *models.StoreFile) (bool, error) {
		_, idx := f.FindProject(projectID)
		if idx < 0 {
			return false, projectNotFound(projectID)
		}
		f.Projects = append(f.Projects[:idx], f.Projects[idx+1:]...)
		return true, nil
	}, func() {
		r.record(projectID, "", "project_deleted", "project removed")
	})
}

// ReadProject returns a snapshot of one project.
func (r *Registry) ReadProject(projectID string) (out *models.Project, err error) {
	defer func(start time.Time) { r.observe("read_project", start, err) }(time.Now())

	err = r.view(func(f *models.StoreFile) error {
		p, _ := f.FindProject(projectID)
		if p == nil {
			return projectNotFound(projectID)
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

// ListProjects returns projects matching filter, in file order.
func (r *Registry) ListProjects(filter StateFilter) (out []ProjectSummary, err error) {
	defer func(start time.Time) { r.observe("list_projects", start, err) }(time.Now())

	filter, err = ParseStateFilter(string(filter))
	if err != nil {
		return nil, err
	}
	err = r.view(func(f *models.StoreFile) error {
		out = make([]ProjectSummary, 0, len(f.Projects))
		for _, p := range f.Projects {
			if filter.matchProject(p) {
				out = append(out, summarize(p))
			}
		}
		return nil
	})
	return out, err
}

func newTasks(defs []models.TaskDef, maxTask int) []*models.Task {
	tasks := make([]*models.Task, 0, len(defs))
	for i, d := range defs {
		tasks = append(tasks, &models.Task{
			ID:                  storage.TaskID(maxTask + i + 1),
			Title:               d.Title,
			Description:         d.Description,
			Status:              models.StatusNotStarted,
			ToolRecommendations: d.ToolRecommendations,
			RuleRecommendations: d.RuleRecommendations,
		})
	}
	return tasks
}

func projectNotFound(projectID string) error {
	return perrors.New(perrors.KindProjectNotFound, "project %s not found", projectID)
}

func taskNotFound(taskID string) error {
	return perrors.New(perrors.KindTaskNotFound, "task %s not found", taskID)
}

// findOpenProject returns the project, failing when it is missing or completed.
func findOpenProject(f *models.StoreFile, projectID string) (*models.Project, error) {
	p, _ := f.FindProject(projectID)
	if p == nil {
		return nil, projectNotFound(projectID)
	}
	if p.Completed {
		return nil, perrors.New(perrors.KindProjectAlreadyCompleted, "project %s is already completed", projectID)
	}
	return p, nil
}
