package project

import "github.com/p-blackswan/taskqueue/internal/models"

// CreateProjectInput holds the parameters for creating a new project.
type CreateProjectInput struct {
	InitialPrompt string           `json:"initialPrompt"`
	ProjectPlan   string           `json:"projectPlan,omitempty"`
	Tasks         []models.TaskDef `json:"tasks"`
	AutoApprove   bool             `json:"autoApprove,omitempty"`
}

// UpdateProjectInput holds the parameters for editing a project's prompt or plan.
type UpdateProjectInput struct {
	InitialPrompt *string `json:"initialPrompt,omitempty"`
	ProjectPlan   *string `json:"projectPlan,omitempty"`
}

// GeneratePlanInput holds the parameters for LLM-backed project creation.
type GeneratePlanInput struct {
	Prompt      string   `json:"prompt"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	AutoApprove bool     `json:"autoApprove,omitempty"`
}

// TaskSummary is the short form of a task returned by create operations.
type TaskSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateProjectResult is returned by CreateProject and GenerateProjectPlan.
type CreateProjectResult struct {
	ProjectID  string        `json:"projectId"`
	TotalTasks int           `json:"totalTasks"`
	Tasks      []TaskSummary `json:"tasks"`
	Message    string        `json:"message"`
}

// AddTasksResult is returned by AddTasksToProject.
type AddTasksResult struct {
	ProjectID string        `json:"projectId"`
	NewTasks  []TaskSummary `json:"newTasks"`
	Message   string        `json:"message"`
}

// ApproveProjectResult is returned by ApproveProjectCompletion.
type ApproveProjectResult struct {
	ProjectID string `json:"projectId"`
	Message   string `json:"message"`
}

// NextTaskStatus distinguishes a runnable task from the end of a project.
type NextTaskStatus string

const (
	NextTaskAvailable NextTaskStatus = "next_task"
	NextTaskAllDone   NextTaskStatus = "all_tasks_done"
)

// NextTaskResult is returned by GetNextTask. Task is nil when Status is
// NextTaskAllDone.
type NextTaskResult struct {
	Status  NextTaskStatus `json:"status"`
	Task    *models.Task   `json:"task,omitempty"`
	Message string         `json:"message"`
}

// ProjectSummary is one row of ListProjects.
type ProjectSummary struct {
	ProjectID      string `json:"projectId"`
	InitialPrompt  string `json:"initialPrompt"`
	TotalTasks     int    `json:"totalTasks"`
	CompletedTasks int    `json:"completedTasks"`
	ApprovedTasks  int    `json:"approvedTasks"`
	Completed      bool   `json:"completed"`
	AutoApprove    bool   `json:"autoApprove"`
}

// TaskListing is one row of ListTasks.
type TaskListing struct {
	ProjectID string `json:"projectId"`
	models.Task
}

// TaskDetails is returned by OpenTaskDetails.
type TaskDetails struct {
	ProjectID        string       `json:"projectId"`
	ProjectCompleted bool         `json:"projectCompleted"`
	Task             *models.Task `json:"task"`
}

func summarize(p *models.Project) ProjectSummary {
	return ProjectSummary{
		ProjectID:      p.ProjectID,
		InitialPrompt:  p.InitialPrompt,
		TotalTasks:     len(p.Tasks),
		CompletedTasks: p.CountDone(),
		ApprovedTasks:  p.CountApproved(),
		Completed:      p.Completed,
		AutoApprove:    p.AutoApprove,
	}
}

func taskSummaries(tasks []*models.Task) []TaskSummary {
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskSummary{ID: t.ID, Title: t.Title, Description: t.Description})
	}
	return out
}
