// Package models defines the persisted shape of projects and tasks.
package models

import "fmt"

// StoreFile is the root document of the JSON data file.
type StoreFile struct {
	Projects []*Project `json:"projects"`
}

// Project is an ordered collection of tasks created from one request.
type Project struct {
	ProjectID     string  `json:"projectId"`
	InitialPrompt string  `json:"initialPrompt"`
	ProjectPlan   string  `json:"projectPlan"`
	Completed     bool    `json:"completed"`
	AutoApprove   bool    `json:"autoApprove"`
	Tasks         []*Task `json:"tasks"`
}

// Task is a single unit of work inside a project.
type Task struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	Status              Status `json:"status"`
	Approved            bool   `json:"approved"`
	CompletedDetails    string `json:"completedDetails"`
	ToolRecommendations string `json:"toolRecommendations,omitempty"`
	RuleRecommendations string `json:"ruleRecommendations,omitempty"`
}

// TaskDef is the caller-supplied definition of a new task.
type TaskDef struct {
	Title               string `json:"title" yaml:"title"`
	Description         string `json:"description" yaml:"description"`
	ToolRecommendations string `json:"toolRecommendations,omitempty" yaml:"toolRecommendations,omitempty"`
	RuleRecommendations string `json:"ruleRecommendations,omitempty" yaml:"ruleRecommendations,omitempty"`
}

// TaskUpdate is a partial update; nil fields are left untouched.
type TaskUpdate struct {
	Title               *string `json:"title,omitempty"`
	Description         *string `json:"description,omitempty"`
	Status              *Status `json:"status,omitempty"`
	CompletedDetails    *string `json:"completedDetails,omitempty"`
	ToolRecommendations *string `json:"toolRecommendations,omitempty"`
	RuleRecommendations *string `json:"ruleRecommendations,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil &&
		u.CompletedDetails == nil && u.ToolRecommendations == nil && u.RuleRecommendations == nil
}

// Finished reports whether the task is done and approved.
func (t *Task) Finished() bool {
	return t.Status == StatusDone && t.Approved
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Clone returns a deep copy of the project and its tasks.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	c.Tasks = make([]*Task, len(p.Tasks))
	for i, t := range p.Tasks {
		c.Tasks[i] = t.Clone()
	}
	return &c
}

// FindTask returns the task with the given id and its index, or nil and -1.
func (p *Project) FindTask(taskID string) (*Task, int) {
	for i, t := range p.Tasks {
		if t.ID == taskID {
			return t, i
		}
	}
	return nil, -1
}

// CountDone returns how many tasks have status done.
func (p *Project) CountDone() int {
	n := 0
	for _, t := range p.Tasks {
		if t.Status == StatusDone {
			n++
		}
	}
	return n
}

// CountApproved returns how many tasks are approved.
func (p *Project) CountApproved() int {
	n := 0
	for _, t := range p.Tasks {
		if t.Approved {
			n++
		}
	}
	return n
}

// AllDone reports whether every task is done. Vacuously true for no tasks.
func (p *Project) AllDone() bool {
	return p.CountDone() == len(p.Tasks)
}

// FindProject returns the project with the given id and its index, or nil and -1.
func (f *StoreFile) FindProject(projectID string) (*Project, int) {
	for i, p := range f.Projects {
		if p.ProjectID == projectID {
			return p, i
		}
	}
	return nil, -1
}

// Normalize replaces nil slices so the file always encodes arrays, never null.
func (f *StoreFile) Normalize() {
	if f.Projects == nil {
		f.Projects = []*Project{}
	}
	for _, p := range f.Projects {
		if p != nil && p.Tasks == nil {
			p.Tasks = []*Task{}
		}
	}
}

// Validate rejects null project and task entries.
func (f *StoreFile) Validate() error {
	for i, p := range f.Projects {
		if p == nil {
			return fmt.Errorf("projects[%d] is null", i)
		}
		for j, t := range p.Tasks {
			if t == nil {
				return fmt.Errorf("project %s: tasks[%d] is null", p.ProjectID, j)
			}
		}
	}
	return nil
}
