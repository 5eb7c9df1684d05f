package project

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/planner"
)

// GenerateProjectPlan asks the configured planner for a plan and task list
// and creates a project from it. Attachments are read from disk first.
func (r *Registry) GenerateProjectPlan(ctx context.Context, input GeneratePlanInput) (out *CreateProjectResult, err error) {
	defer func(start time.Time) { r.observe("generate_plan", start, err) }(time.Now())

	if r.planner == nil {
		return nil, perrors.New(perrors.KindConfigurationError, "plan generation is not configured")
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, perrors.New(perrors.KindMissingParameter, "prompt is required")
	}

	attachments := make([]planner.Attachment, 0, len(input.Attachments))
	for _, path := range input.Attachments {
		content, err := r.store.ReadSideFile(path)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, planner.Attachment{Name: filepath.Base(path), Content: content})
	}

	plan, err := r.planner.Generate(ctx, planner.Request{
		Prompt:      input.Prompt,
		Provider:    input.Provider,
		Model:       input.Model,
		Attachments: attachments,
	})
	if err != nil {
		switch perrors.KindOf(err) {
		case perrors.KindConfigurationError, perrors.KindLLMGenerationError:
			return nil, err
		}
		return nil, perrors.Wrap(perrors.KindLLMGenerationError, err, "failed to generate project plan")
	}
	if len(plan.Tasks) == 0 {
		return nil, perrors.New(perrors.KindLLMGenerationError, "generated plan contained no tasks")
	}

	return r.CreateProject(CreateProjectInput{
		InitialPrompt: input.Prompt,
		ProjectPlan:   plan.ProjectPlan,
		Tasks:         plan.Tasks,
		AutoApprove:   input.AutoApprove,
	})
}
