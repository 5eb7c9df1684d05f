package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/health"
	"github.com/p-blackswan/taskqueue/internal/journal"
	"github.com/p-blackswan/taskqueue/internal/models"
	"github.com/p-blackswan/taskqueue/internal/project"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// EventLister reads the lifecycle history of a project.
type EventLister interface {
	ListEvents(ctx context.Context, projectID string, limit int) ([]journal.Event, error)
}

// Handlers contains the HTTP handler functions for the API.
type Handlers struct {
	registry *project.Registry
	events   EventLister
	checker  *health.Checker
	logger   zerolog.Logger
}

// NewHandlers creates API handlers.
func NewHandlers(registry *project.Registry, events EventLister, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		registry: registry,
		events:   events,
		checker:  checker,
		logger:   logger.With().Str("component", "api_handlers").Logger(),
	}
}

// AddTasksRequest is the body of POST /projects/:id/tasks.
type AddTasksRequest struct {
	Tasks []models.TaskDef `json:"tasks"`
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker == nil {
		return c.JSON(health.Report{Status: "ready", Checks: map[string]health.Status{}})
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	report := h.checker.Report(ctx)
	if !report.Ready() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}
	return c.JSON(report)
}

// CreateProject handles POST /api/v1/projects.
func (h *Handlers) CreateProject(c *fiber.Ctx) error {
	var in project.CreateProjectInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c, err)
	}
	res, err := h.registry.CreateProject(in)
	if err != nil {
		return kindResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// ListProjects handles GET /api/v1/projects?state=.
func (h *Handlers) ListProjects(c *fiber.Ctx) error {
	filter, err := project.ParseStateFilter(c.Query("state"))
	if err != nil {
		return kindResponse(c, err)
	}
	out, err := h.registry.ListProjects(filter)
	if err != nil {
		return kindResponse(c, err)
	}
	return c.JSON(fiber.Map{"projects": out, "total": len(out)})
}

// GetProject handles GET /api/v1/projects/:id.
func (h *Handlers) GetProject(c *fiber.Ctx) error {
	p, err := h.registry.ReadProject(c.Params("id"))
	if err != nil {
		return kindResponse(c, err)
	}
	return c.JSON(p)
}

// UpdateProject handles PATCH /api/v1/projects/:id.
func (h *Handlers) UpdateProject(c *fiber.Ctx) error {
	var in project.UpdateProjectInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c, err)
	}
	p, err := h.registry.UpdateProject(c.Params("id"), in)
	if err != nil {
		return kindResponse(c, err)
	}
	return c.JSON(p)
}

// DeleteProject handles DELETE /api/v1/projects/:id.
func (h *Handlers) DeleteProject(c *fiber.Ctx) error {
	if err := h.registry.DeleteProject(c.Params("id")); err != nil {
		return kindResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddTasks handles POST /api/v1/projects/:id/tasks.
func (h *Handlers) AddTasks(c *fiber.Ctx) error {
	var req AddTasksRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	res, err := h.registry.AddTasksToProject(c.Params("id"), req.Tasks)
	if err != nil {
		return kindResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// NextTask handles GET /api/v1/projects/:id/next.
func (h *Handlers) NextTask(c *fiber.Ctx) error {
	res, err := h.registry.GetNextTask(c.Params("id"))
	if err != nil {
		return kindResponse(c, err)
	}
	return c.JSON(res)
}

// ApproveProject handles POST /api/v1/projects/:id/approve.
func (h *Handlers) ApproveProject(c *fiber.Ctx) error {
	res, err := h.registry.ApproveProjectCompletion(c.Params("id"))
	if err != nil {
		return kindResponse(c, err)
	}
	return c.JSON(res)
}

// ListEvents handles GET /api/v1/projects/:id/events?limit=.
func (h *Handlers) ListEvents(c *fiber.Ctx) error {
	if h.events == nil {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"journal_disabled", "Service Unavailable",
			"The lifecycle journal is not configured")
	}
	limit := c.QueryInt("limit", defaultEventLimit)
	if limit <= 0 || limit > maxEventLimit {
		limit = defaultEventLimit
	}
	projectID := c.Params("id")
	events, err := h.events.ListEvents(c.UserContext(), projectID, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"projectId": projectID, "events": events, "total": len(events)})
}

// UpdateTask handles PATCH /api/v1/projects/:id/tasks/:taskId.
func (h *Handlers) UpdateTask(c *fiber.Ctx) error {
	var upd models.TaskUpdate
	if err := c.BodyParser(&upd); err != nil {
		return badBody(c, err)
	}
	t, err := h.registry.UpdateTask(c.Params("id"), c.Params("taskId"), upd)
	if err != nil {
		return kindResponse(c, err)
	}
	return c.JSON(t)
}

// DeleteTask handles DELETE /api/v1/projects/:id/tasks/:taskId.
func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	if err := h.registry.DeleteTask(c.Params("id"), c.Params("taskId")); err != nil {
		return kindResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ApproveTask handles POST /api/v1/projects/:id/tasks/:taskId/approve.
func (h *Handlers) ApproveTask(c *fiber.Ctx) error {
	t, err := h.registry.ApproveTaskCompletion(c.Params("id"), c.Params("taskId"))
	if err != nil {
		return kindResponse(c, err)
	}
	return c.JSON(t)
}

// ListTasks handles GET /api/v1/tasks?project=&state=.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	filter, err := project.ParseStateFilter(c.Query("state"))
	if err != nil {
		return kindResponse(c, err)
	}
	out, err := h.registry.ListTasks(c.Query("project"), filter)
	if err != nil {
		return kindResponse(c, err)
	}
	return c.JSON(fiber.Map{"tasks": out, "total": len(out)})
}

// GetTask handles GET /api/v1/tasks/:taskId.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	d, err := h.registry.OpenTaskDetails(c.Params("taskId"))
	if err != nil {
		return kindResponse(c, err)
	}
	return c.JSON(d)
}

// GeneratePlan handles POST /api/v1/plans.
func (h *Handlers) GeneratePlan(c *fiber.Ctx) error {
	var in project.GeneratePlanInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c, err)
	}
	res, err := h.registry.GenerateProjectPlan(c.UserContext(), in)
	if err != nil {
		return kindResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func badBody(c *fiber.Ctx, err error) error {
	return kindResponse(c, perrors.Wrap(perrors.KindInvalidArgument, err, "invalid request body"))
}
