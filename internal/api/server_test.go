package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/health"
	"github.com/p-blackswan/taskqueue/internal/journal"
	"github.com/p-blackswan/taskqueue/internal/metrics"
	"github.com/p-blackswan/taskqueue/internal/models"
	"github.com/p-blackswan/taskqueue/internal/planner"
	"github.com/p-blackswan/taskqueue/internal/project"
	"github.com/p-blackswan/taskqueue/internal/requestid"
	"github.com/p-blackswan/taskqueue/internal/storage"
)

const (
	adminKey    = "admin-key"
	readOnlyKey = "reader-key"
	jwtSecret   = "jwt-test-secret"
)

type stubPlanner struct{}

func (stubPlanner) Generate(_ context.Context, req planner.Request) (*planner.Plan, error) {
	return &planner.Plan{
		ProjectPlan: "plan for " + req.Prompt,
		Tasks:       []models.TaskDef{{Title: "Scaffold"}, {Title: "Ship"}},
	}, nil
}

type testEnv struct {
	app     *fiber.App
	journal *journal.Journal
}

type envOptions struct {
	auth      AuthConfig
	noJournal bool
	withPlan  bool
	rateLimit RateLimitConfig
}

// testApp creates a Fiber app with all routes for testing.
func testApp(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	dir := t.TempDir()

	store := storage.New(filepath.Join(dir, "tasks.json"), logger)
	m := metrics.New()
	regOpts := []project.Option{project.WithRecorder(m)}

	env := &testEnv{}
	var events EventLister
	if !opts.noJournal {
		j, err := journal.Open(filepath.Join(dir, "journal.db"), logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = j.Close() })
		env.journal = j
		events = j
		regOpts = append(regOpts, project.WithJournal(j))
	}
	if opts.withPlan {
		regOpts = append(regOpts, project.WithPlanner(stubPlanner{}))
	}
	registry := project.NewRegistry(store, logger, regOpts...)

	checker := health.NewChecker(logger)
	checker.Register("store", health.StoreCheck(store))

	if opts.auth.Mode == "" {
		opts.auth.Mode = "none"
	}
	srv := NewServer(ServerConfig{
		ListenAddr: ":0",
		AuthConfig: opts.auth,
		RateLimit:  opts.rateLimit,
	}, registry, events, checker, m, logger)
	t.Cleanup(func() { _ = srv.Shutdown() })

	env.app = srv.App()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (e *testEnv) createProject(t *testing.T, titles ...string) string {
	t.Helper()
	tasks := make([]map[string]string, 0, len(titles))
	for _, title := range titles {
		tasks = append(tasks, map[string]string{"title": title, "description": title + " desc"})
	}
	body, err := json.Marshal(map[string]any{"initialPrompt": "Build it", "tasks": tasks})
	require.NoError(t, err)

	resp := e.do(t, "POST", "/api/v1/projects", string(body), "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res project.CreateProjectResult
	decode(t, resp, &res)
	return res.ProjectID
}

func TestServer_HealthzEndpoint(t *testing.T) {
	env := testApp(t, envOptions{})

	resp := env.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_ReadyzEndpoint(t *testing.T) {
	env := testApp(t, envOptions{})

	resp := env.do(t, "GET", "/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report health.Report
	decode(t, resp, &report)
	assert.Equal(t, "ready", report.Status)
	assert.Equal(t, health.StatusOK, report.Checks["store"])
}

func TestServer_ProjectLifecycle(t *testing.T) {
	env := testApp(t, envOptions{})
	pid := env.createProject(t, "Design", "Build")
	assert.Equal(t, "proj-1", pid)

	resp := env.do(t, "GET", "/api/v1/projects/"+pid+"/next", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var next project.NextTaskResult
	decode(t, resp, &next)
	assert.Equal(t, project.NextTaskAvailable, next.Status)
	assert.Equal(t, "task-1", next.Task.ID)

	for _, tid := range []string{"task-1", "task-2"} {
		resp = env.do(t, "PATCH", "/api/v1/projects/"+pid+"/tasks/"+tid, `{"status":"in progress"}`, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = env.do(t, "PATCH", "/api/v1/projects/"+pid+"/tasks/"+tid, `{"status":"done","completedDetails":"ok"}`, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = env.do(t, "POST", "/api/v1/projects/"+pid+"/tasks/"+tid+"/approve", "", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var task models.Task
		decode(t, resp, &task)
		assert.True(t, task.Approved)
	}

	resp = env.do(t, "GET", "/api/v1/projects/"+pid+"/next", "", "")
	decode(t, resp, &next)
	assert.Equal(t, project.NextTaskAllDone, next.Status)

	resp = env.do(t, "POST", "/api/v1/projects/"+pid+"/approve", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/projects/"+pid+"/approve", "", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "ProjectAlreadyCompleted", problem.Kind)
	assert.Equal(t, "project_already_completed", problem.Type)

	resp = env.do(t, "GET", "/api/v1/projects?state=completed", "", "")
	var list struct {
		Projects []project.ProjectSummary `json:"projects"`
		Total    int                      `json:"total"`
	}
	decode(t, resp, &list)
	require.Equal(t, 1, list.Total)
	assert.True(t, list.Projects[0].Completed)
}

func TestServer_ErrorKinds(t *testing.T) {
	env := testApp(t, envOptions{})
	pid := env.createProject(t, "Only")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"unknown project", "GET", "/api/v1/projects/proj-99", "", http.StatusNotFound, "ProjectNotFound"},
		{"unknown task", "GET", "/api/v1/tasks/task-99", "", http.StatusNotFound, "TaskNotFound"},
		{"skip straight to done", "PATCH", "/api/v1/projects/" + pid + "/tasks/task-1", `{"status":"done"}`, http.StatusBadRequest, "InvalidArgument"},
		{"invalid status literal", "PATCH", "/api/v1/projects/" + pid + "/tasks/task-1", `{"status":"finished"}`, http.StatusBadRequest, "InvalidArgument"},
		{"approve undone task", "POST", "/api/v1/projects/" + pid + "/tasks/task-1/approve", "", http.StatusConflict, "TaskNotDone"},
		{"approve unfinished project", "POST", "/api/v1/projects/" + pid + "/approve", "", http.StatusConflict, "TasksNotAllDone"},
		{"bad state filter", "GET", "/api/v1/tasks?state=archived", "", http.StatusBadRequest, "InvalidState"},
		{"plan without planner", "POST", "/api/v1/plans", `{"prompt":"x"}`, http.StatusServiceUnavailable, "ConfigurationError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.path, tt.body, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			var problem ProblemDetail
			decode(t, resp, &problem)
			assert.Equal(t, tt.kind, problem.Kind)
			assert.Equal(t, tt.status, problem.Status)
		})
	}
}

func TestServer_TasksAndDetails(t *testing.T) {
	env := testApp(t, envOptions{})
	pid := env.createProject(t, "A", "B")

	resp := env.do(t, "POST", "/api/v1/projects/"+pid+"/tasks", `{"tasks":[{"title":"C"}]}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var added project.AddTasksResult
	decode(t, resp, &added)
	require.Len(t, added.NewTasks, 1)
	assert.Equal(t, "task-3", added.NewTasks[0].ID)

	resp = env.do(t, "GET", "/api/v1/tasks?project="+pid, "", "")
	var list struct {
		Tasks []project.TaskListing `json:"tasks"`
		Total int                   `json:"total"`
	}
	decode(t, resp, &list)
	assert.Equal(t, 3, list.Total)

	resp = env.do(t, "GET", "/api/v1/tasks/task-2", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var details project.TaskDetails
	decode(t, resp, &details)
	assert.Equal(t, pid, details.ProjectID)
	assert.Equal(t, "B", details.Task.Title)

	resp = env.do(t, "DELETE", "/api/v1/projects/"+pid+"/tasks/task-2", "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, "PATCH", "/api/v1/projects/"+pid, `{"projectPlan":"revised"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p models.Project
	decode(t, resp, &p)
	assert.Equal(t, "revised", p.ProjectPlan)
	assert.Len(t, p.Tasks, 2)

	resp = env.do(t, "DELETE", "/api/v1/projects/"+pid, "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, "GET", "/api/v1/projects/"+pid, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Events(t *testing.T) {
	env := testApp(t, envOptions{})
	pid := env.createProject(t, "A")
	resp := env.do(t, "PATCH", "/api/v1/projects/"+pid+"/tasks/task-1", `{"status":"in progress"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/v1/projects/"+pid+"/events?limit=10", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Events []journal.Event `json:"events"`
		Total  int             `json:"total"`
	}
	decode(t, resp, &body)
	require.Equal(t, 2, body.Total)
	assert.Equal(t, "task_updated", body.Events[0].EventType)
	assert.Equal(t, "project_created", body.Events[1].EventType)
}

func TestServer_EventsWithoutJournal(t *testing.T) {
	env := testApp(t, envOptions{noJournal: true})
	resp := env.do(t, "GET", "/api/v1/projects/proj-1/events", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_GeneratePlan(t *testing.T) {
	env := testApp(t, envOptions{withPlan: true})

	resp := env.do(t, "POST", "/api/v1/plans", `{"prompt":"Launch site","autoApprove":true}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res project.CreateProjectResult
	decode(t, resp, &res)
	assert.Equal(t, 2, res.TotalTasks)

	resp = env.do(t, "GET", "/api/v1/projects/"+res.ProjectID, "", "")
	var p models.Project
	decode(t, resp, &p)
	assert.Equal(t, "Launch site", p.InitialPrompt)
	assert.Equal(t, "plan for Launch site", p.ProjectPlan)
	assert.True(t, p.AutoApprove)
}

func TestServer_Metrics(t *testing.T) {
	env := testApp(t, envOptions{})
	env.createProject(t, "A")

	resp := env.do(t, "GET", "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `taskqueue_operations_total{operation="create_project",result="ok"} 1`)
	assert.Contains(t, body, `taskqueue_http_requests_total{code="201",method="POST",route="/api/v1/projects"} 1`)
}

func TestServer_RequestID(t *testing.T) {
	env := testApp(t, envOptions{})

	id := uuid.NewString()
	req, _ := http.NewRequest("GET", "/healthz", nil)
	req.Header.Set(requestid.Header, id)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, id, resp.Header.Get(requestid.Header))

	req, _ = http.NewRequest("GET", "/healthz", nil)
	req.Header.Set(requestid.Header, "not-a-uuid")
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	got := resp.Header.Get(requestid.Header)
	assert.NotEqual(t, "not-a-uuid", got)
	_, err = uuid.Parse(got)
	assert.NoError(t, err)
}

func TestServer_UnknownRoute(t *testing.T) {
	env := testApp(t, envOptions{})
	resp := env.do(t, "GET", "/api/v1/nothing", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "http_error", problem.Type)
}

func TestAuth_APIKey(t *testing.T) {
	env := testApp(t, envOptions{auth: AuthConfig{Mode: "api-key", APIKey: adminKey, ReadOnlyAPIKey: readOnlyKey}})

	resp := env.do(t, "GET", "/api/v1/projects", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "GET", "/api/v1/projects", "", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest("GET", "/api/v1/projects", nil)
	req.Header.Set("Authorization", "Basic "+adminKey)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "GET", "/api/v1/projects", "", readOnlyKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/projects", `{"initialPrompt":"x","tasks":[]}`, readOnlyKey)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/projects", `{"initialPrompt":"x","tasks":[]}`, adminKey)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "probes skip auth")
}

func signToken(t *testing.T, role Role, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "tester",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func TestAuth_JWT(t *testing.T) {
	env := testApp(t, envOptions{auth: AuthConfig{Mode: "jwt", JWTSecret: jwtSecret}})
	future := time.Now().Add(time.Hour)

	operator := signToken(t, RoleOperator, future)
	resp := env.do(t, "POST", "/api/v1/projects", `{"initialPrompt":"x","tasks":[{"title":"a"}]}`, operator)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, "DELETE", "/api/v1/projects/proj-1", "", operator)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := signToken(t, RoleAdmin, future)
	resp = env.do(t, "DELETE", "/api/v1/projects/proj-1", "", admin)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	noRole := signToken(t, "", future)
	resp = env.do(t, "POST", "/api/v1/projects", `{"initialPrompt":"x","tasks":[]}`, noRole)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "missing role is read-only")

	expired := signToken(t, RoleAdmin, time.Now().Add(-time.Hour))
	resp = env.do(t, "GET", "/api/v1/projects", "", expired)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	unknown := signToken(t, "root", future)
	resp = env.do(t, "GET", "/api/v1/projects", "", unknown)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_RateLimit(t *testing.T) {
	env := testApp(t, envOptions{rateLimit: RateLimitConfig{RPS: 1, Burst: 2}})

	assert.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/projects", "", "").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/projects", "", "").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, "GET", "/api/v1/projects", "", "").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, "GET", "/healthz", "", "").StatusCode)
}

func TestRateLimiter_RefillAndSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := newRateLimiter(RateLimitConfig{RPS: 1, Burst: 1})
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.allow("a"))

	now = now.Add(idleClientTTL + time.Second)
	assert.Equal(t, 2, rl.sweep())
	assert.Empty(t, rl.clients)
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, fiber.StatusNotFound, statusForKind(perrors.KindTaskNotFound))
	assert.Equal(t, fiber.StatusConflict, statusForKind(perrors.KindCannotModifyApprovedTask))
	assert.Equal(t, fiber.StatusBadRequest, statusForKind(perrors.KindMissingParameter))
	assert.Equal(t, fiber.StatusBadGateway, statusForKind(perrors.KindLLMGenerationError))
	assert.Equal(t, fiber.StatusInsufficientStorage, statusForKind(perrors.KindReadOnlyFileSystem))
	assert.Equal(t, fiber.StatusInternalServerError, statusForKind(perrors.KindFileWriteError))
}

func TestProblemType(t *testing.T) {
	assert.Equal(t, "llm_generation_error", problemType(perrors.KindLLMGenerationError))
	assert.Equal(t, "project_not_found", problemType(perrors.KindProjectNotFound))
	assert.Equal(t, "read_only_file_system", problemType(perrors.KindReadOnlyFileSystem))
}
