// Package planner asks a language model to break a request into a project
// plan and an ordered task list.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/llm"
	"github.com/p-blackswan/taskqueue/internal/models"
	"github.com/p-blackswan/taskqueue/internal/retry"
)

const systemPrompt = `You are a project planner. Break the user's request into a concise project plan
and an ordered list of small, independently verifiable tasks.

Respond with a single JSON object and nothing else:
{"projectPlan": "<plan text>", "tasks": [{"title": "<short title>", "description": "<what to do>"}]}`

// Attachment is an auxiliary file supplied as extra context.
type Attachment struct {
	Name    string
	Content string
}

// Request is the input to Generate.
type Request struct {
	Prompt      string
	Provider    string
	Model       string
	Attachments []Attachment
}

// Plan is the decoded model output.
type Plan struct {
	ProjectPlan string           `json:"projectPlan"`
	Tasks       []models.TaskDef `json:"tasks"`
}

// Factory builds a provider for the requested model. An empty model selects
// the provider default.
type Factory func(model string) (llm.Provider, error)

// Option configures a Generator.
type Option func(*Generator)

// WithProvider registers a provider factory under name.
func WithProvider(name string, f Factory) Option {
	return func(g *Generator) { g.providers[name] = f }
}

// WithRetry overrides the retry policy for transient provider failures.
func WithRetry(cfg retry.Config) Option {
	return func(g *Generator) { g.retry = cfg }
}

// Generator produces plans through a registered provider.
type Generator struct {
	providers       map[string]Factory
	defaultProvider string
	defaultModel    string
	retry           retry.Config
	logger          zerolog.Logger
}

// New creates a generator. defaultProvider and defaultModel apply when a
// request leaves them empty.
func New(defaultProvider, defaultModel string, logger zerolog.Logger, opts ...Option) *Generator {
	g := &Generator{
		providers:       make(map[string]Factory),
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
		retry:           retry.DefaultConfig(),
		logger:          logger.With().Str("component", "planner").Logger(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// AnthropicFactory returns a factory for the Anthropic Messages API.
func AnthropicFactory(apiKey string, timeout time.Duration, logger zerolog.Logger) Factory {
	return func(model string) (llm.Provider, error) {
		if apiKey == "" {
			return nil, perrors.New(perrors.KindConfigurationError,
				"ANTHROPIC_API_KEY is not set; it is required for the anthropic provider")
		}
		return llm.NewAnthropicProvider(apiKey,
			llm.WithModel(model),
			llm.WithLogger(logger),
			llm.WithHTTPClient(httpClient(timeout)),
		), nil
	}
}

// Generate asks the selected provider for a plan. Provider selection errors
// are ConfigurationError; everything else is LLMGenerationError.
func (g *Generator) Generate(ctx context.Context, req Request) (*Plan, error) {
	name := req.Provider
	if name == "" {
		name = g.defaultProvider
	}
	factory, ok := g.providers[name]
	if !ok {
		return nil, perrors.New(perrors.KindConfigurationError, "unsupported LLM provider %q", name)
	}
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	provider, err := factory(model)
	if err != nil {
		if perrors.KindOf(err) == perrors.KindConfigurationError {
			return nil, err
		}
		return nil, perrors.Wrap(perrors.KindConfigurationError, err, "failed to configure provider %s", name)
	}

	var resp *llm.CompletionResponse
	err = retry.Do(ctx, g.retry, func(ctx context.Context) error {
		var callErr error
		resp, callErr = provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages:     []llm.Message{llm.UserMessage(buildPrompt(req))},
		})
		return callErr
	})
	if err != nil {
		return nil, perrors.Wrap(perrors.KindLLMGenerationError, err, "failed to generate plan with %s", name)
	}

	plan, err := parsePlan(resp.Text)
	if err != nil {
		return nil, err
	}
	g.logger.Info().
		Str("provider", name).
		Str("model", provider.ModelID()).
		Int("tasks", len(plan.Tasks)).
		Msg("plan generated")
	return plan, nil
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	for _, a := range req.Attachments {
		b.WriteString(fmt.Sprintf("\n\n<attachment name=%q>\n%s\n</attachment>", a.Name, a.Content))
	}
	return b.String()
}

// parsePlan extracts the first JSON object from text, tolerating code fences
// and surrounding prose. Tasks without a title are dropped.
func parsePlan(text string) (*Plan, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, perrors.New(perrors.KindLLMGenerationError, "model response did not contain a JSON object")
	}

	var plan Plan
	if err := json.Unmarshal([]byte(text[start:end+1]), &plan); err != nil {
		return nil, perrors.Wrap(perrors.KindLLMGenerationError, err, "failed to decode model response")
	}

	tasks := plan.Tasks[:0]
	for _, t := range plan.Tasks {
		t.Title = strings.TrimSpace(t.Title)
		if t.Title != "" {
			tasks = append(tasks, t)
		}
	}
	plan.Tasks = tasks
	if len(plan.Tasks) == 0 {
		return nil, perrors.New(perrors.KindLLMGenerationError, "model response contained no tasks")
	}
	return &plan, nil
}
