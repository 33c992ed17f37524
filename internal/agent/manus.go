package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"manus/internal/config"
	"manus/internal/db"
	"manus/internal/history"
	"manus/internal/llm"
	"manus/internal/memory"
	"manus/internal/tools"
	"manus/internal/trace"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3/responses"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	statusCreated = "created"
	maxPromptAttr = 200
)

// Manus runs one prompt to completion. The loop ends when the model calls
// terminate, answers without calling a tool, or spends its step budget.
type Manus struct {
	provider  llm.Provider
	registry  *Registry
	params    []responses.ToolUnionParam
	terminate *tools.Terminate

	cfg         config.AgentConfig
	toolsCfg    config.ToolsConfig
	profile     string
	historyPath string
	extra       []Tool

	runID    string
	database *db.DB
	store    *history.Store
	started  bool

	ran     atomic.Bool
	mu      sync.Mutex
	status  string
	replies []string

	cleanupOnce sync.Once
	cleanupErr  error
}

// Create builds the agent and opens its resources: the workspace directory,
// the tools, and the history store when enabled. On error everything opened
// so far is released.
func Create(ctx context.Context, provider llm.Provider, opts ...Option) (*Manus, error) {
	m := &Manus{
		provider: provider,
		registry: NewRegistry(),
		cfg: config.AgentConfig{
			MaxSteps:           defaultMaxSteps,
			DuplicateThreshold: defaultDuplicateThreshold,
		},
		profile: config.DefaultProfile,
		runID:   uuid.NewString(),
		status:  statusCreated,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.MaxSteps <= 0 {
		m.cfg.MaxSteps = defaultMaxSteps
	}

	workspace := m.cfg.Workspace
	if workspace != "" {
		if err := os.MkdirAll(workspace, 0o755); err != nil {
			return nil, fmt.Errorf("creating workspace: %w", err)
		}
	}
	if m.cfg.SystemPrompt == "" {
		shown := workspace
		if shown == "" {
			shown = "the current directory"
		}
		m.cfg.SystemPrompt = fmt.Sprintf(defaultSystemPrompt, shown)
	}

	m.terminate = tools.NewTerminate()
	m.registry.Register(m.terminate)
	m.registry.Register(tools.NewFile(workspace))
	m.registry.Register(tools.NewShell(workspace, m.toolsCfg.Shell.Timeout))
	if key := m.toolsCfg.Brave.APIKey; key != "" {
		web, err := tools.NewWeb(key)
		if err != nil {
			m.registry.Close()
			return nil, fmt.Errorf("web tool: %w", err)
		}
		m.registry.Register(web)
	}
	for _, t := range m.extra {
		m.registry.Register(t)
	}
	m.params = m.registry.Params()

	if m.historyPath != "" {
		if err := m.openHistory(ctx); err != nil {
			m.registry.Close()
			return nil, fmt.Errorf("opening history: %w", err)
		}
	}

	slog.Debug("agent created", "run_id", m.runID, "model", provider.Model(), "tools", len(m.params))
	return m, nil
}

func (m *Manus) openHistory(ctx context.Context) error {
	database, err := db.Open(m.historyPath)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return fmt.Errorf("migrating: %w", err)
	}
	m.database = database
	m.store = history.NewStore(database)
	return nil
}

// ID returns the run ID.
func (m *Manus) ID() string { return m.runID }

// Status returns the run status: created, or one of the history statuses.
func (m *Manus) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manus) setStatus(s string) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Run works prompt until the loop ends and returns a step-by-step summary.
// A cancelled ctx stops the loop and returns ctx.Err().
func (m *Manus) Run(ctx context.Context, prompt string) (string, error) {
	if !m.ran.CompareAndSwap(false, true) {
		return "", ErrAlreadyRan
	}
	ctx = ContextWithRunID(ctx, m.runID)

	ctx, span := trace.Tracer().Start(ctx, "agent.manus.run",
		oteltrace.WithAttributes(
			attribute.String("run.id", m.runID),
			attribute.String("llm.model", m.provider.Model()),
			attribute.String("user.prompt", clip(prompt, maxPromptAttr)),
		),
	)
	defer span.End()

	m.setStatus(history.StatusRunning)
	if m.store != nil {
		err := m.store.StartRun(ctx, history.Run{
			ID:      m.runID,
			Profile: m.profile,
			Model:   m.provider.Model(),
			Prompt:  prompt,
		})
		if err != nil {
			slog.Warn("failed to record run", "run_id", m.runID, "error", err)
		} else {
			m.started = true
		}
	}

	mem := memory.New(
		responses.ResponseInputItemParamOfMessage(m.cfg.SystemPrompt, "developer"),
		responses.ResponseInputItemParamOfMessage(prompt, "user"),
	)

	result, status, err := m.loop(ctx, mem)
	m.setStatus(status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	return result, nil
}

func (m *Manus) loop(ctx context.Context, mem *memory.Memory) (string, string, error) {
	var results []string
	summary := func() string { return strings.Join(results, "\n") }
	compactor := memory.NewCompactor(m.provider, m.cfg.Compaction)

	for step := 1; step <= m.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return summary(), history.StatusInterrupted, err
		}
		stepCtx := ContextWithStep(ctx, step)

		compacted, err := compactor.MaybeCompact(stepCtx, mem)
		switch {
		case err != nil && ctx.Err() != nil:
			return summary(), history.StatusInterrupted, ctx.Err()
		case err != nil:
			slog.Warn("context compaction failed", "run_id", m.runID, "step", step, "error", err)
		case compacted:
			m.record(ctx, history.Step{N: step, Kind: "note", Name: "summary", Content: mem.Summary()})
		}

		var items []responses.ResponseInputItemUnionParam
		if step > 1 && m.cfg.NextStepPrompt != "" {
			items = append(items, responses.ResponseInputItemParamOfMessage(m.cfg.NextStepPrompt, "user"))
		}
		if m.stuck() {
			slog.Warn("agent repeating itself, asking for a new strategy", "run_id", m.runID, "step", step)
			items = append(items, responses.ResponseInputItemParamOfMessage(stuckPrompt, "developer"))
			m.record(ctx, history.Step{N: step, Kind: "note", Content: stuckPrompt})
		}

		resp, err := m.think(stepCtx, step, mem.Input(items...))
		if err != nil {
			if ctx.Err() != nil {
				return summary(), history.StatusInterrupted, ctx.Err()
			}
			return summary(), history.StatusFailed, fmt.Errorf("step %d: %w", step, err)
		}

		text := resp.OutputText()
		m.replies = append(m.replies, text)
		if text != "" {
			slog.Info("manus thoughts", "run_id", m.runID, "step", step, "text", text)
			m.record(ctx, history.Step{N: step, Kind: "thought", Content: text})
		}

		items = append(items, llm.OutputToInput(resp.Output)...)

		calls := llm.FunctionCalls(resp)
		if len(calls) == 0 {
			results = append(results, fmt.Sprintf("Step %d: %s", step, text))
			return summary(), history.StatusFinished, nil
		}

		outputs, observations := m.act(stepCtx, step, calls)
		observed := strings.Join(observations, "\n")
		results = append(results, fmt.Sprintf("Step %d: %s", step, observed))
		mem.Add(memory.Turn{
			Step:  step,
			Items: append(items, outputs...),
			Text:  strings.TrimSpace(text + "\n" + observed),
		})

		if m.terminate.Terminated() {
			slog.Info("agent terminated", "run_id", m.runID, "step", step, "status", m.terminate.Status())
			return summary(), history.StatusFinished, nil
		}
	}

	results = append(results, fmt.Sprintf("Terminated: reached max steps (%d)", m.cfg.MaxSteps))
	return summary(), history.StatusMaxSteps, nil
}

// think is one traced model turn with the tool list attached.
func (m *Manus) think(ctx context.Context, step int, input []responses.ResponseInputItemUnionParam) (*responses.Response, error) {
	ctx, span := trace.Tracer().Start(ctx, "llm.step",
		oteltrace.WithAttributes(attribute.Int("agent.step", step)),
	)
	defer span.End()

	resp, err := m.provider.ChatStream(ctx, input, m.params, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("llm.model", string(resp.Model)),
		attribute.Int64("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("llm.output_tokens", resp.Usage.OutputTokens),
	)
	return resp, nil
}

// act runs the calls in parallel. Tool failures are returned to the model as
// output so the next turn can adapt.
func (m *Manus) act(ctx context.Context, step int, calls []responses.ResponseFunctionToolCall) ([]responses.ResponseInputItemUnionParam, []string) {
	outputs := make([]responses.ResponseInputItemUnionParam, len(calls))
	observations := make([]string, len(calls))

	var wg sync.WaitGroup
	for i, fc := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()

			result := m.execute(ctx, fc)
			outputs[i] = responses.ResponseInputItemParamOfFunctionCallOutput(fc.CallID, result)
			observations[i] = fmt.Sprintf("Observed output of cmd `%s` executed:\n%s", fc.Name, result)
		}()
	}
	wg.Wait()

	for i, fc := range calls {
		m.record(ctx, history.Step{N: step, Kind: "tool", Name: fc.Name, Content: observations[i]})
	}
	return outputs, observations
}

func (m *Manus) execute(ctx context.Context, fc responses.ResponseFunctionToolCall) string {
	tool, ok := m.registry.Get(fc.Name)
	if !ok {
		slog.Warn("unknown tool call", "run_id", m.runID, "name", fc.Name)
		return "error: unknown tool " + fc.Name
	}

	slog.Info("tool call", "run_id", m.runID, "name", fc.Name, "arguments", fc.Arguments)
	result, err := withTrace(tool).Execute(ctx, fc.Arguments)
	if err != nil {
		slog.Warn("tool execution failed", "run_id", m.runID, "name", fc.Name, "error", err)
		return "error: " + err.Error()
	}
	return result
}

// stuck reports whether the latest reply repeats an earlier one at least
// DuplicateThreshold times.
func (m *Manus) stuck() bool {
	n := len(m.replies)
	if m.cfg.DuplicateThreshold <= 0 || n < 2 {
		return false
	}
	last := m.replies[n-1]
	if last == "" {
		return false
	}
	dups := 0
	for _, r := range m.replies[:n-1] {
		if r == last {
			dups++
		}
	}
	return dups >= m.cfg.DuplicateThreshold
}

func (m *Manus) record(ctx context.Context, st history.Step) {
	if !m.started {
		return
	}
	st.RunID = m.runID
	if err := m.store.AppendStep(ctx, st); err != nil {
		slog.Warn("failed to record step", "run_id", m.runID, "step", st.N, "error", err)
	}
}

// Cleanup releases the agent's tools and history store. Only the first call
// does any work; later calls return the same result.
func (m *Manus) Cleanup(ctx context.Context) error {
	m.cleanupOnce.Do(func() {
		var errs []error
		if err := m.registry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing tools: %w", err))
		}
		if m.store != nil {
			if m.started {
				if err := m.store.FinishRun(ctx, m.runID, m.Status()); err != nil {
					errs = append(errs, fmt.Errorf("finishing run: %w", err))
				}
			}
			if err := m.database.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing history: %w", err))
			}
		}
		m.cleanupErr = errors.Join(errs...)
		slog.Debug("agent cleaned up", "run_id", m.runID, "status", m.Status())
	})
	return m.cleanupErr
}

// clip shortens s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
