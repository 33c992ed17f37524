package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"manus/internal/config"
	"manus/internal/llm"

	"github.com/openai/openai-go/v3/responses"
)

const summarizePrompt = "Summarize the following agent steps concisely. Keep facts learned, files touched, commands run " +
	"and their outcomes, and anything still unresolved. Output only the summary, no preamble.\n\n"

// Compactor summarizes older turns to keep the context window bounded.
type Compactor struct {
	provider llm.Provider
	cfg      config.CompactionConfig
}

func NewCompactor(provider llm.Provider, cfg config.CompactionConfig) *Compactor {
	return &Compactor{provider: provider, cfg: cfg}
}

// MaybeCompact folds every turn except the most recent KeepRecent into the
// summary once TurnThreshold turns have accumulated. It reports whether m was
// changed. On error m is left untouched.
func (c *Compactor) MaybeCompact(ctx context.Context, m *Memory) (bool, error) {
	if c.cfg.TurnThreshold <= 0 || m.Len() < c.cfg.TurnThreshold {
		return false, nil
	}
	keep := max(c.cfg.KeepRecent, 0)
	if m.Len() <= keep {
		return false, nil
	}
	old := m.turns[:m.Len()-keep]

	var b strings.Builder
	if m.summary != "" {
		fmt.Fprintf(&b, "Previous summary:\n%s\n\n", m.summary)
	}
	b.WriteString("New steps to incorporate:\n")
	for _, t := range old {
		fmt.Fprintf(&b, "Step %d:\n%s\n", t.Step, t.Text)
	}

	summary, err := c.summarize(ctx, b.String())
	if err != nil {
		return false, err
	}

	m.summary = summary
	m.turns = append([]Turn(nil), m.turns[m.Len()-keep:]...)

	slog.Info("compaction: summarized steps",
		"steps_summarized", len(old),
		"first_step", old[0].Step,
		"last_step", old[len(old)-1].Step,
	)
	return true, nil
}

func (c *Compactor) summarize(ctx context.Context, text string) (string, error) {
	input := []responses.ResponseInputItemUnionParam{
		responses.ResponseInputItemParamOfMessage(summarizePrompt+text, "user"),
	}

	resp, err := c.provider.ChatStream(ctx, input, nil, nil)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	summary := strings.TrimSpace(resp.OutputText())
	if summary == "" {
		return "", errors.New("summarize: empty summary")
	}
	return summary, nil
}
