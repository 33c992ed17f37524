package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"manus/internal/config"

	"github.com/openai/openai-go/v3/responses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summarizer struct {
	reply   string
	err     error
	prompts [][]responses.ResponseInputItemUnionParam
}

func (s *summarizer) Model() string { return "fake" }

func (s *summarizer) ChatStream(ctx context.Context, input []responses.ResponseInputItemUnionParam, tools []responses.ToolUnionParam, onToken func(string)) (*responses.Response, error) {
	s.prompts = append(s.prompts, input)
	if s.err != nil {
		return nil, s.err
	}
	text, _ := json.Marshal(s.reply)
	var resp responses.Response
	err := json.Unmarshal([]byte(`{"id":"r","output":[{"type":"message","id":"m","role":"assistant","status":"completed","content":[{"type":"output_text","text":`+string(text)+`,"annotations":[]}]}]}`), &resp)
	return &resp, err
}

func msg(text string) responses.ResponseInputItemUnionParam {
	return responses.ResponseInputItemParamOfMessage(text, "user")
}

func fill(m *Memory, n int) {
	for i := 1; i <= n; i++ {
		m.Add(Turn{Step: i, Items: []responses.ResponseInputItemUnionParam{msg("a"), msg("b")}, Text: fmt.Sprintf("did %d", i)})
	}
}

func TestInput(t *testing.T) {
	m := New(msg("system"), msg("prompt"))
	assert.Len(t, m.Input(), 2)

	fill(m, 3)
	assert.Equal(t, 3, m.Len())
	assert.Len(t, m.Input(), 8)
	assert.Len(t, m.Input(msg("next")), 9)
}

func TestMaybeCompact(t *testing.T) {
	ctx := context.Background()
	p := &summarizer{reply: "  listed files, wrote notes.txt  "}
	c := NewCompactor(p, config.CompactionConfig{TurnThreshold: 4, KeepRecent: 1})

	m := New(msg("system"), msg("prompt"))
	fill(m, 3)

	changed, err := c.MaybeCompact(ctx, m)
	require.NoError(t, err)
	assert.False(t, changed, "below threshold")
	assert.Empty(t, p.prompts)

	m.Add(Turn{Step: 4, Items: []responses.ResponseInputItemUnionParam{msg("c")}, Text: "did 4"})
	changed, err = c.MaybeCompact(ctx, m)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, "listed files, wrote notes.txt", m.Summary())
	assert.Equal(t, 1, m.Len())
	// head, summary, kept turn
	assert.Len(t, m.Input(), 4)

	require.Len(t, p.prompts, 1)
	raw, err := json.Marshal(p.prompts[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Step 1:")
	assert.Contains(t, string(raw), "did 3")
	assert.NotContains(t, string(raw), "did 4")
}

func TestMaybeCompactCarriesSummary(t *testing.T) {
	ctx := context.Background()
	p := &summarizer{reply: "first"}
	c := NewCompactor(p, config.CompactionConfig{TurnThreshold: 2, KeepRecent: 0})

	m := New()
	fill(m, 2)
	_, err := c.MaybeCompact(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())

	p.reply = "second"
	fill(m, 2)
	_, err = c.MaybeCompact(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "second", m.Summary())

	raw, err := json.Marshal(p.prompts[1])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Previous summary:")
	assert.Contains(t, string(raw), "first")
}

func TestMaybeCompactDisabled(t *testing.T) {
	p := &summarizer{reply: "x"}
	m := New()
	fill(m, 50)

	changed, err := NewCompactor(p, config.CompactionConfig{}).MaybeCompact(context.Background(), m)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, p.prompts)
}

func TestMaybeCompactErrorLeavesMemory(t *testing.T) {
	for name, p := range map[string]*summarizer{
		"provider error": {err: errors.New("down")},
		"empty summary":  {reply: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			m := New(msg("system"))
			fill(m, 5)

			changed, err := NewCompactor(p, config.CompactionConfig{TurnThreshold: 3, KeepRecent: 1}).MaybeCompact(context.Background(), m)
			require.Error(t, err)
			assert.False(t, changed)
			assert.Equal(t, 5, m.Len())
			assert.Empty(t, m.Summary())
		})
	}
}
