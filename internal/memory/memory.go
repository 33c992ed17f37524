// Package memory holds an agent's working context as a fixed head followed by
// one turn per step, and compacts older turns into a running summary.
package memory

import (
	"github.com/openai/openai-go/v3/responses"
)

// Turn is everything one step added to the context. Items stay together so a
// function call is never separated from its output.
type Turn struct {
	Step  int
	Items []responses.ResponseInputItemUnionParam
	// Text is a plain-text rendering of the turn used when summarizing.
	Text string
}

type Memory struct {
	head    []responses.ResponseInputItemUnionParam
	summary string
	turns   []Turn
}

// New returns a memory whose head items are always sent first.
func New(head ...responses.ResponseInputItemUnionParam) *Memory {
	return &Memory{head: head}
}

func (m *Memory) Add(t Turn) {
	m.turns = append(m.turns, t)
}

// Len returns the number of turns not yet compacted.
func (m *Memory) Len() int { return len(m.turns) }

func (m *Memory) Summary() string { return m.summary }

// Input returns the model input: head, summary, turns, then extra. The result
// is a fresh slice.
func (m *Memory) Input(extra ...responses.ResponseInputItemUnionParam) []responses.ResponseInputItemUnionParam {
	n := len(m.head) + len(extra) + 1
	for _, t := range m.turns {
		n += len(t.Items)
	}
	out := make([]responses.ResponseInputItemUnionParam, 0, n)
	out = append(out, m.head...)
	if m.summary != "" {
		out = append(out, responses.ResponseInputItemParamOfMessage(summaryPrefix+m.summary, "developer"))
	}
	for _, t := range m.turns {
		out = append(out, t.Items...)
	}
	return append(out, extra...)
}

const summaryPrefix = "[Summary of earlier steps]\n"
