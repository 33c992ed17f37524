// Package agent implements Manus, a general-purpose agent that works a prompt
// through a bounded loop of model turns and tool calls.
//
// A Manus is single-use: Create it, Run it once, then Cleanup. Cleanup is
// idempotent and releases every tool and store the agent opened.
package agent

import (
	"errors"

	"manus/internal/config"
)

// ErrAlreadyRan is returned by a second call to Run.
var ErrAlreadyRan = errors.New("agent already ran")

const (
	defaultMaxSteps           = 20
	defaultDuplicateThreshold = 2
)

const defaultSystemPrompt = "You are Manus, a general-purpose assistant that completes the user's task by calling tools. " +
	"Work in small steps and check each result before moving on. " +
	"The workspace directory is %s; relative paths resolve there. " +
	"Call terminate once the task is done or cannot be completed."

const stuckPrompt = "You have repeated the same response several times. " +
	"Stop repeating strategies that are not working and try a different approach."

type Option func(*Manus)

// WithConfig sets the agent settings. Zero MaxSteps keeps the default; zero
// DuplicateThreshold turns stuck detection off.
func WithConfig(cfg config.AgentConfig) Option {
	return func(m *Manus) { m.cfg = cfg }
}

// WithTools configures the built-in tools.
func WithTools(cfg config.ToolsConfig) Option {
	return func(m *Manus) { m.toolsCfg = cfg }
}

// WithHistory records the run in the SQLite database at path.
func WithHistory(path string) Option {
	return func(m *Manus) { m.historyPath = path }
}

// WithProfile names the LLM profile the run uses, for the history record.
func WithProfile(name string) Option {
	return func(m *Manus) { m.profile = name }
}

// WithTool registers an extra tool.
func WithTool(t Tool) Option {
	return func(m *Manus) { m.extra = append(m.extra, t) }
}
