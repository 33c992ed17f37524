package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"manus/internal/config"
	"manus/internal/llm"
	"manus/internal/runner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
[llm]
model = "gpt-4o"
api_key = "sk-test"

[llm.fast]
model = "gpt-4o-mini"

[log]
level = "error"
`

type recordingAgent struct {
	prompts  []string
	cleanups int
}

func (a *recordingAgent) Run(ctx context.Context, prompt string) (string, error) {
	a.prompts = append(a.prompts, prompt)
	return "", nil
}

func (a *recordingAgent) Cleanup(context.Context) error {
	a.cleanups++
	return nil
}

type invocation struct {
	agent   *recordingAgent
	created int
	profile string
	model   string
}

func execute(t *testing.T, stdin string, args ...string) (*invocation, error) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MANUS_LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))

	inv := &invocation{agent: &recordingAgent{}}
	cmd := newRootCmd(func(ctx context.Context, cfg *config.Config, profile string, provider llm.Provider) (runner.Agent, error) {
		inv.created++
		inv.profile = profile
		inv.model = provider.Model()
		return inv.agent, nil
	})
	cmd.SetArgs(append([]string{"--config", path}, args...))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	return inv, cmd.ExecuteContext(context.Background())
}

func TestRootPrompt(t *testing.T) {
	inv, err := execute(t, "", "--llm-config", "default", "--prompt", "hello")
	require.NoError(t, err)

	assert.Equal(t, 1, inv.created)
	assert.Equal(t, []string{"hello"}, inv.agent.prompts)
	assert.Equal(t, 1, inv.agent.cleanups)
	assert.Equal(t, "default", inv.profile)
	assert.Equal(t, "gpt-4o", inv.model)
}

func TestRootModelOverride(t *testing.T) {
	inv, err := execute(t, "", "--model", "custom-model", "--prompt", "x")
	require.NoError(t, err)
	assert.Equal(t, "custom-model", inv.model)
}

func TestRootNamedProfileInheritsKey(t *testing.T) {
	inv, err := execute(t, "", "--llm-config", "fast", "--prompt", "x")
	require.NoError(t, err)
	assert.Equal(t, "fast", inv.profile)
	assert.Equal(t, "gpt-4o-mini", inv.model)
}

func TestRootBlankPrompt(t *testing.T) {
	inv, err := execute(t, "", "--prompt", "   ")
	require.NoError(t, err)
	assert.Empty(t, inv.agent.prompts)
	assert.Equal(t, 1, inv.agent.cleanups)
}

func TestRootInteractivePrompt(t *testing.T) {
	inv, err := execute(t, "from terminal\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"from terminal"}, inv.agent.prompts)
}

func TestRootUnknownProfile(t *testing.T) {
	inv, err := execute(t, "", "--llm-config", "nope", "--prompt", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid --llm-config "nope"`)
	assert.Contains(t, err.Error(), "default, fast")
	assert.Equal(t, 0, inv.created)
}

func TestRootRejectsArgs(t *testing.T) {
	inv, err := execute(t, "", "stray")
	require.Error(t, err)
	assert.Equal(t, 0, inv.created)
}
