// Package runner drives one agent invocation: resolve the LLM profile, create
// the agent, acquire a prompt, run it, and always clean up.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"manus/internal/config"
	"manus/internal/llm"
	"manus/internal/profile"
)

// Agent is a created agent. Cleanup must tolerate being called after a failed
// or cancelled Run.
type Agent interface {
	Run(ctx context.Context, prompt string) (string, error)
	Cleanup(ctx context.Context) error
}

type Options struct {
	Prompt  string
	Profile string
	Model   string
}

type Deps struct {
	Profiles map[string]config.LLMConfig
	NewLLM   func(key string, configs map[string]config.LLMConfig) (llm.Provider, error)
	NewAgent func(ctx context.Context, provider llm.Provider) (Agent, error)

	Stdin  io.Reader
	Stdout io.Writer
	Logger *slog.Logger
}

func (d *Deps) defaults() {
	if d.Stdin == nil {
		d.Stdin = os.Stdin
	}
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
}

// Run executes one invocation. Errors before the agent exists are returned
// as is. Once created, the agent is cleaned up exactly once on every path.
// Cancelling ctx during prompt acquisition or the run is not an error.
func Run(ctx context.Context, opts Options, deps Deps) (err error) {
	deps.defaults()
	log := deps.Logger

	name := opts.Profile
	if name == "" {
		name = config.DefaultProfile
	}
	res := profile.NewResolver(deps.Profiles).Resolve(name, opts.Model)
	log.Debug("resolved llm profile", "key", res.Key, "model", res.Config.Model)

	provider, err := deps.NewLLM(res.Key, res.Configs)
	if err != nil {
		return fmt.Errorf("creating llm client %s: %w", res.Key, err)
	}

	agent, err := deps.NewAgent(ctx, provider)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	defer func() {
		if cerr := agent.Cleanup(context.WithoutCancel(ctx)); cerr != nil {
			log.Warn("agent cleanup failed", "error", cerr)
		}
	}()

	prompt, err := acquirePrompt(ctx, opts.Prompt, deps.Stdin, deps.Stdout)
	if err != nil {
		if interrupted(ctx, err) {
			log.Warn("Operation interrupted.")
			return nil
		}
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		log.Warn("Empty prompt provided.")
		return nil
	}

	log.Warn("Processing your request...")
	result, err := agent.Run(ctx, prompt)
	if err != nil {
		if interrupted(ctx, err) {
			log.Warn("Operation interrupted.")
			return nil
		}
		return fmt.Errorf("running agent: %w", err)
	}
	if result != "" {
		fmt.Fprintln(deps.Stdout, result)
	}
	log.Info("Request processing completed.")
	return nil
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// acquirePrompt returns the flag prompt when it is not blank, or one line
// read from in without its line ending. The text is otherwise passed through
// as typed. The read is abandoned when ctx is done.
func acquirePrompt(ctx context.Context, flag string, in io.Reader, out io.Writer) (string, error) {
	if strings.TrimSpace(flag) != "" {
		return flag, nil
	}

	fmt.Fprint(out, "Enter your prompt: ")

	type line struct {
		text string
		err  error
	}
	ch := make(chan line, 1)
	go func() {
		text, err := bufio.NewReader(in).ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		ch <- line{text, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(out)
		return "", ctx.Err()
	case l := <-ch:
		if l.err != nil {
			return "", fmt.Errorf("reading prompt: %w", l.err)
		}
		return strings.TrimRight(l.text, "\r\n"), nil
	}
}
