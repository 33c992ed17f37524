package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

const defaultShellTimeout = 60 * time.Second

var errShellClosed = errors.New("shell is closed")

// Shell runs bash commands in the workspace. Commands still running when the
// tool is closed are killed.
type Shell struct {
	dir     string
	timeout time.Duration

	mu     sync.Mutex
	procs  map[*exec.Cmd]struct{}
	closed bool
}

func NewShell(dir string, timeout time.Duration) *Shell {
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	return &Shell{dir: dir, timeout: timeout, procs: make(map[*exec.Cmd]struct{})}
}

func (s *Shell) Name() string        { return "shell" }
func (s *Shell) Description() string { return "Execute a bash command in the workspace" }

func (s *Shell) InputSchema() any {
	return object(map[string]any{
		"command": map[string]any{
			"type":        "string",
			"description": "The bash command to run",
		},
	})
}

func (s *Shell) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Command string `json:"command"`
	}
	if err := decodeArgs(s.Name(), input, &args); err != nil {
		return "", err
	}
	if args.Command == "" {
		return "", fmt.Errorf("command is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "bash", "-c", args.Command)
	cmd.Dir = s.dir
	cmd.Stdout = &out
	cmd.Stderr = &out
	startGroup(cmd)
	// Children of bash can hold the output pipe open after a kill.
	cmd.WaitDelay = time.Second

	if err := s.start(cmd); err != nil {
		return "", err
	}
	slog.Debug("shell: started", "command", args.Command, "pid", cmd.Process.Pid)

	err := cmd.Wait()
	s.forget(cmd)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return truncate(out.Bytes()), fmt.Errorf("command timed out after %s", s.timeout)
	}

	// A non-zero exit is an observation for the model, not a tool failure.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return truncate(out.Bytes()) + fmt.Sprintf("\n(exit status %d)", exitErr.ExitCode()), nil
	}
	if err != nil {
		return "", fmt.Errorf("running command: %w", err)
	}
	if out.Len() == 0 {
		return "(no output)", nil
	}
	return truncate(out.Bytes()), nil
}

func (s *Shell) start(cmd *exec.Cmd) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errShellClosed
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting command: %w", err)
	}
	s.procs[cmd] = struct{}{}
	return nil
}

func (s *Shell) forget(cmd *exec.Cmd) {
	s.mu.Lock()
	delete(s.procs, cmd)
	s.mu.Unlock()
}

// Close kills running commands, including their children, and rejects new
// ones.
func (s *Shell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	var errs []error
	for cmd := range s.procs {
		if err := killGroup(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
