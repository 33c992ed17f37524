package tools

import (
	"context"
	"fmt"
	"sync"
)

// Terminate ends the agent loop. The agent polls Terminated after each step.
type Terminate struct {
	mu     sync.Mutex
	done   bool
	status string
}

func NewTerminate() *Terminate { return &Terminate{} }

func (t *Terminate) Name() string { return "terminate" }
func (t *Terminate) Description() string {
	return "End the interaction when the request is met or when you cannot proceed further"
}

func (t *Terminate) InputSchema() any {
	return object(map[string]any{
		"status": map[string]any{
			"type":        "string",
			"enum":        []string{"success", "failure"},
			"description": "Finish status of the interaction",
		},
	})
}

func (t *Terminate) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Status string `json:"status"`
	}
	if err := decodeArgs(t.Name(), input, &args); err != nil {
		return "", err
	}
	switch args.Status {
	case "success", "failure":
	default:
		return "", fmt.Errorf("unknown status: %q", args.Status)
	}

	t.mu.Lock()
	t.done = true
	t.status = args.Status
	t.mu.Unlock()

	return "The interaction has been completed with status: " + args.Status, nil
}

func (t *Terminate) Terminated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Status returns the status passed to the last successful call.
func (t *Terminate) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
