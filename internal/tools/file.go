package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// File reads, writes and lists files. Relative paths resolve against the
// workspace.
type File struct {
	root string
}

func NewFile(root string) *File { return &File{root: root} }

func (f *File) Name() string        { return "file" }
func (f *File) Description() string { return "Read, write or list files in the workspace" }

func (f *File) InputSchema() any {
	return object(map[string]any{
		"action": map[string]any{
			"type":        "string",
			"enum":        []string{"read", "write", "list"},
			"description": "Operation to perform",
		},
		"path": map[string]any{
			"type":        "string",
			"description": "File or directory path, absolute or relative to the workspace",
		},
		"content": map[string]any{
			"type":        "string",
			"description": "File content for write; empty string otherwise",
		},
	})
}

func (f *File) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Action  string `json:"action"`
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := decodeArgs(f.Name(), input, &args); err != nil {
		return "", err
	}
	if args.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	path := resolvePath(f.root, args.Path)

	switch args.Action {
	case "read":
		slog.Debug("file: reading", "path", path)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading file: %w", err)
		}
		return truncate(data), nil

	case "write":
		slog.Debug("file: writing", "path", path, "bytes", len(args.Content))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("creating parent dirs: %w", err)
		}
		if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
			return "", fmt.Errorf("writing file: %w", err)
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), path), nil

	case "list":
		entries, err := os.ReadDir(path)
		if err != nil {
			return "", fmt.Errorf("listing dir: %w", err)
		}
		var b strings.Builder
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			b.WriteString(name)
			b.WriteByte('\n')
		}
		if b.Len() == 0 {
			return "(empty)", nil
		}
		return truncate([]byte(b.String())), nil

	default:
		return "", fmt.Errorf("unknown action: %s", args.Action)
	}
}
