package agent

import "context"

type contextKey int

const (
	runIDKey contextKey = iota
	stepKey
)

func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithStep(ctx context.Context, step int) context.Context {
	return context.WithValue(ctx, stepKey, step)
}

func StepFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(stepKey).(int); ok {
		return v
	}
	return 0
}
