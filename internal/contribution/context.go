package contribution

import "context"

type runIDContextKey struct{}

// WithRunID attaches a run id that Pipeline uses for log correlation.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDContextKey{}, runID)
}

func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(runIDContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
