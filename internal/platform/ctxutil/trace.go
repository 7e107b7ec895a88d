package ctxutil

import "context"

type traceDataKey struct{}

// TraceData identifies the pipeline run a context belongs to.
type TraceData struct {
	RunID   string
	TraceID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(Default(ctx), traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// RunID returns the run identifier carried by ctx, or "".
func RunID(ctx context.Context) string {
	if td := GetTraceData(ctx); td != nil {
		return td.RunID
	}
	return ""
}

func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
