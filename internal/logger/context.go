package logger

import "context"

// LogContext carries request-scoped fields that the *Ctx logging variants
// attach to every record: which feed session is active, which item is being
// handled and which cache region is touched.
type LogContext struct {
	TraceID string // correlation id for a single gateway request
	Session string // feed session identifier
	ItemID  string // feed item being processed
	Region  string // disk cache region ("video" or "thumbnail")
}

type logContextKey struct{}

// WithContext returns a context carrying the given LogContext.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey{}, lc)
}

// FromContext extracts the LogContext, or nil if none is attached.
func FromContext(ctx context.Context) *LogContext {
	lc, _ := ctx.Value(logContextKey{}).(*LogContext)
	return lc
}

// appendContextFields prepends LogContext fields so they appear first in
// the output.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 8+len(args))
	if lc.TraceID != "" {
		ctxArgs = append(ctxArgs, KeyTraceID, lc.TraceID)
	}
	if lc.Session != "" {
		ctxArgs = append(ctxArgs, KeySession, lc.Session)
	}
	if lc.ItemID != "" {
		ctxArgs = append(ctxArgs, KeyItemID, lc.ItemID)
	}
	if lc.Region != "" {
		ctxArgs = append(ctxArgs, KeyRegion, lc.Region)
	}
	return append(ctxArgs, args...)
}
