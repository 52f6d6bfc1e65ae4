package logger

// Standardized field names for structured log records. Using the constants
// keeps field naming consistent across packages so logs remain greppable.
const (
	KeyTraceID = "trace_id"
	KeySession = "session"
	KeyItemID  = "item_id"
	KeyRegion  = "region"

	KeyError    = "error"
	KeyPath     = "path"
	KeyBytes    = "bytes"
	KeyAttempt  = "attempt"
	KeyBackoff  = "backoff"
	KeyCursor   = "cursor"
	KeyIndex    = "index"
	KeyCount    = "count"
	KeyState    = "state"
	KeyBudget   = "budget"
	KeyEvicted  = "evicted"
	KeyDuration = "duration_ms"
)
