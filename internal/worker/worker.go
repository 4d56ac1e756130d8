package worker

import "context"

// Sink receives progress events from a running worker. The orchestration
// core provides an implementation that routes events into the session's
// stream; workers never see stream internals.
//
// Sink methods never block on slow observers and are safe to call from
// the worker's goroutine at any point during Run.
type Sink interface {
	// Log records a log line with a severity level ("info", "warning",
	// "error", "success").
	Log(level, message string)

	// Screenshot records a capture of the browser viewport. The ref is
	// opaque to the core: a URL, a storage key, or an inline data URI.
	Screenshot(ref string)

	// Error records a non-fatal error observed mid-run. A fatal error
	// is reported by returning it from Run instead.
	Error(detail string)
}

// Worker is the seam between the orchestration core and an automation
// backend (browser driver, model-backed agent, subprocess). The core
// never inspects task semantics; it only schedules Run and consumes the
// events and result.
//
// Run executes the task, emitting progress into sink as it goes. It must
// observe ctx and return promptly once ctx is cancelled — the core raises
// ctx on caller-initiated cancel and on running timeout, and will force
// the session terminal after a grace period regardless. On success Run
// returns the result payload; on unrecoverable failure it returns an
// error, which the core records as the session's failure detail.
//
// Implementations must be safe for concurrent Run calls: the core invokes
// one Run per running session, all against the same Worker value.
type Worker interface {
	Run(ctx context.Context, task string, sink Sink) (string, error)
}
