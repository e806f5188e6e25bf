// Package job defines the job entity, its state machine, typed
// definitions and the store contract.
//
// # State machine
//
//	pending → processing → completed
//	pending → processing → pending      (transient failure, attempts left)
//	pending → processing → failed       (permanent failure or last attempt)
//	failed  → pending                   (manual retry via ResetToPending)
//
// A job left in processing by a crashed worker is returned to pending by
// the visibility sweep ([Store.RequeueStale]), or failed when it has no
// attempts left.
//
// Fields of note:
//   - Type: one of the closed set in [Types]
//   - Priority: higher values are claimed first, ties by creation time
//   - Attempts / MaxAttempts: 0 ≤ Attempts ≤ MaxAttempts at all times
//   - ScheduledFor: earliest time the job may be claimed
//
// # Defining a handler
//
//	var Generate = job.NewDefinition(job.TypeGeneration,
//	    func(ctx context.Context, p GenerationPayload) error {
//	        ...
//	    },
//	)
//
// Errors wrapped with [Permanent] fail the job without further attempts.
// Everything else is retried with backoff.
package job
