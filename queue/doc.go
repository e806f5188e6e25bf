// Package queue limits how many jobs of each type a poller runs and how
// fast it starts them.
//
// The store hands out jobs of any type, so limits apply after a claim: a
// poller that is denied a slot releases the job back to pending with a
// short delay and without consuming an attempt.
//
//	m := queue.NewManager(
//	    queue.Limit{Type: job.TypeGeneration, MaxConcurrency: 1, RateLimit: 0.5, RateBurst: 2},
//	)
//	if m.Acquire(j.Type) {
//	    defer m.Release(j.Type)
//	    // execute
//	}
//
// Rate limiting is a token bucket from golang.org/x/time/rate.
package queue
