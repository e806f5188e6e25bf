// Package generation wraps the external AI generation provider.
//
// [Client] exposes one operation per kind of work (generate, improve,
// explain, test, validate), each with its own output token budget. Exact
// prompt text is cached for a bounded TTL so that a repeated
// GenerateComponent call costs no tokens. The cache is an optimization
// only: a miss never changes the result, only the cost.
//
// Every failure is returned as an [*Error] whose Kind tells the job
// executor whether retrying can help.
package generation
