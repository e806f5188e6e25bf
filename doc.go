// Package nocode is the background generation engine behind the no-code
// component builder. Prompts submitted by users become jobs in a durable
// work queue; workers claim them atomically, call the AI generation
// provider and write the outcome into the originating result record.
//
// The engine is a library first. Configure a store, build an engine, and
// register the generation handlers:
//
//	d, err := nocode.New(
//	    nocode.WithStore(pgStore),
//	    nocode.WithPollInterval(time.Second),
//	)
//	eng, err := engine.Build(d)
//	handlers.RegisterAll(eng, genClient, pgStore)
//
// # Architecture
//
// Each subsystem (job, result) defines its own store interface and a
// single backend implements all of them. Backends: memory, postgres (pgx),
// bun and redis.
//
// Job IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based identifiers.
package nocode
