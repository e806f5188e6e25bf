// Package engine wires the job subsystems together and provides the
// application-level API for registering, enqueuing and inspecting work.
//
// The engine package exists to break an import cycle: the root nocode
// package defines Entity (imported by job and result) and therefore cannot
// import those packages back. Engine sits above the subsystem packages and
// below the application layer.
//
// # Building an Engine
//
//	d, err := nocode.New(
//	    nocode.WithStore(pgStore),
//	    nocode.WithPollInterval(time.Second),
//	)
//
//	eng, err := engine.Build(d,
//	    engine.WithExtension(myExtension),
//	    engine.WithBackoff(backoff.NewConstant(5*time.Second)),
//	    engine.WithTypeLimits(queue.Limit{Type: job.TypeGeneration, MaxConcurrency: 1}),
//	)
//
// # Registering and enqueuing
//
//	handlers.RegisterAll(eng.Registry(), handlers.New(client, eng.Records(), logger))
//
//	j, err := engine.Enqueue(ctx, eng, job.TypeGeneration,
//	    handlers.GenerationPayload{ResultID: "r1", Prompt: "button"},
//	    job.WithPriority(5),
//	)
//
// # Inspection
//
// [Engine.Stats] counts jobs per status, [Engine.ListFailed] pages through
// failed jobs newest first and [Engine.RetryJob] returns a failed job to
// pending with a fresh attempt budget.
package engine
