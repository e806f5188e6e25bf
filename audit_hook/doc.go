// Package audithook records job lifecycle events as structured audit
// events through a [Recorder].
//
// Severity follows the event: info for normal progress, warning for
// retries and stale requeues, critical for terminal failures.
//
//	eng, _ := engine.Build(d,
//	    engine.WithExtension(audithook.New(audithook.LogRecorder(logger),
//	        audithook.WithActions(audithook.ActionJobFailed, audithook.ActionJobReset),
//	    )),
//	)
package audithook
