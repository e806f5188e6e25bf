// Package ext lets callers observe the job lifecycle.
//
//	type slackNotifier struct{ webhook string }
//
//	func (n *slackNotifier) Name() string { return "slack" }
//
//	func (n *slackNotifier) OnJobFailed(ctx context.Context, j *job.Job, err error) error {
//	    return post(ctx, n.webhook, fmt.Sprintf("%s job %s failed: %v", j.Type, j.ID, err))
//	}
//
// Hook errors are logged and never affect job processing.
//
// Hooks: [JobEnqueued], [JobStarted], [JobCompleted], [JobRetrying],
// [JobFailed], [JobReset], [StaleRequeued] and [Shutdown].
package ext
