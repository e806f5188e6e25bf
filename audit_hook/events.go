package audithook

// Audit event actions, one per lifecycle hook.
const (
	ActionJobEnqueued   = "job.enqueued"
	ActionJobStarted    = "job.started"
	ActionJobCompleted  = "job.completed"
	ActionJobRetrying   = "job.retrying"
	ActionJobFailed     = "job.failed"
	ActionJobReset      = "job.reset"
	ActionStaleRequeued = "job.stale_requeued"
)

// CategoryJob groups every action this package emits.
const CategoryJob = "nocode.job"

// Resource types used as the Resource field.
const (
	ResourceJob    = "job"
	ResourcePoller = "poller"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobRetrying,
		ActionJobFailed,
		ActionJobReset,
		ActionStaleRequeued,
	}
}
