package redis

// Redis key naming conventions. All keys are prefixed with "nocode:" to
// avoid collisions.

const keyPrefix = "nocode:"

// ── Job keys ──

// jobKeyPrefix is prepended to a job ID to form its Hash key.
const jobKeyPrefix = keyPrefix + "job:"

// jobKey returns the key for a job entity: nocode:job:{id}
func jobKey(id string) string { return jobKeyPrefix + id }

// jobIDsKey is the Set tracking all job IDs.
const jobIDsKey = keyPrefix + "job_ids"

// statusKey returns the Sorted Set indexing jobs in a status, scored by
// creation time in milliseconds: nocode:status:{status}
func statusKey(status string) string { return keyPrefix + "status:" + status }

// scheduledKey holds pending jobs not yet promoted to the ready set,
// scored by scheduled_for in milliseconds.
const scheduledKey = keyPrefix + "scheduled"

// readyKey holds claimable jobs scored by negated priority. Members are
// ranks (see jobRank) so equal scores order by creation time, then ID.
const readyKey = keyPrefix + "ready"

// heartbeatsKey holds processing jobs scored by their last heartbeat in
// milliseconds.
const heartbeatsKey = keyPrefix + "heartbeats"

// failedKey holds failed jobs scored by completed_at in milliseconds.
const failedKey = keyPrefix + "failed"

// ── Result keys ──

// recordKey returns the key for a result record: nocode:result:{id}
func recordKey(id string) string { return keyPrefix + "result:" + id }
