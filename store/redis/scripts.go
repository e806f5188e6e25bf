package redis

import goredis "github.com/redis/go-redis/v9"

// enqueueScript stores a job hash unless the key already exists.
//
// KEYS: job, job_ids, status index, scheduled
// ARGV: id, created ms, scheduled ms, status, field/value pairs...
var enqueueScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], unpack(ARGV, 5))
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
if ARGV[4] == 'pending' then
  redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
end
return 1
`)

// claimScript promotes due jobs into the ready set, then pops the best
// ranked one and marks it processing. It returns the claimed hash.
//
// KEYS: scheduled, ready, status:pending, status:processing, heartbeats
// ARGV: now ms, now, worker id, job key prefix
var claimScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1000)
for _, id in ipairs(due) do
  local fields = redis.call('HMGET', ARGV[4] .. id, 'priority', 'rank')
  if fields[1] and fields[2] then
    redis.call('ZADD', KEYS[2], -tonumber(fields[1]), fields[2])
  end
  redis.call('ZREM', KEYS[1], id)
end
local top = redis.call('ZRANGE', KEYS[2], 0, 0)
if #top == 0 then return false end
local rank = top[1]
redis.call('ZREM', KEYS[2], rank)
local id = string.sub(rank, string.find(rank, ':', 1, true) + 1)
local key = ARGV[4] .. id
local created = redis.call('HGET', key, 'created_ms')
redis.call('HSET', key,
  'status', 'processing', 'started_at', ARGV[2], 'heartbeat_at', ARGV[2],
  'worker_id', ARGV[3], 'updated_at', ARGV[2])
redis.call('ZREM', KEYS[3], id)
redis.call('ZADD', KEYS[4], created, id)
redis.call('ZADD', KEYS[5], ARGV[1], id)
return redis.call('HGETALL', key)
`)

// markScript moves a job processing under the given worker to completed,
// pending or failed.
//
// KEYS: job, status:processing, status:target, heartbeats, scheduled, failed
// ARGV: id, target, now, now ms, error, attempts, scheduled ms, scheduled, worker id
var markScript = goredis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'status', 'attempts', 'max_attempts', 'created_ms', 'worker_id')
local status = cur[1]
if not status then return 'missing' end
if status ~= 'processing' then
  if status == ARGV[2] then return 'noop' end
  return 'invalid'
end
if cur[5] ~= ARGV[9] then return 'invalid' end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'worker_id', '', 'updated_at', ARGV[3])
redis.call('HDEL', KEYS[1], 'heartbeat_at')
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('ZADD', KEYS[3], cur[4], ARGV[1])
if ARGV[2] == 'completed' then
  redis.call('HSET', KEYS[1], 'completed_at', ARGV[3], 'error', '')
  return 'ok'
end
local attempts = tonumber(cur[2])
local maxAttempts = tonumber(cur[3])
local next = tonumber(ARGV[6])
if next < attempts then next = attempts end
if maxAttempts > 0 and next > maxAttempts then next = maxAttempts end
redis.call('HSET', KEYS[1], 'error', ARGV[5], 'attempts', tostring(next))
if ARGV[2] == 'pending' then
  redis.call('HSET', KEYS[1], 'scheduled_for', ARGV[8])
  redis.call('ZADD', KEYS[5], ARGV[7], ARGV[1])
else
  redis.call('HSET', KEYS[1], 'completed_at', ARGV[3])
  redis.call('ZADD', KEYS[6], ARGV[4], ARGV[1])
end
return 'ok'
`)

// heartbeatScript refreshes the heartbeat of a job owned by the caller.
//
// KEYS: job, heartbeats
// ARGV: id, worker id, now, now ms
var heartbeatScript = goredis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'status', 'worker_id')
if not cur[1] then return 'missing' end
if cur[1] ~= 'processing' or cur[2] ~= ARGV[2] then return 'invalid' end
redis.call('HSET', KEYS[1], 'heartbeat_at', ARGV[3], 'updated_at', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
return 'ok'
`)

// requeueScript recovers processing jobs whose heartbeat is older than
// the cutoff, consuming one attempt each. It returns the requeued count
// followed by the IDs of jobs that ran out of attempts and failed.
//
// KEYS: heartbeats, status:processing, status:pending, status:failed, scheduled, failed
// ARGV: cutoff ms, now, now ms, error, job key prefix
var requeueScript = goredis.NewScript(`
local stale = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local n = 0
local failed = {}
for _, id in ipairs(stale) do
  local key = ARGV[5] .. id
  redis.call('ZREM', KEYS[1], id)
  local cur = redis.call('HMGET', key, 'status', 'attempts', 'max_attempts', 'created_ms')
  if cur[1] == 'processing' then
    local attempts = tonumber(cur[2])
    local maxAttempts = tonumber(cur[3])
    redis.call('HSET', key, 'error', ARGV[4], 'worker_id', '', 'updated_at', ARGV[2])
    redis.call('HDEL', key, 'heartbeat_at')
    redis.call('ZREM', KEYS[2], id)
    if attempts + 1 < maxAttempts then
      redis.call('HSET', key, 'status', 'pending', 'attempts', tostring(attempts + 1), 'scheduled_for', ARGV[2])
      redis.call('ZADD', KEYS[3], cur[4], id)
      redis.call('ZADD', KEYS[5], ARGV[3], id)
      n = n + 1
    else
      local spent = attempts + 1
      if spent > maxAttempts then spent = maxAttempts end
      redis.call('HSET', key, 'status', 'failed', 'attempts', tostring(spent), 'completed_at', ARGV[2])
      redis.call('ZADD', KEYS[4], cur[4], id)
      redis.call('ZADD', KEYS[6], ARGV[3], id)
      table.insert(failed, id)
    end
  end
end
table.insert(failed, 1, n)
return failed
`)

// resetScript moves a failed job back to pending.
//
// KEYS: job, status:failed, status:pending, failed, scheduled
// ARGV: id, now, now ms
var resetScript = goredis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'status', 'created_ms')
if not cur[1] then return 'missing' end
if cur[1] ~= 'failed' then return 'invalid' end
redis.call('HSET', KEYS[1],
  'status', 'pending', 'attempts', '0', 'error', '', 'worker_id', '',
  'scheduled_for', ARGV[2], 'updated_at', ARGV[2])
redis.call('HDEL', KEYS[1], 'started_at', 'completed_at', 'heartbeat_at')
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('ZADD', KEYS[3], cur[2], ARGV[1])
redis.call('ZADD', KEYS[5], ARGV[3], ARGV[1])
return 'ok'
`)

var allScripts = []*goredis.Script{
	enqueueScript, claimScript, markScript, heartbeatScript, requeueScript, resetScript,
}
