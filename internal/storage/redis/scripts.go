package redis

const (
	// upsertDailyUsageScript atomically replaces a daily total and indexes its date
	upsertDailyUsageScript = `
local usage_key = KEYS[1]     -- screentime:usage:daily:{date}
local index_key = KEYS[2]     -- screentime:usage:daily:index

local date = ARGV[1]
local duration_ms = ARGV[2]
local updated_at = ARGV[3]
local score = tonumber(ARGV[4])

-- Replace, never accumulate: the total is recomputed from raw events each run
redis.call('HSET', usage_key,
  'date', date,
  'duration_ms', duration_ms,
  'updated_at', updated_at
)

-- Score is the date as YYYYMMDD so range queries follow calendar order
redis.call('ZADD', index_key, score, date)

return 'OK'
`

	// deleteDailyUsageBeforeScript removes every daily total older than a cutoff
	deleteDailyUsageBeforeScript = `
local index_key = KEYS[1]     -- screentime:usage:daily:index
local prefix = ARGV[1]        -- screentime:usage:daily:
local cutoff = ARGV[2]        -- exclusive YYYYMMDD score

local dates = redis.call('ZRANGEBYSCORE', index_key, '-inf', '(' .. cutoff)
for _, date in ipairs(dates) do
  redis.call('DEL', prefix .. date)
end
if #dates > 0 then
  redis.call('ZREMRANGEBYSCORE', index_key, '-inf', '(' .. cutoff)
end

return #dates
`

	// appendEventsScript assigns sequence numbers and indexes raw events by time
	appendEventsScript = `
local events_key = KEYS[1]    -- screentime:events
local seq_key = KEYS[2]       -- screentime:events:seq

-- ARGV holds (score, zero-padded nanos, payload) triples; equal scores
-- order lexically by member, so nanos then sequence break ties
local count = 0
for i = 1, #ARGV, 3 do
  local seq = redis.call('INCR', seq_key)
  local member = ARGV[i + 1] .. ':' .. string.format('%012d', seq) .. '|' .. ARGV[i + 2]
  redis.call('ZADD', events_key, tonumber(ARGV[i]), member)
  count = count + 1
end

return count
`
)
