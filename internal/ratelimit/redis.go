package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// slidingWindowScript counts members of a sorted set scored by unix
// milliseconds. Returns {allowed, resetAtMillis}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    if #oldest >= 2 then
        return {0, tonumber(oldest[2]) + window}
    end
    return {0, now + window}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window + 10000)
return {1, now + window}
`)

// RedisLimiter shares its counters across every server instance.
type RedisLimiter struct {
	client redis.Scripter
	now    func() time.Time
	seq    func() string
}

func NewRedisLimiter(client redis.Scripter) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now, seq: uniqueMember}
}

func (rl *RedisLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time, error) {
	now := rl.now()
	result, err := slidingWindowScript.Run(
		ctx,
		rl.client,
		[]string{redisKeyPrefix + key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		rl.seq(),
	).Int64Slice()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(result) != 2 {
		return false, time.Time{}, fmt.Errorf("rate limit script: unexpected result %v", result)
	}
	return result[0] == 1, time.UnixMilli(result[1]), nil
}

var memberSeq atomic.Uint64

// uniqueMember keeps same-millisecond calls from collapsing into one
// sorted-set member.
func uniqueMember() string {
	return strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatUint(memberSeq.Add(1), 10)
}
