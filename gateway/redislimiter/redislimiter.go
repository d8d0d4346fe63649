// Package redislimiter shares the login failure window between server
// replicas through Redis sorted sets.
package redislimiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-wallet-web/gateway"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "wallet:login_failures:"

var errLimiterRedisUnavailable = errors.New("limiter redis unavailable")

// reserveScript trims the window and, if there is room, adds the attempt in
// one step. It returns {1, 0} when reserved or {0, score} where score is the
// failure time that has to age out before the next slot frees.
const reserveScript = `
local key = KEYS[1]
local max = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", ARGV[2])
local count = redis.call("ZCARD", key)
if count >= max then
	local oldest = redis.call("ZRANGE", key, count - max, count - max, "WITHSCORES")
	return {0, oldest[2]}
end
redis.call("ZADD", key, ARGV[1], ARGV[4])
redis.call("PEXPIRE", key, ARGV[5])
return {1, "0"}
`

var reserveLua = redis.NewScript(reserveScript)

// Limiter keeps one sorted set per identifier, scored by attempt time in
// milliseconds. Reserved attempts are members until released.
type Limiter struct {
	client redis.UniversalClient
	max    int
	window time.Duration
	prefix string
}

var _ gateway.AttemptLimiter = (*Limiter)(nil)

// New locks an identifier out after max failures within window.
func New(client redis.UniversalClient, max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = gateway.DefaultMaxAttempts
	}
	if window <= 0 {
		window = gateway.DefaultAttemptWindow
	}
	return &Limiter{
		client: client,
		max:    max,
		window: window,
		prefix: defaultPrefix,
	}
}

func (l *Limiter) Reserve(ctx context.Context, key string, now time.Time) (gateway.Attempt, time.Duration, bool, error) {
	a := gateway.Attempt{Key: key, ID: uuid.NewString(), At: now}
	res, err := reserveLua.Run(ctx, l.client, []string{l.key(key)},
		now.UnixMilli(),
		l.cutoff(now),
		l.max,
		a.ID,
		l.window.Milliseconds(),
	).Slice()
	if err != nil {
		return gateway.Attempt{}, 0, false, fmt.Errorf("%w: %v", errLimiterRedisUnavailable, err)
	}
	if len(res) != 2 {
		return gateway.Attempt{}, 0, false, fmt.Errorf("%w: unexpected reply %v", errLimiterRedisUnavailable, res)
	}
	if reserved, _ := res[0].(int64); reserved == 1 {
		return a, 0, false, nil
	}

	score, err := strconv.ParseFloat(fmt.Sprint(res[1]), 64)
	if err != nil {
		return gateway.Attempt{}, 0, false, fmt.Errorf("%w: bad score %v", errLimiterRedisUnavailable, res[1])
	}
	failedAt := time.UnixMilli(int64(score))
	return gateway.Attempt{}, failedAt.Add(l.window).Sub(now), true, nil
}

// Fail re-adds the attempt in case a reset removed it while it was in flight.
func (l *Limiter) Fail(ctx context.Context, a gateway.Attempt) error {
	k := l.key(a.Key)
	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(a.At.UnixMilli()), Member: a.ID})
	pipe.PExpire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", errLimiterRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) Release(ctx context.Context, a gateway.Attempt) error {
	if err := l.client.ZRem(ctx, l.key(a.Key), a.ID).Err(); err != nil {
		return fmt.Errorf("%w: %v", errLimiterRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errLimiterRedisUnavailable, err)
	}
	return nil
}

// cutoff is the newest score that has already left the window.
func (l *Limiter) cutoff(now time.Time) int64 {
	return now.Add(-l.window).UnixMilli()
}

func (l *Limiter) key(identifier string) string {
	return l.prefix + identifier
}
