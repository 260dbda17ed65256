// Package ratelimit implements sliding-window admission control backed by
// redis sorted sets. Each identity gets one ZSET of request timestamps; every
// check prunes entries older than the window, counts what is left and records
// the new request, all in a single transactional pipeline so concurrent
// requests from the same identity cannot undercount each other.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/cartogra/cartogra/pkg/idx"
	"github.com/cartogra/cartogra/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix = "rate_limit:user:"
	ipKeyPrefix   = "rate_limit:ip:"
)

// UserKey builds the window key for an authenticated identity.
func UserKey(userID string) string { return userKeyPrefix + userID }

// IPKey builds the window key for an anonymous client address.
func IPKey(ip string) string { return ipKeyPrefix + ip }

// Policy is one admission tier: at most Limit requests per trailing Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Result reports the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is the unix second at which a client that stops sending now has a
	// fully drained window.
	Reset int64
	// RetryAfter is the suggested wait in seconds, set only on rejection.
	RetryAfter int64
	// Disabled is set when the check could not be performed and the request
	// was admitted by the fail-open policy.
	Disabled bool
}

// Limiter performs admission checks against redis. A nil client puts it in
// disabled mode where every request is admitted.
//
// FailOpen names the availability trade-off explicitly: when true, a store
// failure admits the request and marks the result Disabled; when false the
// error propagates to the caller.
type Limiter struct {
	redis    redis.UniversalClient
	failOpen bool
}

func New(client redis.UniversalClient, failOpen bool) *Limiter {
	return &Limiter{redis: client, failOpen: failOpen}
}

// Disabled returns a limiter with no backing store; every check is admitted
// with Result.Disabled set.
func Disabled() *Limiter {
	return &Limiter{}
}

// Enabled reports whether a backing store is attached.
func (l *Limiter) Enabled() bool { return l.redis != nil }

// Allow records the request under key and reports whether it fits the policy.
// The request is counted whether or not it is admitted, and regardless of how
// the request ultimately fares downstream: the window tracks attempts, not
// completions.
func (l *Limiter) Allow(ctx context.Context, key string, p Policy) (Result, error) {
	now := time.Now()
	if !l.Enabled() {
		return disabledResult(now, p), nil
	}

	nowSec := float64(now.UnixNano()) / float64(time.Second)
	windowStart := nowSec - p.Window.Seconds()

	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatFloat(windowStart, 'f', -1, 64))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  nowSec,
		Member: windowMember(now),
	})
	pipe.Expire(ctx, key, p.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			slogx.FromContext(ctx).Warn("ratelimit: check failed, failing open", "key", key, "error", err)
			return disabledResult(now, p), nil
		}
		return Result{}, err
	}

	// ZCard ran after the prune and before the add, so it is the number of
	// requests already in the trailing window.
	before := count.Val()

	res := Result{
		Allowed: before < int64(p.Limit),
		Limit:   p.Limit,
		Reset:   now.Add(p.Window).Unix(),
	}
	if remaining := int64(p.Limit) - before - 1; remaining > 0 {
		res.Remaining = int(remaining)
	}
	if !res.Allowed {
		res.RetryAfter = max(int64(p.Window.Seconds()), 1)
	}
	return res, nil
}

// windowMember builds the ZSET member for one request. The ULID suffix keeps
// members distinct when two requests land on the same nanosecond, since ZADD
// would otherwise collapse them into one entry and undercount the window.
func windowMember(now time.Time) string {
	return strconv.FormatInt(now.UnixNano(), 10) + "-" + idx.New().String()
}

func disabledResult(now time.Time, p Policy) Result {
	return Result{
		Allowed:   true,
		Limit:     p.Limit,
		Remaining: p.Limit,
		Reset:     now.Add(p.Window).Unix(),
		Disabled:  true,
	}
}
