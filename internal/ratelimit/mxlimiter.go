// Package ratelimit implements the per-destination-domain sliding-window
// send limiter, backed by a Redis Lua script running INCR/EXPIRE atomically, the same way the
// teacher's advanced throttle manager drives its own Lua scripts.
package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit is the per-domain {per_second, per_minute} pair.
type Limit struct {
	PerSecond int
	PerMinute int
}

// DefaultLimit is applied to any domain without a specific entry.
var DefaultLimit = Limit{PerSecond: 1, PerMinute: 120}

// aliasCanon canonicalises common ISP domain aliases onto one another.
var aliasCanon = map[string]string{
	"googlemail.com": "gmail.com",
	"live.com":        "outlook.com",
	"hotmail.com":     "outlook.com",
	"msn.com":         "outlook.com",
	"ymail.com":       "yahoo.com",
	"rocketmail.com":  "yahoo.com",
}

// Result is the outcome of a Check call.
type Result struct {
	Allowed      bool
	RetryAfterMS int64
}

// incrAndCheckScript atomically increments the second- and minute-window
// counters for a domain and reports which (if any) limit was breached.
// Keys self-expire so no separate lock is required.
var incrAndCheckScript = redis.NewScript(`
local secKey = KEYS[1]
local minKey = KEYS[2]
local secLimit = tonumber(ARGV[1])
local minLimit = tonumber(ARGV[2])

local sec = redis.call("INCR", secKey)
if sec == 1 then redis.call("EXPIRE", secKey, 2) end
local min = redis.call("INCR", minKey)
if min == 1 then redis.call("EXPIRE", minKey, 120) end

if sec > secLimit then
  return {0, 1}
end
if min > minLimit then
  return {0, 2}
end
return {1, 0}
`)

// MXLimiter enforces per-destination-domain send limits in Redis.
type MXLimiter struct {
	redis  *redis.Client
	limits map[string]Limit
}

// NewMXLimiter builds a limiter with an optional per-domain limits table
// overlaid on DefaultLimit.
func NewMXLimiter(client *redis.Client, limits map[string]Limit) *MXLimiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	return &MXLimiter{redis: client, limits: limits}
}

// domainFor extracts and canonicalises the destination domain of an email
// address.
func domainFor(email string) string {
	idx := strings.LastIndex(email, "@")
	if idx < 0 {
		return ""
	}
	d := strings.ToLower(strings.TrimSpace(email[idx+1:]))
	if canon, ok := aliasCanon[d]; ok {
		return canon
	}
	return d
}

func (l *MXLimiter) limitFor(domain string) Limit {
	if lim, ok := l.limits[domain]; ok {
		return lim
	}
	return DefaultLimit
}

// Check consumes one send slot for the recipient's destination domain. On a
// Redis error it fails open (allow).
func (l *MXLimiter) Check(ctx context.Context, recipient string) (Result, error) {
	domain := domainFor(recipient)
	if domain == "" {
		return Result{Allowed: true}, nil
	}
	lim := l.limitFor(domain)

	now := time.Now()
	secKey := "mxlimit:" + domain + ":sec:" + strconv.FormatInt(now.Unix(), 10)
	minKey := "mxlimit:" + domain + ":min:" + strconv.FormatInt(now.Unix()/60, 10)

	out, err := incrAndCheckScript.Run(ctx, l.redis, []string{secKey, minKey}, lim.PerSecond, lim.PerMinute).Result()
	if err != nil {
		return Result{Allowed: true}, nil
	}

	vals, ok := out.([]interface{})
	if !ok || len(vals) != 2 {
		return Result{Allowed: true}, nil
	}
	allowed, _ := vals[0].(int64)
	reason, _ := vals[1].(int64)

	if allowed == 1 {
		return Result{Allowed: true}, nil
	}

	var retryMS int64
	switch reason {
	case 1: // per-second breach
		retryMS = 1000
	case 2: // per-minute breach
		nowMS := now.UnixMilli()
		retryMS = 60_000 - (nowMS % 60_000)
	}
	return Result{Allowed: false, RetryAfterMS: retryMS}, nil
}
