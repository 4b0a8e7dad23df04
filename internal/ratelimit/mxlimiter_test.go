package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limits map[string]Limit) *MXLimiter {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewMXLimiter(client, limits)
}

func TestMXLimiter_AllowsWithinLimit(t *testing.T) {
	l := newTestLimiter(t, map[string]Limit{"example.com": {PerSecond: 5, PerMinute: 120}})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Check(ctx, "user@example.com")
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("call %d unexpectedly denied", i)
		}
	}
}

func TestMXLimiter_DeniesOneOverPerSecondLimit(t *testing.T) {
	l := newTestLimiter(t, map[string]Limit{"gmail.com": {PerSecond: 20, PerMinute: 1000}})
	ctx := context.Background()

	denied := 0
	for i := 0; i < 21; i++ {
		res, err := l.Check(ctx, "user@gmail.com")
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if !res.Allowed {
			denied++
			if res.RetryAfterMS != 1000 {
				t.Errorf("expected RetryAfterMS=1000 for per-second breach, got %d", res.RetryAfterMS)
			}
		}
	}
	if denied != 1 {
		t.Errorf("expected exactly 1 denial for 21 calls against a 20/s limit, got %d", denied)
	}
}

func TestDomainFor_CanonicalisesAliases(t *testing.T) {
	cases := map[string]string{
		"a@googlemail.com": "gmail.com",
		"b@hotmail.com":     "outlook.com",
		"c@ymail.com":       "yahoo.com",
		"d@example.com":     "example.com",
	}
	for email, want := range cases {
		if got := domainFor(email); got != want {
			t.Errorf("domainFor(%q) = %q, want %q", email, got, want)
		}
	}
}
