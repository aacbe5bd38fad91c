package ratelimit

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestAllowUnlimitedWhenZero(t *testing.T) {
	l := New(&redis.Client{})
	res, err := l.Allow(context.Background(), "hash", "1.2.3.4", 0)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !res.Allowed {
		t.Fatal("want unlimited budget to always allow")
	}
}
