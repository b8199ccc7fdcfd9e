package middleware

import (
	"testing"

	"golang.org/x/time/rate"
)

func TestGetLimiterCreatesPairOnFirstSight(t *testing.T) {
	rl := NewIPRateLimiter(rate.Limit(1), 5, rate.Limit(10), 20)

	pair := rl.GetLimiter("192.168.1.1")
	if pair == nil || pair.Normal == nil || pair.Cached == nil {
		t.Fatalf("Expected both tiers created, got %+v", pair)
	}

	if again := rl.GetLimiter("192.168.1.1"); again != pair {
		t.Error("Expected the same pair on repeat lookups")
	}
}

func TestGetLimiterIsolatesIPs(t *testing.T) {
	rl := NewIPRateLimiter(rate.Limit(1), 1, rate.Limit(1), 1)

	a := rl.GetLimiter("10.0.0.1")
	b := rl.GetLimiter("10.0.0.2")
	if a == b {
		t.Fatal("Expected distinct pairs per IP")
	}

	// Draining one IP's budget leaves the other untouched.
	if !a.Normal.Allow() {
		t.Error("Expected first request to be allowed")
	}
	if a.Normal.Allow() {
		t.Error("Expected first IP's normal tier to be exhausted")
	}
	if !b.Normal.Allow() {
		t.Error("Expected second IP to start with a full budget")
	}
}

func TestTwoTierExhaustion(t *testing.T) {
	rl := NewIPRateLimiter(rate.Limit(0.001), 1, rate.Limit(0.001), 2)
	pair := rl.GetLimiter("192.168.1.2")

	// Normal tier: burst of 1.
	if !pair.Normal.Allow() {
		t.Error("Expected first normal request to be allowed")
	}
	if pair.Normal.Allow() {
		t.Error("Expected second normal request to be denied")
	}

	// Cached tier still has its own burst of 2.
	if !pair.Cached.Allow() {
		t.Error("Expected first cached request to be allowed")
	}
	if !pair.Cached.Allow() {
		t.Error("Expected second cached request to be allowed")
	}

	// Both tiers drained.
	if pair.Normal.Allow() || pair.Cached.Allow() {
		t.Error("Expected both tiers to be exhausted")
	}
}
