package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterHitExhaustsBudget(t *testing.T) {
	l := NewLimiter(time.Hour, 3)

	for i := 0; i < 3; i++ {
		if !l.Hit("jane@example.com") {
			t.Fatalf("hit %d should be allowed", i+1)
		}
	}
	if l.Hit("jane@example.com") {
		t.Error("hit beyond capacity should be denied")
	}
	if l.Test("jane@example.com") {
		t.Error("Test() should report an exhausted budget")
	}
}

func TestLimiterIsolatesIdentifiers(t *testing.T) {
	l := NewLimiter(time.Hour, 1)

	if !l.Hit("jane@example.com") {
		t.Fatal("first hit should be allowed")
	}
	if !l.Hit("joe@example.com") {
		t.Error("a different identifier must have its own budget")
	}
}

func TestLimiterClearResets(t *testing.T) {
	l := NewLimiter(time.Hour, 1)

	l.Hit("jane@example.com")
	if l.Test("jane@example.com") {
		t.Fatal("budget should be exhausted")
	}

	l.Clear("jane@example.com")
	if !l.Hit("jane@example.com") {
		t.Error("Clear() should restore the full budget")
	}
}
