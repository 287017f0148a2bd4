package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_EnforcesLimit(t *testing.T) {
	l := New(3)

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("fourth request within the window should be rejected")
	}
}

func TestAllow_PerIdentifier(t *testing.T) {
	l := New(1)

	if !l.Allow("10.0.0.1") {
		t.Fatal("first client should be allowed")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("a different client must not share the first client's window")
	}
	if l.Allow("10.0.0.1") {
		t.Error("first client should now be limited")
	}
}

func TestAllow_WindowSlides(t *testing.T) {
	l := New(2)

	current := time.Now()
	l.now = func() time.Time { return current }

	if !l.Allow("client") || !l.Allow("client") {
		t.Fatal("first two requests should be allowed")
	}
	if l.Allow("client") {
		t.Fatal("third request should be rejected")
	}

	// 61 seconds later the earlier requests have left the window.
	current = current.Add(61 * time.Second)
	if !l.Allow("client") {
		t.Error("request after the window slides should be allowed")
	}

	// 30 more seconds: one request in-window, one slot free.
	current = current.Add(30 * time.Second)
	if !l.Allow("client") {
		t.Error("second slot should be free")
	}
	if l.Allow("client") {
		t.Error("window holds two requests again; third must be rejected")
	}
}

func TestNew_MinimumOne(t *testing.T) {
	l := New(0)
	if !l.Allow("client") {
		t.Error("limiter should floor at one request per window")
	}
	if l.Allow("client") {
		t.Error("floored limiter still enforces the single slot")
	}
}
