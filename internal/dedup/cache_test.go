package dedup

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAccept_FirstReadIsNew(t *testing.T) {
	c := New(5 * time.Second)
	if !c.Accept("AA11", "10.0.0.5", t0) {
		t.Fatal("first read of AA11 should be accepted")
	}
	e, ok := c.Lookup("AA11")
	if !ok {
		t.Fatal("expected entry for AA11")
	}
	if !e.LastSeenAt.Equal(t0) || e.SourceIP != "10.0.0.5" {
		t.Errorf("entry = %+v", e)
	}
}

func TestAccept_Window(t *testing.T) {
	for _, tc := range []struct {
		delta time.Duration
		want  bool
	}{
		{0, false},
		{time.Millisecond, false},
		{2 * time.Second, false},
		{4999 * time.Millisecond, false},
		{5 * time.Second, true},
		{6 * time.Second, true},
		{time.Hour, true},
	} {
		c := New(5 * time.Second)
		if !c.Accept("AA11", "", t0) {
			t.Fatal("first read should be accepted")
		}
		if got := c.Accept("AA11", "", t0.Add(tc.delta)); got != tc.want {
			t.Errorf("Accept at t0+%v = %v, want %v", tc.delta, got, tc.want)
		}
	}
}

func TestAccept_RejectionDoesNotExtendWindow(t *testing.T) {
	c := New(5 * time.Second)
	c.Accept("AA11", "", t0)

	// Rapid duplicates inside the window must not push the window forward.
	for i := 1; i <= 4; i++ {
		if c.Accept("AA11", "", t0.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("read at t0+%ds should be a duplicate", i)
		}
	}
	if !c.Accept("AA11", "", t0.Add(5*time.Second)) {
		t.Fatal("read at t0+5s should open a new window")
	}
	if c.Accept("AA11", "", t0.Add(9*time.Second)) {
		t.Fatal("read at t0+9s is inside the window started at t0+5s")
	}

	e, _ := c.Lookup("AA11")
	if e.Accepted != 2 {
		t.Errorf("Accepted = %d, want 2", e.Accepted)
	}
}

func TestAccept_IndependentPerTag(t *testing.T) {
	c := New(5 * time.Second)
	if !c.Accept("AA11", "", t0) {
		t.Fatal("AA11 should be accepted")
	}
	if !c.Accept("CC33", "", t0.Add(time.Second)) {
		t.Fatal("CC33 should be accepted regardless of AA11")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestNew_DefaultWindow(t *testing.T) {
	if got := New(0).Window(); got != DefaultWindow {
		t.Errorf("Window = %v, want %v", got, DefaultWindow)
	}
}

func TestSweep_RemovesOnlyExpired(t *testing.T) {
	c := New(5 * time.Second)
	c.Accept("OLD", "", t0)
	c.Accept("NEW", "", t0.Add(4*time.Second))

	if n := c.Sweep(t0.Add(5 * time.Second)); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if _, ok := c.Lookup("OLD"); ok {
		t.Error("OLD should have been swept")
	}
	if _, ok := c.Lookup("NEW"); !ok {
		t.Error("NEW should remain")
	}
	// NEW is still inside its window, so sweeping must not change the verdict.
	if c.Accept("NEW", "", t0.Add(6*time.Second)) {
		t.Error("NEW at t0+6s should still be a duplicate")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Accept("AA11", "", time.Now())
	c.StartSweeper(5 * time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()

	if c.Len() != 0 {
		t.Fatalf("Len = %d after sweeping, want 0", c.Len())
	}
	// Stop twice must not panic.
	c.Stop()
}
