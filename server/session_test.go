package server

import (
	"net"
	"testing"
	"time"
)

func testPeer() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
}

func TestCreateAssignsNonZeroSessionID(t *testing.T) {
	m := NewSessionManager(time.Minute)
	id, err := m.Create(42, testPeer())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == 0 {
		t.Fatal("session id must be non-zero")
	}
	if m.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Count())
	}
}

func TestGetRoundTrip(t *testing.T) {
	m := NewSessionManager(time.Minute)
	id, err := m.Create(7, testPeer())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s, ok := m.Get(id)
	if !ok {
		t.Fatal("expected session to be found")
	}
	if s.ClientID != 7 {
		t.Fatalf("ClientID = %d, want 7", s.ClientID)
	}
}

func TestGetMissingSession(t *testing.T) {
	m := NewSessionManager(time.Minute)
	if _, ok := m.Get(999); ok {
		t.Fatal("expected no session for unknown id")
	}
}

func TestTouchByClientIDNoOpWhenAbsent(t *testing.T) {
	m := NewSessionManager(time.Minute)
	// No session ever created for this client_id: must not panic or
	// create a phantom entry, per the Rust original's documented quirk.
	m.TouchByClientID(123, 64)
	if m.Count() != 0 {
		t.Fatalf("expected no sessions, got %d", m.Count())
	}
}

func TestTouchByClientIDUpdatesLastSeenAndCounters(t *testing.T) {
	m := NewSessionManager(time.Minute)
	id, err := m.Create(5, testPeer())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before, _ := m.Get(id)

	time.Sleep(time.Millisecond)
	m.TouchByClientID(5, 100)

	after, _ := m.Get(id)
	if !after.LastSeen.After(before.LastSeen) {
		t.Fatal("expected last_seen to advance")
	}
	if after.PacketsReceived != 1 {
		t.Fatalf("PacketsReceived = %d, want 1", after.PacketsReceived)
	}
	if after.BytesReceived != 100 {
		t.Fatalf("BytesReceived = %d, want 100", after.BytesReceived)
	}
}

func TestReapRemovesIdleSessions(t *testing.T) {
	m := NewSessionManager(10 * time.Millisecond)
	id, err := m.Create(1, testPeer())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	removed := m.Reap()
	if removed != 1 {
		t.Fatalf("Reap() = %d, want 1", removed)
	}
	if _, ok := m.Get(id); ok {
		t.Fatal("expected session to be gone after reap")
	}
	if m.Count() != 0 {
		t.Fatalf("expected 0 sessions after reap, got %d", m.Count())
	}
}

func TestReapKeepsFreshSessions(t *testing.T) {
	m := NewSessionManager(time.Minute)
	id, err := m.Create(2, testPeer())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if removed := m.Reap(); removed != 0 {
		t.Fatalf("Reap() = %d, want 0", removed)
	}
	if _, ok := m.Get(id); !ok {
		t.Fatal("expected fresh session to survive reap")
	}
}

func TestRunReaperStopsOnSignal(t *testing.T) {
	m := NewSessionManager(5 * time.Millisecond)
	if _, err := m.Create(3, testPeer()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stop := make(chan struct{})
	reaped := make(chan int, 8)
	done := make(chan struct{})

	go func() {
		m.RunReaper(5*time.Millisecond, stop, func(n int) { reaped <- n })
		close(done)
	}()

	select {
	case n := <-reaped:
		if n != 1 {
			t.Fatalf("reaped %d sessions, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reaper to run")
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunReaper did not return after stop was closed")
	}
}
