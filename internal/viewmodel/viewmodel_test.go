package viewmodel

import (
	"testing"
	"time"

	"github.com/dropwire-io/dropwire/internal/config"
	"github.com/dropwire-io/dropwire/internal/peer"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	cfg := config.Load(config.Options{})
	return New(cfg, nil, nil, nil)
}

func TestNewSessionStartsIdle(t *testing.T) {
	s := newTestSession(t)
	snap := s.Snapshot()
	if snap.ConnectionState != peer.StateIdle {
		t.Fatalf("expected idle, got %s", snap.ConnectionState)
	}
	if len(snap.Transfers) != 0 || len(snap.Messages) != 0 {
		t.Fatal("expected empty transfers and messages at start")
	}
}

func TestDisconnectReturnsToIdleWithEmptyState(t *testing.T) {
	s := newTestSession(t)

	if err := s.CreateOffer(); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	// Give the controller's background goroutine a moment to start
	// gathering (state transitions asynchronously).
	time.Sleep(20 * time.Millisecond)

	s.Disconnect()

	snap := s.Snapshot()
	if snap.ConnectionState != peer.StateIdle {
		t.Fatalf("expected idle after disconnect, got %s", snap.ConnectionState)
	}
	if len(snap.Transfers) != 0 {
		t.Fatalf("expected empty transfers after disconnect, got %d", len(snap.Transfers))
	}
	if len(snap.Messages) != 0 {
		t.Fatalf("expected empty messages after disconnect, got %d", len(snap.Messages))
	}
}

func TestResetConnectionIsAliasOfDisconnect(t *testing.T) {
	s := newTestSession(t)
	if err := s.CreateOffer(); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	s.ResetConnection()

	snap := s.Snapshot()
	if snap.ConnectionState != peer.StateIdle {
		t.Fatalf("expected idle after ResetConnection, got %s", snap.ConnectionState)
	}
}

func TestAcceptOfferWithInvalidSignalLeavesErrorStateWithoutConstructingPeer(t *testing.T) {
	s := newTestSession(t)

	err := s.AcceptOffer("not base64!")
	if err == nil {
		t.Fatal("expected error for invalid offer format")
	}

	time.Sleep(10 * time.Millisecond)
	snap := s.Snapshot()
	if snap.ConnectionState != peer.StateError {
		t.Fatalf("expected error state, got %s", snap.ConnectionState)
	}
	if snap.Error != string(peer.ErrInvalidOfferFormat) {
		t.Fatalf("expected invalidOfferFormat, got %q", snap.Error)
	}
}
