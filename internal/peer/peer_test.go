package peer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropwire-io/dropwire/internal/config"
)

func testConfig() *config.Config {
	return config.Load(config.Options{})
}

func TestCreateOfferRejectedOutsideIdle(t *testing.T) {
	c := New(testConfig())
	c.state = StateConnecting // simulate mid-handshake without a real peer

	if err := c.CreateOffer(context.Background()); err == nil {
		t.Fatal("expected error calling CreateOffer outside idle state")
	}
}

func TestAcceptOfferWithInvalidSignalFormat(t *testing.T) {
	c := New(testConfig())

	err := c.AcceptOffer(context.Background(), "not valid base64 at all !!!")
	if err == nil {
		t.Fatal("expected decode error")
	}

	var connErr *ConnError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnError, got %T", err)
	}
	if connErr.Kind != ErrInvalidOfferFormat {
		t.Fatalf("expected invalidOfferFormat, got %q", connErr.Kind)
	}
	if c.State() != StateError {
		t.Fatalf("expected error state, got %s", c.State())
	}
}

func TestAcceptAnswerRejectedOutsideWaitingForPeer(t *testing.T) {
	c := New(testConfig())

	err := c.AcceptAnswer(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected error calling AcceptAnswer outside waitingForPeer")
	}
}

func TestDisconnectFromAnyStateReturnsToIdle(t *testing.T) {
	c := New(testConfig())
	c.state = StateError

	c.Disconnect()

	if c.State() != StateIdle {
		t.Fatalf("expected idle after disconnect, got %s", c.State())
	}
}

func TestClassifyErrorMapsICEMessages(t *testing.T) {
	err := classifyError(errors.New("Ice connection failed: timeout"))
	if err.Kind != ErrICEFailed {
		t.Fatalf("expected iceFailed, got %q", err.Kind)
	}

	err = classifyError(errors.New("ICE gathering failed"))
	if err.Kind != ErrICEFailed {
		t.Fatalf("expected iceFailed, got %q", err.Kind)
	}
}

func TestClassifyErrorPassesThroughRawMessage(t *testing.T) {
	err := classifyError(errors.New("something unrelated broke"))
	if err.Kind != "" {
		t.Fatalf("expected unclassified error, got kind %q", err.Kind)
	}
	if err.Raw != "something unrelated broke" {
		t.Fatalf("unexpected raw message: %q", err.Raw)
	}
}

func TestConnectionTimeoutFromEnvDefault(t *testing.T) {
	got := config.ConnectionTimeoutFromEnv(5 * time.Second)
	if got != 5*time.Second {
		t.Fatalf("expected default passthrough, got %s", got)
	}
}
