package peer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dropwire-io/dropwire/internal/config"
	"github.com/dropwire-io/dropwire/internal/signalcodec"
	pion "github.com/pion/webrtc/v4"
)

// Events is the set of asynchronous notifications the Connection Controller
// emits. The View-Model Adapter subscribes to these to update reactive state.
type Events struct {
	// StateChanged fires whenever ConnectionState transitions.
	StateChanged chan ConnectionState
	// SignalStatusChanged fires whenever SignalStatus transitions.
	SignalStatusChanged chan SignalStatus
	// LocalSignal fires once per handshake with the encoded offer/answer
	// string the caller ships to the peer out-of-band.
	LocalSignal chan string
	// Failed fires on any ConnError.
	Failed chan *ConnError
	// DataChannelOpen fires once the data channel backing the transfer
	// engine is open and ready for use.
	DataChannelOpen chan *pion.DataChannel
	// Inbound fires for every message arriving on the data channel, for
	// the Transfer Engine to consume.
	Inbound chan pion.DataChannelMessage
}

func newEvents() *Events {
	return &Events{
		StateChanged:        make(chan ConnectionState, 16),
		SignalStatusChanged: make(chan SignalStatus, 16),
		LocalSignal:         make(chan string, 1),
		Failed:              make(chan *ConnError, 4),
		DataChannelOpen:     make(chan *pion.DataChannel, 1),
		Inbound:             make(chan pion.DataChannelMessage, 256),
	}
}

// Controller owns a single peer connection for the lifetime of one
// handshake and routes inbound data-channel payloads onward. Only the
// Controller ever calls Close/destroy on the peer handle (spec.md §5).
type Controller struct {
	cfg *config.Config

	mu          sync.Mutex
	conn        *pion.PeerConnection
	dataChannel *pion.DataChannel
	state       ConnectionState
	signal      SignalStatus
	isInitiator bool
	timeoutTmr  *time.Timer

	Events *Events
}

// New constructs a Controller in the idle state.
func New(cfg *config.Config) *Controller {
	return &Controller{
		cfg:    cfg,
		state:  StateIdle,
		signal: SignalNone,
		Events: newEvents(),
	}
}

// State returns the current ConnectionState.
func (c *Controller) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.Events.StateChanged <- s
}

func (c *Controller) setSignalStatus(s SignalStatus) {
	c.mu.Lock()
	c.signal = s
	c.mu.Unlock()
	c.Events.SignalStatusChanged <- s
}

// CreateOffer constructs an initiator peer, opens the data channel, and
// (once non-trickle ICE gathering completes) emits the encoded offer on
// Events.LocalSignal. See spec.md §4.2 state table row 1.
func (c *Controller) CreateOffer(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("peer: CreateOffer called outside idle state")
	}
	c.isInitiator = true
	c.mu.Unlock()

	c.setState(StateConnecting)
	c.setSignalStatus(SignalGathering)

	conn, err := c.newPeerConnection()
	if err != nil {
		return c.fail(classifyError(err))
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	dc, err := conn.CreateDataChannel("dropwire", nil)
	if err != nil {
		return c.fail(classifyError(err))
	}
	c.bindDataChannel(dc)

	offer, err := conn.CreateOffer(nil)
	if err != nil {
		return c.fail(classifyError(err))
	}

	gatherComplete := pion.GatheringCompletePromise(conn)
	if err := conn.SetLocalDescription(offer); err != nil {
		return c.fail(classifyError(err))
	}

	c.startTimeout()

	go c.awaitGatheringThenPublish(ctx, gatherComplete, signalcodec.KindOffer)

	return nil
}

// AcceptOffer decodes a remote offer, constructs a responder peer, feeds the
// offer, and (once gathering completes) emits the encoded answer. See
// spec.md §4.2 state table row 2.
func (c *Controller) AcceptOffer(ctx context.Context, encoded string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("peer: AcceptOffer called outside idle state")
	}
	c.isInitiator = false
	c.mu.Unlock()

	blob, err := signalcodec.Decode(encoded)
	if err != nil {
		return c.fail(&ConnError{Kind: ErrInvalidOfferFormat, Err: err})
	}
	if blob.Kind != signalcodec.KindOffer {
		return c.fail(&ConnError{Kind: ErrInvalidOffer, Err: fmt.Errorf("expected offer, got %s", blob.Kind)})
	}

	c.setState(StateConnecting)
	c.setSignalStatus(SignalGathering)

	conn, err := c.newPeerConnection()
	if err != nil {
		return c.fail(classifyError(err))
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.OnDataChannel(func(dc *pion.DataChannel) {
		c.bindDataChannel(dc)
	})

	remote := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: blob.SDP}
	if err := conn.SetRemoteDescription(remote); err != nil {
		return c.fail(&ConnError{Kind: ErrInvalidOffer, Err: err})
	}

	answer, err := conn.CreateAnswer(nil)
	if err != nil {
		return c.fail(classifyError(err))
	}

	gatherComplete := pion.GatheringCompletePromise(conn)
	if err := conn.SetLocalDescription(answer); err != nil {
		return c.fail(classifyError(err))
	}

	c.startTimeout()

	go c.awaitGatheringThenPublish(ctx, gatherComplete, signalcodec.KindAnswer)

	return nil
}

// AcceptAnswer feeds a remote answer to an initiator's peer connection. Only
// valid from waitingForPeer, and only for the initiator. See spec.md §4.2
// state table row 4.
func (c *Controller) AcceptAnswer(ctx context.Context, encoded string) error {
	c.mu.Lock()
	state := c.state
	isInitiator := c.isInitiator
	conn := c.conn
	c.mu.Unlock()

	if state != StateWaitingForPeer || !isInitiator {
		return fmt.Errorf("peer: AcceptAnswer called outside waitingForPeer/initiator state")
	}

	blob, err := signalcodec.Decode(encoded)
	if err != nil {
		return c.fail(&ConnError{Kind: ErrInvalidAnswerFormat, Err: err})
	}
	if blob.Kind != signalcodec.KindAnswer {
		return c.fail(&ConnError{Kind: ErrInvalidAnswer, Err: fmt.Errorf("expected answer, got %s", blob.Kind)})
	}

	remote := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: blob.SDP}
	if err := conn.SetRemoteDescription(remote); err != nil {
		return c.fail(&ConnError{Kind: ErrInvalidAnswer, Err: err})
	}

	c.setState(StateConnecting)
	return nil
}

// Disconnect destroys the peer and returns the controller to idle. It is
// idempotent and safe to call from any state (spec.md §4.2 state table,
// last row).
func (c *Controller) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	timer := c.timeoutTmr
	c.conn = nil
	c.dataChannel = nil
	c.timeoutTmr = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			slog.Debug("peer: error closing connection", "err", err)
		}
	}

	c.setSignalStatus(SignalNone)
	c.setState(StateIdle)
}

func (c *Controller) bindDataChannel(dc *pion.DataChannel) {
	c.mu.Lock()
	c.dataChannel = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.Events.DataChannelOpen <- dc
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		c.Events.Inbound <- msg
	})
}

func (c *Controller) awaitGatheringThenPublish(ctx context.Context, gatherComplete <-chan struct{}, kind signalcodec.Kind) {
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	local := conn.LocalDescription()
	if local == nil {
		c.fail(&ConnError{Raw: "local description missing after gathering complete"})
		return
	}

	encoded, err := signalcodec.Encode(signalcodec.SignalBlob{Kind: kind, SDP: local.SDP})
	if err != nil {
		c.fail(&ConnError{Raw: err.Error(), Err: err})
		return
	}

	c.setSignalStatus(SignalReady)
	c.Events.LocalSignal <- encoded
	c.setState(StateWaitingForPeer)

	conn.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		switch s {
		case pion.PeerConnectionStateConnected:
			c.mu.Lock()
			if c.timeoutTmr != nil {
				c.timeoutTmr.Stop()
			}
			c.mu.Unlock()
			c.setSignalStatus(SignalNone)
			c.setState(StateConnected)
		case pion.PeerConnectionStateClosed:
			c.setState(StateDisconnected)
		case pion.PeerConnectionStateFailed:
			c.fail(&ConnError{Kind: ErrICEFailed, Raw: "ice connection failed"})
		}
	})
}

func (c *Controller) startTimeout() {
	timer := time.AfterFunc(config.ConnectionTimeoutFromEnv(config.ConnectionTimeout), func() {
		c.mu.Lock()
		state := c.state
		c.mu.Unlock()
		if state == StateConnected || state == StateIdle || state == StateDisconnected {
			return
		}
		c.fail(&ConnError{Kind: ErrConnectionTimeout})
	})
	c.mu.Lock()
	c.timeoutTmr = timer
	c.mu.Unlock()
}

func (c *Controller) fail(err *ConnError) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	c.setState(StateError)
	c.Events.Failed <- err
	return err
}

// newPeerConnection builds the peer with only STUN servers configured, per
// spec.md §4.2/§6: no TURN relay fallback beyond what the peer library
// provides on its own.
func (c *Controller) newPeerConnection() (*pion.PeerConnection, error) {
	var iceServers []pion.ICEServer
	if len(c.cfg.STUNServers) > 0 {
		iceServers = append(iceServers, pion.ICEServer{URLs: c.cfg.STUNServers})
	}
	return pion.NewPeerConnection(pion.Configuration{ICEServers: iceServers})
}

// classifyError maps a pion error to a ConnError per spec.md §4.2's
// classification rules: ICE-related messages map to iceFailed, unsupported
// environments map to webrtcUnsupported, everything else is raw.
func classifyError(err error) *ConnError {
	if err == nil {
		return &ConnError{Raw: "unknown error"}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Ice connection") || strings.Contains(msg, "ICE"):
		return &ConnError{Kind: ErrICEFailed, Err: err}
	case strings.Contains(msg, "unsupported") || strings.Contains(msg, "not supported"):
		return &ConnError{Kind: ErrWebRTCUnsupported, Err: err}
	default:
		return &ConnError{Raw: msg, Err: err}
	}
}
