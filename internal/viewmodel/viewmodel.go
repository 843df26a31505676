// Package viewmodel exposes a reactive state surface and imperative
// commands for a UI collaborator, aggregating the Connection Controller
// and Transfer Engine into the single view spec.md §4.4 describes.
package viewmodel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dropwire-io/dropwire/internal/config"
	"github.com/dropwire-io/dropwire/internal/files"
	"github.com/dropwire-io/dropwire/internal/peer"
	"github.com/dropwire-io/dropwire/internal/transfer"
)

// WakeLocker is an optional host-supplied hook for acquiring/releasing a
// screen wake lock during transfer activity, per spec.md §5. Acquisition
// failure must be non-fatal; dropwire never depends on it succeeding.
type WakeLocker interface {
	Acquire() error
	Release()
}

type noopWakeLock struct{}

func (noopWakeLock) Acquire() error { return nil }
func (noopWakeLock) Release()       {}

// Snapshot is the reactive state exposed to the UI collaborator.
type Snapshot struct {
	ConnectionState peer.ConnectionState
	SignalStatus    peer.SignalStatus
	LocalSignal     string
	Error           string
	Transfers       []*transfer.FileTransfer
	Messages        []transfer.ChatMessage
}

// Session is the View-Model Adapter: it owns a Connection Controller and,
// once connected, a Transfer Engine. Peer and engine events are applied by
// event-pump goroutines; commands such as SendMessage, ClearError and
// Disconnect mutate state directly from the caller's goroutine. Every
// mutation of the shared fields happens under mu.
type Session struct {
	cfg        *config.Config
	wakeLock   WakeLocker
	onSnapshot func(Snapshot)
	onReceived func(transfer.ReceivedFile)

	mu         sync.Mutex
	ctrl       *peer.Controller
	engine     *transfer.Engine
	localSig   string
	signalStat peer.SignalStatus
	lastErr    string
	messages   []transfer.ChatMessage
	transfers  map[string]*transfer.FileTransfer
	order      []string
	wakeHeld   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Session in the idle state. onSnapshot, if non-nil, is
// invoked after every reactive-field change (the UI collaborator's render
// hook); it must return quickly, as it runs on the session's event loop.
// onReceived, if non-nil, is invoked once per fully-assembled inbound file
// (spec.md §9's "CLI collaborator writes the assembled blob to disk"); it
// too runs on the event loop and must not block.
func New(cfg *config.Config, wakeLock WakeLocker, onSnapshot func(Snapshot), onReceived func(transfer.ReceivedFile)) *Session {
	if wakeLock == nil {
		wakeLock = noopWakeLock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:        cfg,
		wakeLock:   wakeLock,
		onSnapshot: onSnapshot,
		onReceived: onReceived,
		transfers:  make(map[string]*transfer.FileTransfer),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.ctrl = peer.New(cfg)
	go s.pumpPeerEvents(s.ctrl, ctx)
	return s
}

// Snapshot returns the current reactive state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	transfers := make([]*transfer.FileTransfer, 0, len(s.order))
	for _, id := range s.order {
		transfers = append(transfers, s.transfers[id])
	}
	messages := make([]transfer.ChatMessage, len(s.messages))
	copy(messages, s.messages)

	return Snapshot{
		ConnectionState: s.ctrl.State(),
		SignalStatus:    s.signalStat,
		LocalSignal:     s.localSig,
		Error:           s.lastErr,
		Transfers:       transfers,
		Messages:        messages,
	}
}

func (s *Session) emit() {
	if s.onSnapshot == nil {
		return
	}
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.onSnapshot(snap)
}

// CreateOffer begins a handshake as the initiator. See spec.md §4.4.
func (s *Session) CreateOffer() error {
	ctrl, ctx := s.activeController()
	return ctrl.CreateOffer(ctx)
}

// AcceptOffer begins a handshake as the responder. See spec.md §4.4.
func (s *Session) AcceptOffer(encodedOffer string) error {
	ctrl, ctx := s.activeController()
	return ctrl.AcceptOffer(ctx, encodedOffer)
}

// AcceptAnswer completes an initiator handshake. See spec.md §4.4.
func (s *Session) AcceptAnswer(encodedAnswer string) error {
	ctrl, ctx := s.activeController()
	return ctrl.AcceptAnswer(ctx, encodedAnswer)
}

func (s *Session) activeController() (*peer.Controller, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl, s.ctx
}

// SendFiles validates and enqueues local paths for sending. Requires the
// Transfer Engine to exist, i.e. the data channel must already be open.
func (s *Session) SendFiles(paths []string) error {
	infos, err := files.ValidateFiles(paths)
	if err != nil {
		return err
	}

	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		return fmt.Errorf("viewmodel: no active data channel")
	}

	handles := make([]*files.SourceHandle, 0, len(infos))
	for _, info := range infos {
		h, err := files.OpenSource(info)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}

	engine.SendFiles(handles)
	return nil
}

// CancelTransfer cancels a transfer by id, in either direction.
func (s *Session) CancelTransfer(id string) error {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		return transfer.ErrUnknownTransfer
	}
	return engine.CancelTransfer(id)
}

// SendMessage sends a chat message to the peer and appends it locally.
func (s *Session) SendMessage(text string) error {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		return fmt.Errorf("viewmodel: no active data channel")
	}

	msg, err := engine.SendMessage(text, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.emit()
	return nil
}

// ClearError clears the last error without changing ConnectionState.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
	s.emit()
}

// Disconnect is a hard reset: destroys the peer, clears queues, messages,
// and transfers, and returns to idle. Idempotent. ResetConnection is its
// alias per spec.md §4.4.
func (s *Session) Disconnect() {
	s.cancel()

	s.mu.Lock()
	s.ctrl.Disconnect()
	s.engine = nil
	s.transfers = make(map[string]*transfer.FileTransfer)
	s.order = nil
	s.messages = nil
	s.localSig = ""
	s.signalStat = peer.SignalNone
	s.lastErr = ""
	heldWakeLock := s.wakeHeld
	s.wakeHeld = false
	s.mu.Unlock()

	if heldWakeLock {
		s.wakeLock.Release()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.ctx = ctx
	s.cancel = cancel
	s.ctrl = peer.New(s.cfg)
	newCtrl := s.ctrl
	s.mu.Unlock()
	go s.pumpPeerEvents(newCtrl, ctx)

	s.emit()
}

// ResetConnection is an alias of Disconnect, per spec.md §4.4.
func (s *Session) ResetConnection() { s.Disconnect() }
