package viewmodel

import (
	"context"
	"log/slog"

	"github.com/dropwire-io/dropwire/internal/peer"
	"github.com/dropwire-io/dropwire/internal/transfer"
)

// pumpPeerEvents drains one Controller's event channels for the lifetime of
// a single handshake attempt (until Disconnect rebuilds the controller).
// Together with pumpEngineEvents it applies every peer and engine event to
// the shared reactive state under s.mu; the Session's commands also mutate
// that state, under the same lock. ctx is captured once at call time
// (not re-read from s.ctx) so a Disconnect that swaps in a fresh context
// for the next handshake can't redirect this goroutine's exit signal.
func (s *Session) pumpPeerEvents(ctrl *peer.Controller, ctx context.Context) {
	for {
		select {
		case <-ctrl.Events.StateChanged:
			s.emit()

		case sig := <-ctrl.Events.LocalSignal:
			s.mu.Lock()
			s.localSig = sig
			s.mu.Unlock()
			s.emit()

		case status := <-ctrl.Events.SignalStatusChanged:
			s.mu.Lock()
			s.signalStat = status
			s.mu.Unlock()
			s.emit()

		case err := <-ctrl.Events.Failed:
			s.mu.Lock()
			s.lastErr = err.Key()
			s.mu.Unlock()
			s.emit()

		case dc := <-ctrl.Events.DataChannelOpen:
			engine := transfer.New(dcChannel{dc}, func() bool {
				s.mu.Lock()
				current := s.ctrl
				s.mu.Unlock()
				return current == ctrl && ctrl.State() == peer.StateConnected
			})
			s.mu.Lock()
			s.engine = engine
			s.mu.Unlock()
			go s.pumpEngineEvents(engine, ctx)

		case msg, ok := <-ctrl.Events.Inbound:
			if !ok {
				return
			}
			s.mu.Lock()
			engine := s.engine
			s.mu.Unlock()
			if engine != nil {
				engine.HandleInbound(msg)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) pumpEngineEvents(engine *transfer.Engine, ctx context.Context) {
	for {
		select {
		case ft := <-engine.Events.TransferUpdated:
			s.mu.Lock()
			if _, ok := s.transfers[ft.ID]; !ok {
				s.order = append(s.order, ft.ID)
			}
			s.transfers[ft.ID] = ft
			s.mu.Unlock()
			s.syncWakeLock()
			s.emit()

		case msg := <-engine.Events.MessageReceived:
			s.mu.Lock()
			s.messages = append(s.messages, msg)
			s.mu.Unlock()
			s.emit()

		case rf := <-engine.Events.ReceiveCompleted:
			// Persisting the bytes to disk is the UI collaborator's
			// responsibility, per spec.md §1's scope split; hand it off
			// via onReceived rather than dropping the payload here.
			if s.onReceived != nil {
				s.onReceived(rf)
			}
			s.emit()

		case <-ctx.Done():
			return
		}
	}
}

// syncWakeLock implements spec.md §5's wake-lock policy: held while any
// transfer (inbound or outbound) is queued or in flight, released as soon
// as none are — covering both the send loop draining and an incoming
// assembly finishing or being discarded. Acquire failure is non-fatal.
func (s *Session) syncWakeLock() {
	s.mu.Lock()
	active := false
	for _, ft := range s.transfers {
		if ft.Status == transfer.StatusQueued || ft.Status == transfer.StatusTransferring {
			active = true
			break
		}
	}
	held := s.wakeHeld
	if active == held {
		s.mu.Unlock()
		return
	}
	s.wakeHeld = active
	s.mu.Unlock()

	if active {
		if err := s.wakeLock.Acquire(); err != nil {
			slog.Debug("viewmodel: wake lock acquire failed", "err", err)
		}
		return
	}
	s.wakeLock.Release()
}
