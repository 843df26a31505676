package transfer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dropwire-io/dropwire/internal/files"
	"github.com/google/uuid"
)

// Channel is the subset of a WebRTC data channel the Transfer Engine needs.
// *pion/webrtc/v4.DataChannel satisfies this interface structurally, and
// tests supply a fake in-memory implementation (see engine_test.go).
type Channel interface {
	SendText(s string) error
	Send(data []byte) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(threshold uint64)
	OnBufferedAmountLow(f func())
}

// ReceivedFile is handed to the view-model once a receive-side transfer
// finishes assembling, so the UI collaborator can offer to save it.
type ReceivedFile struct {
	ID   string
	Name string
	Data []byte
}

// Events is the set of asynchronous notifications the Transfer Engine
// emits for the View-Model Adapter to aggregate.
type Events struct {
	TransferUpdated  chan *FileTransfer
	MessageReceived  chan ChatMessage
	ReceiveCompleted chan ReceivedFile
}

func newEvents() *Events {
	return &Events{
		TransferUpdated:  make(chan *FileTransfer, 256),
		MessageReceived:  make(chan ChatMessage, 64),
		ReceiveCompleted: make(chan ReceivedFile, 8),
	}
}

// Engine owns the send queue, the in-progress receive assembly, and the
// cancelled-id set, per spec.md §3's ownership rules. It never touches the
// peer handle directly; the Connection Controller owns that.
type Engine struct {
	mu sync.Mutex

	channel Channel
	alive   func() bool

	queue     []*sendQueueEntry
	transfers map[string]*FileTransfer
	order     []string
	cancelled map[string]struct{}
	assembly  *incomingAssembly
	isSending bool

	Events *Events
}

// New constructs an Engine bound to channel, with alive reporting whether
// the underlying peer connection is still usable.
func New(channel Channel, alive func() bool) *Engine {
	return &Engine{
		channel:   channel,
		alive:     alive,
		transfers: make(map[string]*FileTransfer),
		cancelled: make(map[string]struct{}),
		Events:    newEvents(),
	}
}

// Transfers returns a snapshot of every FileTransfer in insertion order.
func (e *Engine) Transfers() []*FileTransfer {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*FileTransfer, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.transfers[id].clone())
	}
	return out
}

// SendFiles enqueues each source for sending and starts the send loop if it
// is not already running (re-entrant calls simply grow the queue, per
// spec.md §5's isSending guard).
func (e *Engine) SendFiles(sources []*files.SourceHandle) []*FileTransfer {
	e.mu.Lock()

	created := make([]*FileTransfer, 0, len(sources))
	for _, src := range sources {
		id := uuid.NewString()
		ft := &FileTransfer{
			ID:        id,
			Name:      src.Name(),
			Size:      src.Size(),
			Direction: DirectionSend,
			Status:    StatusQueued,
		}
		e.transfers[id] = ft
		e.order = append(e.order, id)
		e.queue = append(e.queue, &sendQueueEntry{id: id, source: src})
		created = append(created, ft.clone())
	}

	shouldStart := !e.isSending && len(e.queue) > 0
	if shouldStart {
		e.isSending = true
	}
	e.mu.Unlock()

	for _, ft := range created {
		e.publish(ft)
	}

	if shouldStart {
		go e.runSendLoop()
	}

	return created
}

// SendMessage emits a chat control message on the channel and returns the
// local ChatMessage record (sender=me) for the caller to append.
func (e *Engine) SendMessage(text string, nowMillis int64) (ChatMessage, error) {
	msg := newChat(text, nowMillis)
	data, err := json.Marshal(msg)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("transfer: marshal chat: %w", err)
	}
	if err := e.channel.SendText(string(data)); err != nil {
		return ChatMessage{}, fmt.Errorf("transfer: send chat: %w", err)
	}

	return ChatMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    SenderMe,
		Timestamp: nowMillis,
	}, nil
}

// CancelTransfer implements spec.md §4.3's cancellation semantics for every
// case: queued send, transferring send, transferring receive.
func (e *Engine) CancelTransfer(id string) error {
	e.mu.Lock()

	ft, ok := e.transfers[id]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownTransfer
	}

	switch {
	case ft.Status == StatusQueued:
		e.removeFromQueue(id)
		e.markTerminal(ft, StatusCancelled)
		e.mu.Unlock()
		e.publish(ft)
		return nil

	case ft.Status == StatusTransferring && ft.Direction == DirectionSend:
		e.cancelled[id] = struct{}{}
		e.mu.Unlock()
		return nil

	case ft.Status == StatusTransferring && ft.Direction == DirectionReceive:
		e.cancelled[id] = struct{}{}
		if err := e.sendCancel(id); err != nil {
			slog.Debug("transfer: failed to send file-cancel", "id", id, "err", err)
		}
		if e.assembly != nil && e.assembly.id == id {
			e.assembly = nil
		}
		e.markTerminal(ft, StatusCancelled)
		e.mu.Unlock()
		e.publish(ft)
		return nil

	default:
		e.mu.Unlock()
		return nil
	}
}

func (e *Engine) removeFromQueue(id string) {
	filtered := e.queue[:0]
	for _, entry := range e.queue {
		if entry.id != id {
			filtered = append(filtered, entry)
		}
	}
	e.queue = filtered
}

// markTerminal transitions a transfer to a terminal status. Must be called
// with e.mu held.
func (e *Engine) markTerminal(ft *FileTransfer, status Status) {
	ft.Status = status
	if status == StatusCompleted {
		ft.Progress = 100
	}
	ft.EndTime = nowMillis()
}

func (e *Engine) publish(ft *FileTransfer) {
	e.Events.TransferUpdated <- ft.clone()
}

func (e *Engine) sendCancel(id string) error {
	msg := newFileCancel(id)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return e.channel.SendText(string(data))
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
