package transfer

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
)

// HandleInbound dispatches one data-channel message per spec.md §4.3/§9:
// JSON control messages (file-meta, file-complete, file-cancel, chat) are
// distinguished from binary chunks via looksLikeJSON, never by relying on
// DataChannelMessage.IsString alone (a binary frame can still carry UTF-8
// JSON text per spec.md's disambiguation rule).
func (e *Engine) HandleInbound(msg pion.DataChannelMessage) {
	if msg.IsString || looksLikeJSON(msg.Data) {
		if env, ok := decodeEnvelope(msg.Data); ok {
			e.dispatchControl(env.Type, msg.Data)
			return
		}
	}
	e.handleChunk(msg.Data)
}

func (e *Engine) dispatchControl(msgType string, data []byte) {
	switch msgType {
	case MessageTypeFileMeta:
		var meta FileMetaMsg
		if err := json.Unmarshal(data, &meta); err != nil {
			slog.Debug("transfer: bad file-meta", "err", err)
			return
		}
		e.handleFileMeta(meta)

	case MessageTypeFileComplete:
		var complete FileCompleteMsg
		_ = json.Unmarshal(data, &complete)
		e.handleFileComplete(complete)

	case MessageTypeFileCancel:
		var cancel FileCancelMsg
		if err := json.Unmarshal(data, &cancel); err != nil {
			slog.Debug("transfer: bad file-cancel", "err", err)
			return
		}
		e.handleFileCancel(cancel)

	case MessageTypeChat:
		var chat ChatMsg
		if err := json.Unmarshal(data, &chat); err != nil {
			slog.Debug("transfer: bad chat", "err", err)
			return
		}
		e.handleChat(chat)

	default:
		slog.Debug("transfer: unknown control message type", "type", msgType)
	}
}

// handleFileMeta creates the IncomingAssembly and a receive-side
// FileTransfer record. Per spec.md §5, a new file-meta arriving while a
// prior assembly is still unfinished truncates the prior transfer with an
// error — the sender is required never to interleave files.
func (e *Engine) handleFileMeta(meta FileMetaMsg) {
	e.mu.Lock()

	if e.assembly != nil {
		if prior, ok := e.transfers[e.assembly.id]; ok && prior.Status == StatusTransferring {
			e.markTerminal(prior, StatusError)
			e.mu.Unlock()
			e.publish(prior)
			e.mu.Lock()
		}
	}

	e.assembly = &incomingAssembly{
		id:          meta.ID,
		name:        meta.Name,
		size:        meta.Size,
		totalChunks: meta.TotalChunks,
		startTime:   time.Now(),
	}

	ft := &FileTransfer{
		ID:        meta.ID,
		Name:      meta.Name,
		Size:      meta.Size,
		Direction: DirectionReceive,
		Status:    StatusTransferring,
		StartTime: nowMillis(),
	}
	e.transfers[meta.ID] = ft
	e.order = append(e.order, meta.ID)
	e.mu.Unlock()

	e.publish(ft)
}

func (e *Engine) handleChunk(data []byte) {
	e.mu.Lock()
	assembly := e.assembly
	if assembly == nil {
		e.mu.Unlock()
		slog.Debug("transfer: chunk received with no assembly in progress")
		return
	}

	assembly.chunks = append(assembly.chunks, data)
	assembly.receivedBytes += int64(len(data))

	ft := e.transfers[assembly.id]
	isFinal := ft != nil && assembly.receivedBytes >= ft.Size
	throttled := time.Since(assembly.lastUpdate) <= ProgressThrottle && !isFinal
	if throttled || ft == nil {
		e.mu.Unlock()
		return
	}
	assembly.lastUpdate = time.Now()

	elapsed := time.Since(assembly.startTime).Seconds()
	received := assembly.receivedBytes
	ft.Progress = computeInFlightProgress(received, ft.Size)
	ft.Speed = computeSpeed(received, elapsed)
	remaining := ft.Size - received
	if eta, ok := computeETA(remaining, ft.Speed); ok {
		ft.ETA = &eta
	} else {
		ft.ETA = nil
	}
	e.mu.Unlock()

	e.publish(ft)
}

// handleFileComplete assembles the stored chunks and hands them to the
// view-model as a completed receive. Per spec.md §9's open question, the
// id on the wire may be absent; the receiver always finalizes whichever
// assembly is currently in progress.
func (e *Engine) handleFileComplete(msg FileCompleteMsg) {
	e.mu.Lock()
	assembly := e.assembly
	if assembly == nil {
		e.mu.Unlock()
		slog.Debug("transfer: file-complete received with no assembly in progress")
		return
	}
	e.assembly = nil

	ft := e.transfers[assembly.id]
	if ft == nil {
		e.mu.Unlock()
		return
	}
	e.markTerminal(ft, StatusCompleted)
	e.mu.Unlock()

	e.publish(ft)

	total := make([]byte, 0, assembly.receivedBytes)
	for _, chunk := range assembly.chunks {
		total = append(total, chunk...)
	}

	e.Events.ReceiveCompleted <- ReceivedFile{
		ID:   assembly.id,
		Name: assembly.name,
		Data: total,
	}
}

// handleFileCancel marks the matching transfer cancelled and discards the
// assembly if it matches, in either direction.
func (e *Engine) handleFileCancel(msg FileCancelMsg) {
	e.mu.Lock()
	ft, ok := e.transfers[msg.ID]
	if !ok {
		e.mu.Unlock()
		return
	}

	if e.assembly != nil && e.assembly.id == msg.ID {
		e.assembly = nil
	}
	e.markTerminal(ft, StatusCancelled)
	e.mu.Unlock()

	e.publish(ft)
}

func (e *Engine) handleChat(msg ChatMsg) {
	chatMsg := ChatMessage{
		ID:        uuid.NewString(),
		Text:      msg.Text,
		Sender:    SenderPeer,
		Timestamp: msg.Timestamp,
	}
	e.Events.MessageReceived <- chatMsg
}
