package transfer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// runSendLoop is the single cooperative send loop described in spec.md §4.3
// and §5. Re-entry is prevented by the isSending guard in SendFiles; this
// goroutine runs until the queue drains, then clears the guard.
func (e *Engine) runSendLoop() {
	defer func() {
		e.mu.Lock()
		e.isSending = false
		e.mu.Unlock()
	}()

	for {
		entry, ok := e.dequeue()
		if !ok {
			return
		}
		if e.alive != nil && !e.alive() {
			e.mu.Lock()
			ft := e.transfers[entry.id]
			e.mu.Unlock()
			if ft != nil && ft.Status != StatusCancelled {
				e.failTransfer(ft, ErrPeerNotAlive)
			}
			continue
		}

		e.sendOneFile(entry)
		time.Sleep(InterFilePause)
	}
}

func (e *Engine) dequeue() (*sendQueueEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return nil, false
	}
	entry := e.queue[0]
	e.queue = e.queue[1:]
	return entry, true
}

func (e *Engine) sendOneFile(entry *sendQueueEntry) {
	e.mu.Lock()
	ft := e.transfers[entry.id]
	if ft.Status != StatusQueued {
		// Cancelled between dequeue and here; a terminal status never changes.
		e.mu.Unlock()
		return
	}
	ft.Status = StatusTransferring
	ft.StartTime = nowMillis()
	startWall := time.Now()
	e.mu.Unlock()
	e.publish(ft)

	totalChunks := int((entry.source.Size() + ChunkSize - 1) / ChunkSize)
	if entry.source.Size() == 0 {
		totalChunks = 0
	}

	meta := newFileMeta(entry.id, entry.source.Name(), entry.source.Size(), totalChunks)
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		e.failTransfer(ft, err)
		return
	}
	if err := e.channel.SendText(string(metaBytes)); err != nil {
		e.failTransfer(ft, e.classifySendErr(err))
		return
	}

	var sentBytes int64
	lastUpdate := startWall

	for i := 0; i < totalChunks; i++ {
		if e.isCancelled(entry.id) {
			e.sendCancel(entry.id)
			e.clearCancelled(entry.id)
			e.mu.Lock()
			e.markTerminal(ft, StatusCancelled)
			e.mu.Unlock()
			e.publish(ft)
			return
		}

		if e.alive != nil && !e.alive() {
			e.failTransfer(ft, ErrPeerNotAlive)
			return
		}

		offset := int64(i) * ChunkSize
		end := offset + ChunkSize
		if end > entry.source.Size() {
			end = entry.source.Size()
		}

		chunk, err := entry.source.Slice(offset, end)
		if err != nil {
			e.failTransfer(ft, err)
			return
		}

		if err := e.waitForDrain(); err != nil {
			e.failTransfer(ft, err)
			return
		}

		if err := e.channel.Send(chunk); err != nil {
			e.failTransfer(ft, e.classifySendErr(err))
			return
		}

		sentBytes += int64(len(chunk))

		isFinal := i == totalChunks-1
		if time.Since(lastUpdate) > ProgressThrottle || isFinal {
			lastUpdate = time.Now()
			e.updateSendProgress(ft, sentBytes, startWall)
		}
	}

	completeBytes, err := json.Marshal(newFileComplete(entry.id))
	if err != nil {
		e.failTransfer(ft, err)
		return
	}
	if err := e.channel.SendText(string(completeBytes)); err != nil {
		e.failTransfer(ft, e.classifySendErr(err))
		return
	}

	e.mu.Lock()
	e.markTerminal(ft, StatusCompleted)
	e.mu.Unlock()
	e.publish(ft)
}

func (e *Engine) updateSendProgress(ft *FileTransfer, sentBytes int64, startWall time.Time) {
	elapsed := time.Since(startWall).Seconds()

	e.mu.Lock()
	ft.Progress = computeInFlightProgress(sentBytes, ft.Size)
	ft.Speed = computeSpeed(sentBytes, elapsed)
	remaining := ft.Size - sentBytes
	if eta, ok := computeETA(remaining, ft.Speed); ok {
		ft.ETA = &eta
	} else {
		ft.ETA = nil
	}
	e.mu.Unlock()

	e.publish(ft)
}

// waitForDrain implements spec.md §4.3's back-pressure: while buffered
// bytes exceed HighWaterMark, yield for BackpressurePoll before retrying.
// Per spec.md §5, the peer's liveness is re-checked after every suspension;
// a peer whose buffer never drains within BackpressureTimeout is treated as
// stuck, the same as one that failed outright.
func (e *Engine) waitForDrain() error {
	deadline := time.Now().Add(BackpressureTimeout)
	for e.channel.BufferedAmount() > HighWaterMark {
		if e.alive != nil && !e.alive() {
			return ErrPeerNotAlive
		}
		if time.Now().After(deadline) {
			return ErrBackpressure
		}
		time.Sleep(BackpressurePoll)
	}
	return nil
}

// classifySendErr maps a raw channel send error to ErrChannelClosed when
// the underlying peer is already gone, so callers can distinguish "the
// channel died out from under us" from a transient per-call send error.
func (e *Engine) classifySendErr(err error) error {
	if err == nil {
		return nil
	}
	if e.alive != nil && !e.alive() {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return err
}

func (e *Engine) isCancelled(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cancelled[id]
	return ok
}

func (e *Engine) clearCancelled(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancelled, id)
}

func (e *Engine) failTransfer(ft *FileTransfer, cause error) {
	e.mu.Lock()
	e.markTerminal(ft, StatusError)
	e.mu.Unlock()
	e.publish(ft)
	slog.Warn("transfer: send failed", "id", ft.ID, "err", cause)
}
