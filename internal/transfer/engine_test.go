package transfer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dropwire-io/dropwire/internal/files"
	pion "github.com/pion/webrtc/v4"
)

// fakeChannel is an in-memory Channel recording every sent frame, used to
// drive the send loop without a real data channel.
type fakeChannel struct {
	mu           sync.Mutex
	textFrames   []string
	binaryFrames [][]byte
	buffered     uint64
	lowThreshold uint64
	lowCallback  func()
	sendErr      error
}

func (f *fakeChannel) SendText(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.textFrames = append(f.textFrames, s)
	return nil
}

func (f *fakeChannel) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.binaryFrames = append(f.binaryFrames, cp)
	return nil
}

func (f *fakeChannel) BufferedAmount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffered
}

func (f *fakeChannel) SetBufferedAmountLowThreshold(threshold uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lowThreshold = threshold
}

func (f *fakeChannel) OnBufferedAmountLow(cb func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lowCallback = cb
}

func (f *fakeChannel) setBuffered(n uint64) {
	f.mu.Lock()
	f.buffered = n
	cb := f.lowCallback
	f.mu.Unlock()
	if n < f.lowThreshold && cb != nil {
		cb()
	}
}

func writeTempFile(t *testing.T, name string, size int) *files.SourceHandle {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	data := make([]byte, size)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	info, err := files.ValidateFiles([]string{path})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	handle, err := files.OpenSource(info[0])
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	t.Cleanup(func() { handle.Close() })
	return handle
}

func alwaysAlive() bool { return true }

func waitForStatus(t *testing.T, ch <-chan *FileTransfer, id string, status Status, timeout time.Duration) *FileTransfer {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ft := <-ch:
			if ft.ID == id && ft.Status == status {
				return ft
			}
		case <-deadline:
			t.Fatalf("timed out waiting for transfer %s to reach status %s", id, status)
		}
	}
}

func TestSendSmallFileProducesOneChunk(t *testing.T) {
	ch := &fakeChannel{}
	engine := New(ch, alwaysAlive)

	handle := writeTempFile(t, "a.bin", 1024)
	created := engine.SendFiles([]*files.SourceHandle{handle})
	if len(created) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(created))
	}

	final := waitForStatus(t, engine.Events.TransferUpdated, created[0].ID, StatusCompleted, 2*time.Second)
	if final.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", final.Progress)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.textFrames) != 2 {
		t.Fatalf("expected file-meta + file-complete (2 text frames), got %d", len(ch.textFrames))
	}
	if len(ch.binaryFrames) != 1 {
		t.Fatalf("expected 1 binary chunk for a 1024 byte file, got %d", len(ch.binaryFrames))
	}
	if len(ch.binaryFrames[0]) != 1024 {
		t.Fatalf("expected chunk of 1024 bytes, got %d", len(ch.binaryFrames[0]))
	}

	var meta FileMetaMsg
	if err := json.Unmarshal([]byte(ch.textFrames[0]), &meta); err != nil {
		t.Fatalf("unmarshal meta: %v", err)
	}
	if meta.TotalChunks != 1 || meta.Size != 1024 {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestSend96KiBFileProducesTwoChunksOfExpectedSizes(t *testing.T) {
	ch := &fakeChannel{}
	engine := New(ch, alwaysAlive)

	handle := writeTempFile(t, "big.bin", 98304)
	created := engine.SendFiles([]*files.SourceHandle{handle})

	waitForStatus(t, engine.Events.TransferUpdated, created[0].ID, StatusCompleted, 2*time.Second)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.binaryFrames) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(ch.binaryFrames))
	}
	if len(ch.binaryFrames[0]) != 65536 {
		t.Fatalf("expected first chunk 65536 bytes, got %d", len(ch.binaryFrames[0]))
	}
	if len(ch.binaryFrames[1]) != 32768 {
		t.Fatalf("expected second chunk 32768 bytes, got %d", len(ch.binaryFrames[1]))
	}
}

func TestTwoFilesSentBackToBackPreserveOrder(t *testing.T) {
	ch := &fakeChannel{}
	engine := New(ch, alwaysAlive)

	a := writeTempFile(t, "a.bin", 10)
	b := writeTempFile(t, "b.bin", 10)
	created := engine.SendFiles([]*files.SourceHandle{a, b})

	waitForStatus(t, engine.Events.TransferUpdated, created[0].ID, StatusCompleted, 2*time.Second)
	waitForStatus(t, engine.Events.TransferUpdated, created[1].ID, StatusCompleted, 2*time.Second)

	ch.mu.Lock()
	defer ch.mu.Unlock()

	// meta_a, complete_a, meta_b, complete_b
	if len(ch.textFrames) != 4 {
		t.Fatalf("expected 4 text control frames, got %d", len(ch.textFrames))
	}

	var metaA, completeA, metaB, completeB envelope
	json.Unmarshal([]byte(ch.textFrames[0]), &metaA)
	json.Unmarshal([]byte(ch.textFrames[1]), &completeA)
	json.Unmarshal([]byte(ch.textFrames[2]), &metaB)
	json.Unmarshal([]byte(ch.textFrames[3]), &completeB)

	if metaA.Type != MessageTypeFileMeta || completeA.Type != MessageTypeFileComplete {
		t.Fatalf("unexpected order for file A: %v %v", metaA, completeA)
	}
	if metaB.Type != MessageTypeFileMeta || completeB.Type != MessageTypeFileComplete {
		t.Fatalf("unexpected order for file B: %v %v", metaB, completeB)
	}
}

func TestCancelQueuedFileEmitsNoWireTraffic(t *testing.T) {
	ch := &fakeChannel{}
	engine := New(ch, alwaysAlive)

	// Keep the loop busy with a large first file so B is still queued
	// ("still transferring A") when it is cancelled.
	a := writeTempFile(t, "a.bin", 10*1024*1024)
	b := writeTempFile(t, "b.bin", 1024)

	created := engine.SendFiles([]*files.SourceHandle{a})
	bCreated := engine.SendFiles([]*files.SourceHandle{b})

	if err := engine.CancelTransfer(bCreated[0].ID); err != nil {
		t.Fatalf("cancel queued: %v", err)
	}

	waitForStatus(t, engine.Events.TransferUpdated, bCreated[0].ID, StatusCancelled, 2*time.Second)
	waitForStatus(t, engine.Events.TransferUpdated, created[0].ID, StatusCompleted, 5*time.Second)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	for _, frame := range ch.textFrames {
		var env envelope
		json.Unmarshal([]byte(frame), &env)
		var meta FileMetaMsg
		json.Unmarshal([]byte(frame), &meta)
		if meta.Name == "b.bin" {
			t.Fatalf("expected no wire traffic for cancelled queued file, got %s", frame)
		}
	}
}

func TestCancelInFlightEmitsExactlyOneFileCancel(t *testing.T) {
	ch := &fakeChannel{}
	engine := New(ch, alwaysAlive)

	a := writeTempFile(t, "a.bin", 10*1024*1024)
	created := engine.SendFiles([]*files.SourceHandle{a})
	id := created[0].ID

	// Wait until some progress has been made, then cancel mid-transfer.
	for {
		ft := <-engine.Events.TransferUpdated
		if ft.ID == id && ft.Progress > 0 {
			break
		}
	}
	if err := engine.CancelTransfer(id); err != nil {
		t.Fatalf("cancel in-flight: %v", err)
	}

	waitForStatus(t, engine.Events.TransferUpdated, id, StatusCancelled, 2*time.Second)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	cancelCount := 0
	for _, frame := range ch.textFrames {
		var cancel FileCancelMsg
		json.Unmarshal([]byte(frame), &cancel)
		if cancel.Type == MessageTypeFileCancel && cancel.ID == id {
			cancelCount++
		}
	}
	if cancelCount != 1 {
		t.Fatalf("expected exactly one file-cancel for %s, got %d", id, cancelCount)
	}
}

func TestReceiveFileMetaChunkComplete(t *testing.T) {
	ch := &fakeChannel{}
	engine := New(ch, alwaysAlive)

	meta := newFileMeta("rid-1", "incoming.bin", 1024, 1)
	metaBytes, _ := json.Marshal(meta)
	engine.HandleInbound(pion.DataChannelMessage{IsString: true, Data: metaBytes})

	chunk := make([]byte, 1024)
	engine.HandleInbound(pion.DataChannelMessage{IsString: false, Data: chunk})

	completeBytes, _ := json.Marshal(newFileComplete("rid-1"))
	engine.HandleInbound(pion.DataChannelMessage{IsString: true, Data: completeBytes})

	final := waitForStatus(t, engine.Events.TransferUpdated, "rid-1", StatusCompleted, time.Second)
	if final.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", final.Progress)
	}

	select {
	case rf := <-engine.Events.ReceiveCompleted:
		if rf.ID != "rid-1" || len(rf.Data) != 1024 {
			t.Fatalf("unexpected received file: %+v", rf)
		}
	case <-time.After(time.Second):
		t.Fatal("expected ReceiveCompleted event")
	}
}

func TestReceiveFileCancelMidFileDiscardsAssembly(t *testing.T) {
	ch := &fakeChannel{}
	engine := New(ch, alwaysAlive)

	meta := newFileMeta("rid-2", "incoming.bin", 2048, 2)
	metaBytes, _ := json.Marshal(meta)
	engine.HandleInbound(pion.DataChannelMessage{IsString: true, Data: metaBytes})
	<-engine.Events.TransferUpdated

	engine.HandleInbound(pion.DataChannelMessage{IsString: false, Data: make([]byte, 1024)})
	<-engine.Events.TransferUpdated

	cancelBytes, _ := json.Marshal(newFileCancel("rid-2"))
	engine.HandleInbound(pion.DataChannelMessage{IsString: true, Data: cancelBytes})

	final := waitForStatus(t, engine.Events.TransferUpdated, "rid-2", StatusCancelled, time.Second)
	if final.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", final.Status)
	}

	engine.mu.Lock()
	assembly := engine.assembly
	engine.mu.Unlock()
	if assembly != nil {
		t.Fatal("expected assembly to be discarded on cancel")
	}
}

func TestBackpressureYieldsWithoutError(t *testing.T) {
	ch := &fakeChannel{buffered: HighWaterMark + 1}
	engine := New(ch, alwaysAlive)

	done := make(chan struct{})
	go func() {
		_ = engine.waitForDrain()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("waitForDrain should not return while buffer stays above high-water mark")
	case <-time.After(100 * time.Millisecond):
	}

	ch.setBuffered(0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitForDrain should return once buffer drains")
	}
}

func TestProgressMonotonicAndCompletionInvariant(t *testing.T) {
	ch := &fakeChannel{}
	engine := New(ch, alwaysAlive)

	handle := writeTempFile(t, "mono.bin", 3*ChunkSize+10)
	created := engine.SendFiles([]*files.SourceHandle{handle})

	last := -1
	for {
		ft := <-engine.Events.TransferUpdated
		if ft.ID != created[0].ID {
			continue
		}
		if ft.Progress < last {
			t.Fatalf("progress decreased: %d -> %d", last, ft.Progress)
		}
		last = ft.Progress
		if ft.Status == StatusCompleted {
			if ft.Progress != 100 {
				t.Fatalf("completed transfer must have progress 100, got %d", ft.Progress)
			}
			break
		}
		if ft.Progress == 100 {
			t.Fatalf("transfer published progress 100 while status is %q, not completed", ft.Status)
		}
	}
}

// TestReceiveProgressNeverHits100BeforeCompleted guards against the
// transient where the last chunk's progress publish (receivedBytes==size)
// races ahead of the file-complete transition and reports Progress=100
// while Status is still transferring, violating spec.md §3/§8's
// "progress = 100 iff status = completed" invariant.
func TestReceiveProgressNeverHits100BeforeCompleted(t *testing.T) {
	ch := &fakeChannel{}
	engine := New(ch, alwaysAlive)

	meta := newFileMeta("rid-progress", "incoming.bin", 1024, 1)
	metaBytes, _ := json.Marshal(meta)
	engine.HandleInbound(pion.DataChannelMessage{IsString: true, Data: metaBytes})
	<-engine.Events.TransferUpdated

	engine.HandleInbound(pion.DataChannelMessage{IsString: false, Data: make([]byte, 1024)})

	select {
	case ft := <-engine.Events.TransferUpdated:
		if ft.ID != "rid-progress" {
			t.Fatalf("unexpected transfer id %s", ft.ID)
		}
		if ft.Status != StatusCompleted && ft.Progress == 100 {
			t.Fatalf("expected progress < 100 while status %q, got %d", ft.Status, ft.Progress)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a progress publish after the final chunk")
	}

	completeBytes, _ := json.Marshal(newFileComplete("rid-progress"))
	engine.HandleInbound(pion.DataChannelMessage{IsString: true, Data: completeBytes})

	final := waitForStatus(t, engine.Events.TransferUpdated, "rid-progress", StatusCompleted, time.Second)
	if final.Progress != 100 {
		t.Fatalf("expected progress 100 on completion, got %d", final.Progress)
	}
}
