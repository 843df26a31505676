package transfer

import (
	"time"

	"github.com/dropwire-io/dropwire/internal/files"
)

// Direction is which way a FileTransfer moves relative to this process.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Status is a FileTransfer's lifecycle phase, per spec.md §3.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusTransferring Status = "transferring"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusError        Status = "error"
)

// FileTransfer mirrors spec.md §3's FileTransfer record. Invariants: Progress
// == 100 iff Status == Completed; once Status reaches a terminal value, no
// field but EndTime may change; Progress is monotonically non-decreasing
// while Status == Transferring.
type FileTransfer struct {
	ID        string
	Name      string
	Size      int64
	Direction Direction
	Status    Status
	Progress  int
	Speed     float64
	ETA       *float64
	StartTime int64
	EndTime   int64
}

// clone returns a value copy safe to hand to observers without sharing the
// engine's internal pointer.
func (f *FileTransfer) clone() *FileTransfer {
	cp := *f
	if f.ETA != nil {
		eta := *f.ETA
		cp.ETA = &eta
	}
	return &cp
}

// ChatMessage mirrors spec.md §3's ChatMessage record. Append-only.
type ChatMessage struct {
	ID        string
	Text      string
	Sender    string // "me" or "peer"
	Timestamp int64
}

const (
	SenderMe   = "me"
	SenderPeer = "peer"
)

// sendQueueEntry is spec.md §3's SendQueueEntry: an id paired with a
// random-access source handle. Entries are dequeued FIFO.
type sendQueueEntry struct {
	id     string
	source *files.SourceHandle
}

// incomingAssembly is spec.md §3's IncomingAssembly: at most one exists at a
// time, created on file-meta and destroyed on file-complete/file-cancel.
type incomingAssembly struct {
	id            string
	name          string
	size          int64
	totalChunks   int
	chunks        [][]byte
	receivedBytes int64
	startTime     time.Time
	lastUpdate    time.Time
}
