// Package transfer implements the chunked transfer protocol: queueing,
// sending, receiving, back-pressure, progress/ETA, and per-file
// cancellation over a single ordered, reliable data channel. See
// SPEC_FULL.md §4.3, §5.
package transfer

import "time"

const (
	// ChunkSize is the maximum binary chunk payload, per spec.md §4.3.
	ChunkSize = 65536

	// HighWaterMark is the outbound buffered-bytes threshold above which
	// the send loop pauses to let the channel drain.
	HighWaterMark = 1048576

	// ProgressThrottle bounds how often progress/speed/eta are recomputed.
	ProgressThrottle = 80 * time.Millisecond

	// InterFilePause separates one file's completion from the next
	// file-meta being sent.
	InterFilePause = 200 * time.Millisecond

	// BackpressurePoll is the sleep interval while waiting for the
	// channel's buffered amount to drain below HighWaterMark.
	BackpressurePoll = 20 * time.Millisecond

	// BackpressureTimeout bounds how long the send loop will wait for the
	// channel to drain before giving up on the transfer; a peer that is
	// still alive but whose buffer never drains is as stuck as a dead one.
	BackpressureTimeout = 30 * time.Second
)

// Wire message type discriminators, per spec.md §4.3's protocol table.
const (
	MessageTypeFileMeta     = "file-meta"
	MessageTypeFileComplete = "file-complete"
	MessageTypeFileCancel   = "file-cancel"
	MessageTypeChat         = "chat"
)
