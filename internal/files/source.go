package files

import (
	"fmt"
	"os"
)

// SourceHandle provides random-access reads over a file's bytes, so the
// send loop's chunk reads and back-pressure retries never need to buffer
// the whole file. See spec.md §9 "ownership of file bytes".
type SourceHandle struct {
	info FileInfo
	file *os.File
}

// OpenSource opens info.Path for random-access reads.
func OpenSource(info FileInfo) (*SourceHandle, error) {
	f, err := os.Open(info.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", info.Path, err)
	}
	return &SourceHandle{info: info, file: f}, nil
}

// Name returns the display name of the underlying file.
func (h *SourceHandle) Name() string { return h.info.Name }

// Size returns the total size of the underlying file in bytes.
func (h *SourceHandle) Size() int64 { return h.info.Size }

// Slice reads bytes in [offset, end) from the underlying file.
func (h *SourceHandle) Slice(offset, end int64) ([]byte, error) {
	if end <= offset {
		return nil, nil
	}
	buf := make([]byte, end-offset)
	n, err := h.file.ReadAt(buf, offset)
	if n > 0 {
		buf = buf[:n]
	}
	if err != nil && n == 0 {
		return nil, fmt.Errorf("read %s at %d: %w", h.info.Name, offset, err)
	}
	return buf, nil
}

// Close releases the underlying file descriptor.
func (h *SourceHandle) Close() error {
	return h.file.Close()
}
