package transfer

import (
	"bytes"
	"encoding/json"
)

// envelope extracts just the discriminator field, used to route a decoded
// JSON control message before unmarshaling its full payload.
type envelope struct {
	Type string `json:"type"`
}

// FileMetaMsg announces an incoming file before its chunks.
type FileMetaMsg struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	TotalChunks int    `json:"totalChunks"`
}

// FileCompleteMsg marks the end of a file's chunk stream. ID is optional on
// the wire (spec.md §9 open question); the receiver always resolves it
// against whichever assembly is currently in progress.
type FileCompleteMsg struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// FileCancelMsg cancels a transfer in either direction.
type FileCancelMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ChatMsg is a short text message sent in either direction.
type ChatMsg struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func newFileMeta(id, name string, size int64, totalChunks int) FileMetaMsg {
	return FileMetaMsg{Type: MessageTypeFileMeta, ID: id, Name: name, Size: size, TotalChunks: totalChunks}
}

func newFileComplete(id string) FileCompleteMsg {
	return FileCompleteMsg{Type: MessageTypeFileComplete, ID: id}
}

func newFileCancel(id string) FileCancelMsg {
	return FileCancelMsg{Type: MessageTypeFileCancel, ID: id}
}

func newChat(text string, timestampMillis int64) ChatMsg {
	return ChatMsg{Type: MessageTypeChat, Text: text, Timestamp: timestampMillis}
}

// looksLikeJSON is the byte-buffer half of spec.md §4.3's disambiguation
// rule: it reports whether data, with surrounding whitespace trimmed, starts
// with '{' and ends with '}'. It does not check UTF-8 validity. HandleInbound
// attempts JSON for every text message and for binary ones that pass this.
func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) >= 2 && trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}'
}

// decodeEnvelope attempts to parse data as a control message envelope. It
// returns ok=false if the data is not valid JSON with a "type" field, in
// which case the caller must treat the payload as a binary chunk.
func decodeEnvelope(data []byte) (envelope, bool) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil || e.Type == "" {
		return envelope{}, false
	}
	return e, true
}
