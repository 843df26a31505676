// Package signalcodec compresses and decompresses SignalBlob values (SDP
// offers/answers) into a compact base64 string short enough to ship via QR
// code or clipboard. See SPEC_FULL.md §4.1.
package signalcodec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Kind identifies whether a SignalBlob carries an offer or an answer.
type Kind string

const (
	KindOffer  Kind = "offer"
	KindAnswer Kind = "answer"
)

// SignalBlob is the opaque structure exchanged out-of-band between peers.
type SignalBlob struct {
	Kind Kind
	SDP  string
}

// wireBlob is the shortened-key JSON form actually compressed and encoded.
type wireBlob struct {
	Type string `json:"t"`
	SDP  string `json:"s"`
}

// ErrDecode is returned when a signal string cannot be reconstructed into a
// SignalBlob, wrapping the underlying base64/inflate/JSON failure.
var ErrDecode = errors.New("signalcodec: decode failed")

// Encode runs the full pipeline: SDP minification, key shortening, JSON
// serialization, DEFLATE, base64. Encode is deterministic for a given input.
func Encode(blob SignalBlob) (string, error) {
	wire := wireBlob{
		Type: string(blob.Kind),
		SDP:  minifySDP(blob.SDP),
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("signalcodec: marshal: %w", err)
	}

	var compressed bytes.Buffer
	writer, err := flate.NewWriter(&compressed, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("signalcodec: flate writer: %w", err)
	}
	if _, err := writer.Write(payload); err != nil {
		return "", fmt.Errorf("signalcodec: flate write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("signalcodec: flate close: %w", err)
	}

	return base64.StdEncoding.EncodeToString(compressed.Bytes()), nil
}

// Decode reverses Encode: base64 decode, inflate, JSON parse, key restore,
// CRLF restoration. On failure it attempts a single legacy fallback (plain
// base64-of-JSON, no compression) before returning ErrDecode.
func Decode(s string) (SignalBlob, error) {
	blob, err := decodeCompressed(s)
	if err == nil {
		return blob, nil
	}

	blob, fallbackErr := decodeLegacy(s)
	if fallbackErr == nil {
		return blob, nil
	}

	return SignalBlob{}, fmt.Errorf("%w: %v", ErrDecode, err)
}

func decodeCompressed(s string) (SignalBlob, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return SignalBlob{}, fmt.Errorf("base64: %w", err)
	}

	reader := flate.NewReader(bytes.NewReader(raw))
	defer reader.Close()

	inflated, err := io.ReadAll(reader)
	if err != nil {
		return SignalBlob{}, fmt.Errorf("inflate: %w", err)
	}

	return blobFromJSON(inflated)
}

func decodeLegacy(s string) (SignalBlob, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return SignalBlob{}, fmt.Errorf("base64: %w", err)
	}
	return blobFromJSON(raw)
}

func blobFromJSON(raw []byte) (SignalBlob, error) {
	var wire wireBlob
	if err := json.Unmarshal(raw, &wire); err != nil {
		return SignalBlob{}, fmt.Errorf("json: %w", err)
	}

	return SignalBlob{
		Kind: Kind(wire.Type),
		SDP:  restoreCRLF(wire.SDP),
	}, nil
}
