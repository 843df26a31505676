// Package peer implements the Connection Controller: it owns exactly one
// WebRTC peer connection, drives it through non-trickle offer/answer/ICE
// handshake, and surfaces ConnectionState/SignalStatus. See SPEC_FULL.md §4.2.
package peer

// ConnectionState is the controller's current phase, per spec.md §3.
type ConnectionState string

const (
	StateIdle           ConnectionState = "idle"
	StateWaitingForPeer ConnectionState = "waitingForPeer"
	StateConnecting     ConnectionState = "connecting"
	StateConnected      ConnectionState = "connected"
	StateDisconnected    ConnectionState = "disconnected"
	StateError          ConnectionState = "error"
)

// SignalStatus distinguishes "generating signal" from "waiting for the
// peer to paste theirs back", independent of ConnectionState.
type SignalStatus string

const (
	SignalNone      SignalStatus = ""
	SignalGathering SignalStatus = "gathering"
	SignalReady     SignalStatus = "ready"
)

// ErrorKind is one of the i18n-able error keys spec.md §6 defines; anything
// else is carried as a raw message.
type ErrorKind string

const (
	ErrConnectionTimeout  ErrorKind = "connectionTimeout"
	ErrICEFailed          ErrorKind = "iceFailed"
	ErrWebRTCUnsupported  ErrorKind = "webrtcUnsupported"
	ErrInvalidOffer       ErrorKind = "invalidOffer"
	ErrInvalidOfferFormat ErrorKind = "invalidOfferFormat"
	ErrInvalidAnswer      ErrorKind = "invalidAnswer"
	ErrInvalidAnswerFormat ErrorKind = "invalidAnswerFormat"
)

// ConnError pairs a classified (or raw) error key with the underlying cause.
type ConnError struct {
	Kind ErrorKind
	Raw  string
	Err  error
}

func (e *ConnError) Error() string {
	if e.Kind != "" {
		return string(e.Kind)
	}
	return e.Raw
}

func (e *ConnError) Unwrap() error { return e.Err }

// Key returns the i18n-able key if classified, else the raw message.
func (e *ConnError) Key() string {
	if e.Kind != "" {
		return string(e.Kind)
	}
	return e.Raw
}
