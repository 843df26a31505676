package transfer

import "errors"

var (
	ErrChannelClosed   = errors.New("transfer: channel closed")
	ErrPeerNotAlive    = errors.New("transfer: peer not alive")
	ErrUnknownTransfer = errors.New("transfer: unknown transfer id")
	ErrBackpressure    = errors.New("transfer: timed out waiting for buffer to drain")
)
