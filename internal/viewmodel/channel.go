package viewmodel

import pion "github.com/pion/webrtc/v4"

// dcChannel adapts *pion.DataChannel to transfer.Channel. The method set
// already matches structurally; the wrapper exists so the dependency on
// pion's concrete type stays isolated to this file.
type dcChannel struct {
	dc *pion.DataChannel
}

func (c dcChannel) SendText(s string) error                      { return c.dc.SendText(s) }
func (c dcChannel) Send(data []byte) error                       { return c.dc.Send(data) }
func (c dcChannel) BufferedAmount() uint64                       { return c.dc.BufferedAmount() }
func (c dcChannel) SetBufferedAmountLowThreshold(threshold uint64) { c.dc.SetBufferedAmountLowThreshold(threshold) }
func (c dcChannel) OnBufferedAmountLow(f func())                 { c.dc.OnBufferedAmountLow(f) }
