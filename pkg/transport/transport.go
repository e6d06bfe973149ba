// Package transport implements C6, the TransportMux: the
// transport-agnostic boundary between a concrete wire carrier (UDP, TCP,
// Serial, QUIC, WebSocket) and the Dispatcher.
package transport

import (
	"github.com/xrce-go/agent/pkg/agent"
	"github.com/xrce-go/agent/pkg/wire"
)

// Dispatcher is the subset of *agent.Agent every transport drives.
// Transports depend on this narrow interface so that swapping in a fake
// dispatcher for tests never requires a real Agent.
type Dispatcher interface {
	OnMessage(endpoint agent.Endpoint, raw []byte) error
}

// MaxFrameSize bounds a single inbound frame for every length-prefixed
// transport (TCP, QUIC); anything larger than this is a hard decode
// error rather than a short read being silently retried forever.
const MaxFrameSize = wire.MaxMessageSize
