// Package conn implements the per-client connection state machine: reading
// and decoding packets off a network.Connection, driving CONNECT/SUBSCRIBE/
// PUBLISH admission through a broker.Broker, and writing encoded packets
// back out through a bounded, ordered outbox.
package conn

import "sync/atomic"

// State is the lifecycle stage of a single client connection.
type State int32

const (
	// AwaitingConnect is the state from accept until the first CONNECT
	// packet has been read and validated.
	AwaitingConnect State = iota
	// SendingConnAck covers session resolution (incl. takeover) and the
	// CONNACK write; a second CONNECT arriving in this window is a
	// protocol violation (MQTT-3.1.0-2).
	SendingConnAck
	// Connected is the steady state: PUBLISH/SUBSCRIBE/UNSUBSCRIBE/PINGREQ
	// are accepted and fanned-out messages are written to the outbox.
	Connected
	// Closing means a DISCONNECT was sent or received, or the keep-alive/
	// read loop detected a fatal error; new sends are rejected and the
	// egress goroutine exits without writing frames left in its outbox.
	Closing
	// Closed means both goroutines have exited and the underlying
	// network.Connection is closed.
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingConnect:
		return "awaiting_connect"
	case SendingConnAck:
		return "sending_connack"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type stateBox struct{ v atomic.Int32 }

func (b *stateBox) load() State       { return State(b.v.Load()) }
func (b *stateBox) store(s State)     { b.v.Store(int32(s)) }
func (b *stateBox) cas(old, new State) bool {
	return b.v.CompareAndSwap(int32(old), int32(new))
}
