package conn

import "errors"

var (
	// ErrClosed is returned by Conn methods invoked after the connection
	// has started closing.
	ErrClosed = errors.New("conn: closed")
	// ErrProtocolViolation is returned when a client's first packet isn't
	// CONNECT, sends a second CONNECT, or otherwise breaks the ordering
	// MQTT-3.1.0-1/MQTT-3.1.0-2 require.
	ErrProtocolViolation = errors.New("conn: protocol violation")
	// ErrUnsupportedVersion is returned when a CONNECT names a protocol
	// version byte other than 4 (3.1.1) or 5 (5.0).
	ErrUnsupportedVersion = errors.New("conn: unsupported protocol version")
	// ErrAuthFailed is returned when OnConnectAuthenticate rejects a
	// CONNECT.
	ErrAuthFailed = errors.New("conn: authentication failed")
)
