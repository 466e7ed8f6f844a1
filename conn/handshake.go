package conn

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/coremq/broker/encoding"
	"github.com/coremq/broker/fanout"
	"github.com/coremq/broker/hook"
	"github.com/coremq/broker/session"
)

const (
	version5   = byte(encoding.ProtocolVersion50)
	version311 = byte(encoding.ProtocolVersion311)
)

func keepAliveDuration(seconds uint16) time.Duration {
	return time.Duration(seconds) * time.Second
}

// readFrame reads one complete MQTT control packet's fixed header and body
// off the connection. The body is buffered in full before decoding so a
// CONNECT's protocol-version byte can be inspected before choosing which
// packet parser (5.0 vs 3.1.1) to hand the body to.
func (c *Conn) readFrame() (*encoding.FixedHeader, []byte, error) {
	fh, err := encoding.ParseFixedHeader(c.netConn)
	if err != nil {
		return nil, nil, err
	}
	body := make([]byte, fh.RemainingLength)
	if fh.RemainingLength > 0 {
		if _, err := io.ReadFull(c.netConn, body); err != nil {
			return nil, nil, err
		}
	}
	return fh, body, nil
}

// protocolVersionOf peeks the version byte out of a CONNECT packet's body:
// a 2-byte length prefix and "MQTT" always precede it (MQTT-3.1.2-1).
func protocolVersionOf(body []byte) (encoding.ProtocolVersion, error) {
	if len(body) < 7 {
		return 0, ErrProtocolViolation
	}
	if body[0] != 0 || body[1] != 4 || string(body[2:6]) != "MQTT" {
		return 0, ErrProtocolViolation
	}
	return encoding.ProtocolVersion(body[6]), nil
}

// handleConnect reads the first packet, which MUST be CONNECT
// (MQTT-3.1.0-1), resolves the session through the broker (including
// takeover of a live duplicate client ID), and writes CONNACK.
func (c *Conn) handleConnect(ctx context.Context) error {
	fh, body, err := c.readFrame()
	if err != nil {
		return err
	}
	if fh.Type != encoding.CONNECT {
		return ErrProtocolViolation
	}

	version, err := protocolVersionOf(body)
	if err != nil {
		return err
	}

	switch version {
	case encoding.ProtocolVersion50:
		return c.handleConnectV5(ctx, fh, body)
	case encoding.ProtocolVersion311:
		return c.handleConnectV311(ctx, fh, body)
	default:
		return ErrUnsupportedVersion
	}
}

func (c *Conn) handleConnectV5(ctx context.Context, fh *encoding.FixedHeader, body []byte) error {
	pkt, err := encoding.ParseConnectPacket(bytes.NewReader(body), fh)
	if err != nil {
		return err
	}

	clientID := pkt.ClientID
	if clientID == "" {
		if !pkt.CleanStart {
			return c.sendConnackV5(encoding.ReasonClientIdentifierNotValid, false)
		}
		clientID, err = c.broker.GenerateClientID(ctx)
		if err != nil {
			return err
		}
	}

	hookClient := &hook.Client{ID: clientID, Username: pkt.Username, CleanStart: pkt.CleanStart, ProtocolVersion: version5, KeepAlive: pkt.KeepAlive}
	hookConnect := &hook.ConnectPacket{ProtocolName: pkt.ProtocolName, ProtocolVersion: version5, CleanStart: pkt.CleanStart, KeepAlive: pkt.KeepAlive, ClientID: clientID, Username: pkt.Username, Password: pkt.Password}
	if pkt.WillFlag {
		hookConnect.Will = &hook.WillMessage{Topic: pkt.WillTopic, Payload: pkt.WillPayload, QoS: byte(pkt.WillQoS), Retain: pkt.WillRetain}
	}

	if !c.broker.Hooks().OnConnectAuthenticate(hookClient, hookConnect) {
		_ = c.sendConnackV5(encoding.ReasonNotAuthorized, false)
		return ErrAuthFailed
	}

	expiryInterval := uint32(0)
	if prop := pkt.Properties.GetProperty(encoding.PropSessionExpiryInterval); prop != nil {
		if n, ok := prop.Value.(uint32); ok {
			expiryInterval = n
		}
	}

	sess, present, err := c.broker.Connect(ctx, clientID, pkt.CleanStart, expiryInterval, version5, c)
	if err != nil {
		_ = c.sendConnackV5(encoding.ReasonServerUnavailable, false)
		return err
	}

	if pkt.WillFlag {
		willDelay := uint32(0)
		if prop := pkt.WillProperties.GetProperty(encoding.PropWillDelayInterval); prop != nil {
			if n, ok := prop.Value.(uint32); ok {
				willDelay = n
			}
		}
		sess.SetWillMessage(&session.WillMessage{Topic: pkt.WillTopic, Payload: pkt.WillPayload, QoS: byte(pkt.WillQoS), Retain: pkt.WillRetain}, willDelay)
	}

	c.markConnected(clientID, pkt.Username, version5, sess, keepAliveDuration(pkt.KeepAlive))
	c.replayOffline()

	return c.sendConnackV5(encoding.ReasonSuccess, present)
}

func (c *Conn) sendConnackV5(reason encoding.ReasonCode, present bool) error {
	pkt := &encoding.ConnackPacket{
		FixedHeader:    encoding.FixedHeader{Type: encoding.CONNACK},
		SessionPresent: present && reason == encoding.ReasonSuccess,
		ReasonCode:     reason,
	}
	var buf bytes.Buffer
	if err := pkt.Encode(&buf); err != nil {
		return err
	}
	if _, err := c.netConn.Write(buf.Bytes()); err != nil {
		return err
	}
	if reason != encoding.ReasonSuccess {
		return fmt.Errorf("conn: connect rejected: %s", reason)
	}
	return nil
}

func (c *Conn) handleConnectV311(ctx context.Context, fh *encoding.FixedHeader, body []byte) error {
	pkt, err := encoding.ParseConnectPacket311(bytes.NewReader(body), fh)
	if err != nil {
		return err
	}

	clientID := pkt.ClientID
	if clientID == "" {
		if !pkt.CleanSession {
			return c.sendConnack311(2, false) // identifier rejected
		}
		clientID, err = c.broker.GenerateClientID(ctx)
		if err != nil {
			return err
		}
	}

	hookClient := &hook.Client{ID: clientID, Username: pkt.Username, CleanStart: pkt.CleanSession, ProtocolVersion: version311, KeepAlive: pkt.KeepAlive}
	hookConnect := &hook.ConnectPacket{ProtocolName: pkt.ProtocolName, ProtocolVersion: version311, CleanStart: pkt.CleanSession, KeepAlive: pkt.KeepAlive, ClientID: clientID, Username: pkt.Username, Password: pkt.Password}
	if pkt.WillFlag {
		hookConnect.Will = &hook.WillMessage{Topic: pkt.WillTopic, Payload: pkt.WillPayload, QoS: byte(pkt.WillQoS), Retain: pkt.WillRetain}
	}

	if !c.broker.Hooks().OnConnectAuthenticate(hookClient, hookConnect) {
		_ = c.sendConnack311(5, false) // not authorized
		return ErrAuthFailed
	}

	sess, present, err := c.broker.Connect(ctx, clientID, pkt.CleanSession, 0, version311, c)
	if err != nil {
		_ = c.sendConnack311(3, false) // server unavailable
		return err
	}

	if pkt.WillFlag {
		sess.SetWillMessage(&session.WillMessage{Topic: pkt.WillTopic, Payload: pkt.WillPayload, QoS: byte(pkt.WillQoS), Retain: pkt.WillRetain}, 0)
	}

	c.markConnected(clientID, pkt.Username, version311, sess, keepAliveDuration(pkt.KeepAlive))
	c.replayOffline()

	return c.sendConnack311(0, present)
}

func (c *Conn) sendConnack311(returnCode byte, present bool) error {
	pkt := &encoding.ConnackPacket311{
		FixedHeader:    encoding.FixedHeader{Type: encoding.CONNACK},
		SessionPresent: present && returnCode == 0,
		ReturnCode:     returnCode,
	}
	var buf bytes.Buffer
	if err := pkt.Encode(&buf); err != nil {
		return err
	}
	if _, err := c.netConn.Write(buf.Bytes()); err != nil {
		return err
	}
	if returnCode != 0 {
		return fmt.Errorf("conn: connect rejected: return code %d", returnCode)
	}
	return nil
}

// replayOffline re-delivers messages queued while a persistent session was
// disconnected, now that a live Deliverer is attached again.
func (c *Conn) replayOffline() {
	pending := c.drainOffline()
	for _, msg := range pending {
		cp, err := fanout.Build(msg, c.ProtocolVersion(), msg.QoS)
		if err != nil {
			c.logger.Error("conn: offline replay build failed", "topic", msg.Topic, "error", err)
			continue
		}
		packetID := uint16(0)
		if msg.QoS > encoding.QoS0 {
			packetID = c.NextPacketID()
		}
		c.Deliver(cp.Patch(msg.DUP, msg.Retain, packetID), msg.QoS, packetID)
	}
}
