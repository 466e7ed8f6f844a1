package conn

import (
	"bytes"
	"context"
	"io"

	"github.com/coremq/broker/encoding"
	"github.com/coremq/broker/hook"
	"github.com/coremq/broker/topic"
	"github.com/coremq/broker/types/message"
)

// recoverPanic stops a single connection's malformed packet from taking
// down every other connection sharing the process: one client's crash
// becomes a closed connection and a logged error, not a broker-wide
// panic.
func (c *Conn) recoverPanic() {
	if r := recover(); r != nil {
		c.logger.Error("conn: recovered from panic", "client_id", c.ClientID(), "panic", r)
	}
}

// onInboundPublish is the qos.Handler's publish callback: it fires once per
// inbound PUBLISH (after QoS1/2 dedup), forwarding into the broker's
// fan-out path under this connection's own client ID.
func (c *Conn) onInboundPublish(msg *message.Message) error {
	return c.broker.Publish(context.Background(), msg, c.ClientID())
}

// Serve runs one connection's full lifecycle: CONNECT admission, then the
// steady-state packet loop, until the peer disconnects or a protocol
// violation ends the connection. The caller is expected to have already
// spawned egressLoop in its own goroutine.
func (c *Conn) Serve(ctx context.Context) {
	defer c.Close()
	defer c.recoverPanic()

	c.state.store(SendingConnAck)
	if err := c.handleConnect(ctx); err != nil {
		c.logger.Debug("conn: connect failed", "error", err)
		return
	}
	c.state.store(Connected)

	if c.keepAliveDur > 0 {
		c.startKeepAlive()
	}

	for {
		fh, body, err := c.readFrame()
		if err != nil {
			c.teardown(ctx, true)
			return
		}
		c.onPacketReceived()

		if err := c.dispatch(ctx, fh, body); err != nil {
			if err == errGracefulDisconnect {
				c.teardown(ctx, false)
			} else {
				c.logger.Debug("conn: dispatch failed", "client_id", c.ClientID(), "error", err)
				c.teardown(ctx, true)
			}
			return
		}
	}
}

// errGracefulDisconnect signals a client-initiated DISCONNECT, which
// suppresses will publication per MQTT-3.1.2-8.
var errGracefulDisconnect = errProtocolSentinel("graceful disconnect")

type errProtocolSentinel string

func (e errProtocolSentinel) Error() string { return string(e) }

func (c *Conn) dispatch(ctx context.Context, fh *encoding.FixedHeader, body []byte) error {
	switch fh.Type {
	case encoding.PUBLISH:
		return c.handlePublish(fh, body)
	case encoding.PUBACK:
		return c.handlePuback(fh, body)
	case encoding.PUBREC:
		return c.handlePubrec(fh, body)
	case encoding.PUBREL:
		return c.handlePubrel(fh, body)
	case encoding.PUBCOMP:
		return c.handlePubcomp(fh, body)
	case encoding.SUBSCRIBE:
		return c.handleSubscribe(ctx, fh, body)
	case encoding.UNSUBSCRIBE:
		return c.handleUnsubscribe(fh, body)
	case encoding.PINGREQ:
		return c.writePingresp()
	case encoding.DISCONNECT:
		return errGracefulDisconnect
	default:
		return ErrProtocolViolation
	}
}

func (c *Conn) handlePublish(fh *encoding.FixedHeader, body []byte) error {
	qos := encoding.QoS((fh.Flags >> 1) & 0x03)
	dup := fh.Flags&0x08 != 0
	retain := fh.Flags&0x01 != 0

	if c.isV5() {
		pkt, err := encoding.ParsePublishPacket(bytes.NewReader(body), fh)
		if err != nil {
			return err
		}
		if !c.aclAllows(pkt.TopicName, hook.AccessTypeWrite) {
			return ErrProtocolViolation
		}
		msg := message.NewMessage(pkt.PacketID, pkt.TopicName, pkt.Payload, qos, retain, propsToMessageMap(pkt.Properties))
		msg.DUP = dup
		return c.qos.HandlePublish(msg)
	}

	pkt, err := encoding.ParsePublishPacket311(bytes.NewReader(body), fh)
	if err != nil {
		return err
	}
	if !c.aclAllows(pkt.TopicName, hook.AccessTypeWrite) {
		return ErrProtocolViolation
	}
	msg := message.NewMessage(pkt.PacketID, pkt.TopicName, pkt.Payload, qos, retain, nil)
	msg.DUP = dup
	return c.qos.HandlePublish(msg)
}

// aclAllows consults the broker's hook.Manager for a per-topic access
// decision under this connection's authenticated username. Brokers with no
// ACLHook registered accept everything, since Manager.OnACLCheck defaults
// to true when no hook provides OnACLCheck.
func (c *Conn) aclAllows(topicName string, access hook.AccessType) bool {
	return c.broker.Hooks().OnACLCheck(&hook.Client{ID: c.ClientID(), Username: c.Username()}, topicName, access)
}

func (c *Conn) handlePuback(fh *encoding.FixedHeader, body []byte) error {
	var packetID uint16
	if c.isV5() {
		pkt, err := encoding.ParsePubackPacket(bytes.NewReader(body), fh)
		if err != nil {
			return err
		}
		packetID = pkt.PacketID
	} else {
		pkt, err := encoding.ParsePubackPacket311(bytes.NewReader(body), fh)
		if err != nil {
			return err
		}
		packetID = pkt.PacketID
	}
	if sess := c.session(); sess != nil {
		sess.RemoveOutgoing(packetID)
	}
	return nil
}

// handlePubrec processes a client's acknowledgement of step 1 of a QoS2
// message the broker sent it. It replies PUBREL directly rather than
// through qos.Handler, whose PublishQoS2/HandlePubrec pair is reserved for
// messages this connection self-originates.
func (c *Conn) handlePubrec(fh *encoding.FixedHeader, body []byte) error {
	var packetID uint16
	if c.isV5() {
		pkt, err := encoding.ParsePubrecPacket(bytes.NewReader(body), fh)
		if err != nil {
			return err
		}
		packetID = pkt.PacketID
	} else {
		pkt, err := encoding.ParsePubrecPacket311(bytes.NewReader(body), fh)
		if err != nil {
			return err
		}
		packetID = pkt.PacketID
	}
	if sess := c.session(); sess != nil {
		sess.AdvanceToPubComp(packetID)
	}
	return c.writePubrel(packetID)
}

func (c *Conn) handlePubrel(fh *encoding.FixedHeader, body []byte) error {
	var packetID uint16
	if c.isV5() {
		pkt, err := encoding.ParsePubrelPacket(bytes.NewReader(body), fh)
		if err != nil {
			return err
		}
		packetID = pkt.PacketID
	} else {
		pkt, err := encoding.ParsePubrelPacket311(bytes.NewReader(body), fh)
		if err != nil {
			return err
		}
		packetID = pkt.PacketID
	}
	return c.qos.HandlePubrel(packetID)
}

func (c *Conn) handlePubcomp(fh *encoding.FixedHeader, body []byte) error {
	var packetID uint16
	if c.isV5() {
		pkt, err := encoding.ParsePubcompPacket(bytes.NewReader(body), fh)
		if err != nil {
			return err
		}
		packetID = pkt.PacketID
	} else {
		pkt, err := encoding.ParsePubcompPacket311(bytes.NewReader(body), fh)
		if err != nil {
			return err
		}
		packetID = pkt.PacketID
	}
	if sess := c.session(); sess != nil {
		sess.RemoveOutgoing(packetID)
	}
	return nil
}

func (c *Conn) handleSubscribe(ctx context.Context, fh *encoding.FixedHeader, body []byte) error {
	sess := c.session()
	clientID := c.ClientID()
	if sess == nil || clientID == "" {
		return ErrProtocolViolation
	}

	if c.isV5() {
		pkt, err := encoding.ParseSubscribePacket(bytes.NewReader(body), fh)
		if err != nil {
			return err
		}
		reasonCodes := make([]encoding.ReasonCode, len(pkt.Subscriptions))
		for i, s := range pkt.Subscriptions {
			sub := &topic.Subscription{
				ClientID:               clientID,
				TopicFilter:            s.TopicFilter,
				QoS:                    byte(s.QoS),
				NoLocal:                s.NoLocal,
				RetainAsPublished:      s.RetainAsPublished,
				RetainHandling:         s.RetainHandling,
				SubscriptionIdentifier: s.SubscriptionIdentifier,
			}
			if !c.aclAllows(s.TopicFilter, hook.AccessTypeRead) {
				reasonCodes[i] = encoding.ReasonNotAuthorized
				continue
			}
			if err := c.broker.Subscribe(ctx, sess, sub); err != nil {
				reasonCodes[i] = encoding.ReasonUnspecifiedError
				continue
			}
			reasonCodes[i] = grantedReasonCode(s.QoS)
		}
		return c.writeFrameOf(&encoding.SubackPacket{FixedHeader: encoding.FixedHeader{Type: encoding.SUBACK}, PacketID: pkt.PacketID, ReasonCodes: reasonCodes})
	}

	pkt, err := encoding.ParseSubscribePacket311(bytes.NewReader(body), fh)
	if err != nil {
		return err
	}
	returnCodes := make([]byte, len(pkt.Subscriptions))
	for i, s := range pkt.Subscriptions {
		sub := &topic.Subscription{ClientID: clientID, TopicFilter: s.TopicFilter, QoS: byte(s.QoS)}
		if !c.aclAllows(s.TopicFilter, hook.AccessTypeRead) {
			returnCodes[i] = 0x80 // failure
			continue
		}
		if err := c.broker.Subscribe(ctx, sess, sub); err != nil {
			returnCodes[i] = 0x80 // failure
			continue
		}
		returnCodes[i] = byte(s.QoS)
	}
	return c.writeFrameOf(&encoding.SubackPacket311{FixedHeader: encoding.FixedHeader{Type: encoding.SUBACK}, PacketID: pkt.PacketID, ReturnCodes: returnCodes})
}

func grantedReasonCode(qos encoding.QoS) encoding.ReasonCode {
	switch qos {
	case encoding.QoS1:
		return encoding.ReasonGrantedQoS1
	case encoding.QoS2:
		return encoding.ReasonGrantedQoS2
	default:
		return encoding.ReasonGrantedQoS0
	}
}

func (c *Conn) handleUnsubscribe(fh *encoding.FixedHeader, body []byte) error {
	sess := c.session()
	clientID := c.ClientID()
	if sess == nil || clientID == "" {
		return ErrProtocolViolation
	}

	if c.isV5() {
		pkt, err := encoding.ParseUnsubscribePacket(bytes.NewReader(body), fh)
		if err != nil {
			return err
		}
		reasonCodes := make([]encoding.ReasonCode, len(pkt.TopicFilters))
		for i, filter := range pkt.TopicFilters {
			if err := c.broker.Unsubscribe(sess, clientID, filter); err != nil {
				reasonCodes[i] = encoding.ReasonUnspecifiedError
				continue
			}
			reasonCodes[i] = encoding.ReasonSuccess
		}
		return c.writeFrameOf(&encoding.UnsubackPacket{FixedHeader: encoding.FixedHeader{Type: encoding.UNSUBACK}, PacketID: pkt.PacketID, ReasonCodes: reasonCodes})
	}

	pkt, err := encoding.ParseUnsubscribePacket311(bytes.NewReader(body), fh)
	if err != nil {
		return err
	}
	for _, filter := range pkt.TopicFilters {
		_ = c.broker.Unsubscribe(sess, clientID, filter)
	}
	return c.writeFrameOf(&encoding.UnsubackPacket311{FixedHeader: encoding.FixedHeader{Type: encoding.UNSUBACK}, PacketID: pkt.PacketID})
}

type encodable interface {
	Encode(w io.Writer) error
}

func (c *Conn) writeFrameOf(pkt encodable) error {
	var buf bytes.Buffer
	if err := pkt.Encode(&buf); err != nil {
		return err
	}
	return c.writeFrame(&buf)
}
