package conn

import (
	"bytes"

	"github.com/coremq/broker/encoding"
)

// propsToMessageMap projects an encoding.Properties onto the
// string-keyed map message.Message/fanout.buildPropertiesFromMessage
// share, so a PUBLISH a client sends round-trips through the cached-publish
// path identically to how it would be re-encoded.
func propsToMessageMap(props encoding.Properties) map[string]interface{} {
	if len(props.Properties) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(props.Properties))
	for _, p := range props.Properties {
		switch p.ID {
		case encoding.PropPayloadFormatIndicator:
			out["PayloadFormatIndicator"] = p.Value
		case encoding.PropMessageExpiryInterval:
			out["MessageExpiryInterval"] = p.Value
		case encoding.PropContentType:
			out["ContentType"] = p.Value
		case encoding.PropResponseTopic:
			out["ResponseTopic"] = p.Value
		case encoding.PropCorrelationData:
			out["CorrelationData"] = p.Value
		case encoding.PropUserProperty:
			if pair, ok := p.Value.(encoding.UTF8Pair); ok {
				existing, _ := out["UserProperties"].([]encoding.UTF8Pair)
				out["UserProperties"] = append(existing, pair)
			}
		}
	}
	return out
}

func (c *Conn) isV5() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.protocolVersion == version5
}

func (c *Conn) writeFrame(buf *bytes.Buffer) error {
	_, err := c.netConn.Write(buf.Bytes())
	return err
}

func (c *Conn) writePuback(packetID uint16) error {
	var buf bytes.Buffer
	if c.isV5() {
		pkt := &encoding.PubackPacket{FixedHeader: encoding.FixedHeader{Type: encoding.PUBACK}, PacketID: packetID, ReasonCode: encoding.ReasonSuccess}
		if err := pkt.Encode(&buf); err != nil {
			return err
		}
	} else {
		pkt := &encoding.PubackPacket311{FixedHeader: encoding.FixedHeader{Type: encoding.PUBACK}, PacketID: packetID}
		if err := pkt.Encode(&buf); err != nil {
			return err
		}
	}
	return c.writeFrame(&buf)
}

func (c *Conn) writePubrec(packetID uint16) error {
	var buf bytes.Buffer
	if c.isV5() {
		pkt := &encoding.PubrecPacket{FixedHeader: encoding.FixedHeader{Type: encoding.PUBREC}, PacketID: packetID, ReasonCode: encoding.ReasonSuccess}
		if err := pkt.Encode(&buf); err != nil {
			return err
		}
	} else {
		pkt := &encoding.PubrecPacket311{FixedHeader: encoding.FixedHeader{Type: encoding.PUBREC}, PacketID: packetID}
		if err := pkt.Encode(&buf); err != nil {
			return err
		}
	}
	return c.writeFrame(&buf)
}

func (c *Conn) writePubrel(packetID uint16) error {
	var buf bytes.Buffer
	if c.isV5() {
		pkt := &encoding.PubrelPacket{FixedHeader: encoding.FixedHeader{Type: encoding.PUBREL, Flags: 0x02}, PacketID: packetID, ReasonCode: encoding.ReasonSuccess}
		if err := pkt.Encode(&buf); err != nil {
			return err
		}
	} else {
		pkt := &encoding.PubrelPacket311{FixedHeader: encoding.FixedHeader{Type: encoding.PUBREL, Flags: 0x02}, PacketID: packetID}
		if err := pkt.Encode(&buf); err != nil {
			return err
		}
	}
	return c.writeFrame(&buf)
}

func (c *Conn) writePubcomp(packetID uint16) error {
	var buf bytes.Buffer
	if c.isV5() {
		pkt := &encoding.PubcompPacket{FixedHeader: encoding.FixedHeader{Type: encoding.PUBCOMP}, PacketID: packetID, ReasonCode: encoding.ReasonSuccess}
		if err := pkt.Encode(&buf); err != nil {
			return err
		}
	} else {
		pkt := &encoding.PubcompPacket311{FixedHeader: encoding.FixedHeader{Type: encoding.PUBCOMP}, PacketID: packetID}
		if err := pkt.Encode(&buf); err != nil {
			return err
		}
	}
	return c.writeFrame(&buf)
}

func (c *Conn) writePingresp() error {
	var buf bytes.Buffer
	pkt := &encoding.PingrespPacket{FixedHeader: encoding.FixedHeader{Type: encoding.PINGRESP}}
	if err := pkt.Encode(&buf); err != nil {
		return err
	}
	return c.writeFrame(&buf)
}
