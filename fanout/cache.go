// Package fanout implements the cached-publish hot path: a published
// Message is serialized at most once per (protocol-version, effective-QoS)
// pair, then patched per subscriber instead of re-encoded.
package fanout

import (
	"bytes"

	"github.com/coremq/broker/encoding"
	"github.com/coremq/broker/types/message"
)

// ProtocolVersion identifies which wire encoding a CachedPublish targets.
type ProtocolVersion byte

const (
	MQTT311 ProtocolVersion = 4
	MQTT5   ProtocolVersion = 5
)

// CachedPublish is a pre-serialized PUBLISH for one (version, QoS) pair.
// Bytes outside the two patchable windows (the fixed-header flag byte and,
// when PacketIDOffset >= 0, the two-byte packet-identifier slot) are
// identical for every subscriber that shares this variant.
type CachedPublish struct {
	Version        ProtocolVersion
	QoS            encoding.QoS
	Bytes          []byte
	PacketIDOffset int // -1 for QoS0, where no packet identifier exists
}

// buildPropertiesFromMessage projects the subset of Message.Properties that
// a PUBLISH packet carries into an encoding.Properties value. Subscription
// identifiers are deliberately excluded here: they are per-receiver and
// always go through the Full path (see full.go), never the cached one.
func buildPropertiesFromMessage(msg *message.Message) encoding.Properties {
	var props encoding.Properties
	if msg.Properties == nil {
		return props
	}
	if v, ok := msg.Properties["PayloadFormatIndicator"].(byte); ok {
		props.Properties = append(props.Properties, encoding.Property{ID: encoding.PropPayloadFormatIndicator, Value: v})
	}
	if msg.MessageExpirySet {
		props.Properties = append(props.Properties, encoding.Property{ID: encoding.PropMessageExpiryInterval, Value: msg.ExpiryInterval})
	}
	if v, ok := msg.Properties["ContentType"].(string); ok && v != "" {
		props.Properties = append(props.Properties, encoding.Property{ID: encoding.PropContentType, Value: v})
	}
	if v, ok := msg.Properties["ResponseTopic"].(string); ok && v != "" {
		props.Properties = append(props.Properties, encoding.Property{ID: encoding.PropResponseTopic, Value: v})
	}
	if v, ok := msg.Properties["CorrelationData"].([]byte); ok && len(v) > 0 {
		props.Properties = append(props.Properties, encoding.Property{ID: encoding.PropCorrelationData, Value: v})
	}
	if pairs, ok := msg.Properties["UserProperties"].([]encoding.UTF8Pair); ok {
		for _, p := range pairs {
			props.Properties = append(props.Properties, encoding.Property{ID: encoding.PropUserProperty, Value: p})
		}
	}
	return props
}

// Build produces the cached wire form of msg for the given protocol version
// and effective QoS. It is the sole serialization point for this
// (version, qos) pair — callers must cache and reuse the result rather than
// calling Build again for the same message.
func Build(msg *message.Message, version ProtocolVersion, qos encoding.QoS) (*CachedPublish, error) {
	var buf bytes.Buffer
	fh := encoding.FixedHeader{Type: encoding.PUBLISH, QoS: qos, DUP: false, Retain: msg.Retain}

	if version == MQTT5 {
		pkt := encoding.PublishPacket{FixedHeader: fh, TopicName: msg.Topic, PacketID: 0, Properties: buildPropertiesFromMessage(msg), Payload: msg.Payload}
		if err := pkt.Encode(&buf); err != nil {
			return nil, err
		}
	} else {
		pkt := encoding.PublishPacket311{FixedHeader: fh, TopicName: msg.Topic, PacketID: 0, Payload: msg.Payload}
		if err := pkt.Encode(&buf); err != nil {
			return nil, err
		}
	}

	out := buf.Bytes()
	packetIDOffset := -1
	if qos > encoding.QoS0 {
		packetIDOffset = fixedHeaderLenOf(out) + 2 + len(msg.Topic)
	}

	return &CachedPublish{Version: version, QoS: qos, Bytes: out, PacketIDOffset: packetIDOffset}, nil
}

// fixedHeaderLenOf recovers the number of bytes the fixed header occupied
// in an already-encoded packet by re-walking the Variable Byte Integer
// remaining-length field that follows the single control byte.
func fixedHeaderLenOf(encoded []byte) int {
	_, n, err := encoding.DecodeVariableByteIntegerFromBytes(encoded[1:])
	if err != nil {
		return 1
	}
	return 1 + n
}

// Patch returns an independent copy of the cached bytes with the
// DUP/Retain bits and (if present) the packet identifier overwritten for
// one receiver. The cached buffer itself is never mutated.
func (c *CachedPublish) Patch(dup, retain bool, packetID uint16) []byte {
	out := make([]byte, len(c.Bytes))
	copy(out, c.Bytes)

	flags := out[0] & 0xF0 // preserve packet type nibble
	flags |= byte(c.QoS) << 1
	if dup {
		flags |= 0x08
	}
	if retain {
		flags |= 0x01
	}
	out[0] = (out[0] & 0xF0) | (flags & 0x0F)

	if c.PacketIDOffset >= 0 {
		out[c.PacketIDOffset] = byte(packetID >> 8)
		out[c.PacketIDOffset+1] = byte(packetID)
	}
	return out
}
