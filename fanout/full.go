package fanout

import (
	"bytes"

	"github.com/coremq/broker/encoding"
	"github.com/coremq/broker/types/message"
)

// BuildFull re-encodes msg for a single v5 receiver, injecting the
// subscription identifiers that matched its subscriptions. Subscription
// identifiers are per-subscriber by definition (MQTT-3.3.4-3: a publish
// matching N subscriptions with identifiers carries all N of them), so this
// path can never be shared across receivers the way CachedPublish is —
// every call to BuildFull produces a one-off buffer.
//
// subscriptionIDs may be empty, in which case the result is equivalent to
// the QoS/version-matching CachedPublish variant with DUP/Retain/PacketID
// already patched; callers that have no subscription identifiers to inject
// should prefer Build+Patch instead, since that path reuses the cached
// encode.
func BuildFull(msg *message.Message, qos encoding.QoS, dup, retain bool, packetID uint16, subscriptionIDs []uint32) ([]byte, error) {
	props := buildPropertiesFromMessage(msg)
	for _, id := range subscriptionIDs {
		props.Properties = append(props.Properties, encoding.Property{ID: encoding.PropSubscriptionIdentifier, Value: id})
	}

	fh := encoding.FixedHeader{Type: encoding.PUBLISH, QoS: qos, DUP: dup, Retain: retain}
	pkt := encoding.PublishPacket{
		FixedHeader: fh,
		TopicName:   msg.Topic,
		Properties:  props,
		Payload:     msg.Payload,
	}
	if qos > encoding.QoS0 {
		pkt.PacketID = packetID
	}

	var buf bytes.Buffer
	if err := pkt.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NeedsFull reports whether a receiver's matched subscription identifiers
// require the Full path rather than the shared CachedPublish+Patch path.
func NeedsFull(version ProtocolVersion, subscriptionIDs []uint32) bool {
	return version == MQTT5 && len(subscriptionIDs) > 0
}
