package remote

import (
	"bytes"
	"context"
	"sync"

	"github.com/coremq/broker/encoding"
	"github.com/coremq/broker/network"
	"github.com/coremq/broker/types/message"
)

// DialFunc opens a fresh outbound connection to the upstream broker. It is
// supplied by the caller so BridgeClient stays transport-agnostic (TCP,
// TLS, WebSocket — whatever network.NewConnection wraps).
type DialFunc func(ctx context.Context) (*network.Connection, error)

// BridgeClient is the reference RemotePeer: it holds one pooled outbound
// connection to an upstream broker, re-encoding forwarded messages as
// ordinary v5 PUBLISH packets tagged with this bridge's origin, and
// reconnecting with backoff when the connection drops.
type BridgeClient struct {
	tag         string
	reconnector *network.Reconnector

	mu   sync.Mutex
	conn *network.Connection
}

// NewBridgeClient builds a BridgeClient that dials via dial and identifies
// itself as tag in the origin-tag user property of every forwarded message.
func NewBridgeClient(ctx context.Context, tag string, dial DialFunc, recoveryCfg *network.RecoveryConfig) (*BridgeClient, error) {
	reconnector, err := network.NewReconnector(ctx, recoveryCfg, func() (*network.Connection, error) {
		return dial(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &BridgeClient{tag: tag, reconnector: reconnector}, nil
}

// Tag implements RemotePeer.
func (b *BridgeClient) Tag() string { return b.tag }

// Forward implements RemotePeer. A message whose existing origin tag
// matches this bridge's own tag came from this bridge in the first place
// (a multi-hop loop) and is not forwarded.
func (b *BridgeClient) Forward(ctx context.Context, msg *message.Message, originTag string) (DeliveryOutcome, error) {
	if tag, ok := OriginOf(msg.Properties); ok && tag == b.tag {
		return DeliveryLoop, nil
	}

	conn, err := b.connection()
	if err != nil {
		return DeliveryRejected, err
	}

	props := TaggedProperties(msg.Properties, originTag)
	tagged := msg.Clone()
	tagged.Properties = props

	payload, err := encodePublish(tagged)
	if err != nil {
		return DeliveryRejected, err
	}

	if _, err := conn.Write(payload); err != nil {
		b.invalidate(conn)
		return DeliveryRejected, err
	}
	return DeliveryAccepted, nil
}

// connection returns the live outbound connection, dialing (with backoff
// via the Reconnector) if none is currently held.
func (b *BridgeClient) connection() (*network.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil && b.conn.State() == network.StateConnected {
		return b.conn, nil
	}

	conn, err := b.reconnector.Connect()
	if err != nil {
		return nil, err
	}
	b.conn = conn
	return conn, nil
}

// invalidate drops conn if it is still the client's current connection,
// forcing the next Forward call to reconnect.
func (b *BridgeClient) invalidate(conn *network.Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == conn {
		b.conn = nil
	}
}

// Close tears down the reconnector and any live connection.
func (b *BridgeClient) Close() error {
	b.reconnector.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		return err
	}
	return nil
}

func encodePublish(msg *message.Message) ([]byte, error) {
	var buf bytes.Buffer
	fh := encoding.FixedHeader{Type: encoding.PUBLISH, QoS: msg.QoS, DUP: msg.DUP, Retain: msg.Retain}
	pkt := encoding.PublishPacket{
		FixedHeader: fh,
		TopicName:   msg.Topic,
		PacketID:    msg.PacketID,
		Properties:  propertiesFromMap(msg.Properties),
		Payload:     msg.Payload,
	}
	if err := pkt.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// propertiesFromMap mirrors fanout.buildPropertiesFromMessage's UserProperties
// handling; the bridge only ever needs to carry the origin-tag user
// property through, so it skips the other MQTT 5 property fields that
// fanout's cached-publish path already handled before a message reaches a
// remote peer.
func propertiesFromMap(m map[string]interface{}) encoding.Properties {
	var props encoding.Properties
	if pairs, ok := m["UserProperties"].([]encoding.UTF8Pair); ok {
		for _, p := range pairs {
			props.Properties = append(props.Properties, encoding.Property{ID: encoding.PropUserProperty, Value: p})
		}
	}
	return props
}
