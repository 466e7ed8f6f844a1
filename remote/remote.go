// Package remote defines the narrow interface bridges and cluster nodes
// implement to receive fanned-out messages, plus a reference client that
// forwards them to an upstream broker over a pooled outbound connection.
package remote

import (
	"context"
	"errors"

	"github.com/coremq/broker/encoding"
	"github.com/coremq/broker/types/message"
)

// OriginTagUserPropertyKey is the UTF8Pair key a forwarded PUBLISH's
// "UserProperties" entry (see fanout.buildPropertiesFromMessage) carries
// its origin broker/bridge tag under. A receiving bridge strips it before
// handing the message to its local fan-out router, and the router's
// no-local filtering treats a remote peer tagged as the message's own
// origin the same way it treats a publishing client's own subscription:
// as a loop, not a delivery.
const OriginTagUserPropertyKey = "coremq-origin"

// DeliveryOutcome reports what happened to a message forwarded to a peer.
type DeliveryOutcome byte

const (
	// DeliveryAccepted means the peer took ownership of the message (queued
	// or delivered on its side); the local fan-out counts it as sent.
	DeliveryAccepted DeliveryOutcome = iota
	// DeliveryRejected means the peer declined the message (e.g. an ACL
	// check on the remote side failed); the local fan-out treats this like
	// a drop and fires hook.OnPublishDropped.
	DeliveryRejected
	// DeliveryLoop means the message was not forwarded because its origin
	// tag matched this peer's own tag.
	DeliveryLoop
)

// ErrPeerUnavailable is returned by Forward when the peer has no usable
// connection (not yet connected, or mid-reconnect backoff).
var ErrPeerUnavailable = errors.New("remote: peer unavailable")

// RemotePeer is the fan-out router's view of a bridge or cluster neighbor.
// The router treats peers as additional deduplicated receivers alongside
// local clients, resolved the same way local clients are: by ClientID-like
// tag, one Forward call per matched subscription group.
type RemotePeer interface {
	// Tag identifies this peer as a message origin, for loop prevention.
	Tag() string
	Forward(ctx context.Context, msg *message.Message, originTag string) (DeliveryOutcome, error)
}

// StripOrigin removes any existing origin-tag user property from msg's
// Properties before a peer re-tags it as its own and forwards it onward,
// preventing an accumulating chain of stale tags on a multi-hop bridge.
func StripOrigin(props map[string]interface{}) []encoding.UTF8Pair {
	pairs, _ := props["UserProperties"].([]encoding.UTF8Pair)
	if len(pairs) == 0 {
		return nil
	}
	out := make([]encoding.UTF8Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.Key == OriginTagUserPropertyKey {
			continue
		}
		out = append(out, p)
	}
	return out
}

// TaggedProperties returns a Properties map (the shape message.Message.
// Properties expects — see fanout.buildPropertiesFromMessage) with tag
// appended as the origin-tag user property, preserving any other
// properties already present on msg.
func TaggedProperties(existing map[string]interface{}, tag string) map[string]interface{} {
	out := make(map[string]interface{}, len(existing)+1)
	for k, v := range existing {
		out[k] = v
	}
	pairs := StripOrigin(existing)
	pairs = append(pairs, encoding.UTF8Pair{Key: OriginTagUserPropertyKey, Value: tag})
	out["UserProperties"] = pairs
	return out
}

// OriginOf reports the origin tag on msg, if any.
func OriginOf(props map[string]interface{}) (string, bool) {
	pairs, _ := props["UserProperties"].([]encoding.UTF8Pair)
	for _, p := range pairs {
		if p.Key == OriginTagUserPropertyKey {
			return p.Value, true
		}
	}
	return "", false
}
