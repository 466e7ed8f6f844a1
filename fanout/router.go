package fanout

import (
	"sync"

	"github.com/coremq/broker/encoding"
	"github.com/coremq/broker/hook"
	"github.com/coremq/broker/topic"
	"github.com/coremq/broker/types/message"
)

// Deliverer is the narrow surface a Router needs from a connected client's
// write side. It is implemented by the connection/session layer; Router
// only depends on this interface so it can be tested without a live socket.
type Deliverer interface {
	ClientID() string
	ProtocolVersion() ProtocolVersion
	// Deliver writes an already-patched PUBLISH to the underlying
	// connection. A false return means the send buffer could not accept
	// the frame (caller decides whether to spill to the offline queue).
	Deliver(payload []byte, qos encoding.QoS, packetID uint16) bool
	NextPacketID() uint16
	IsOnline() bool
	// EnqueueOffline stores a message for later delivery once the client
	// reconnects with a persistent session.
	EnqueueOffline(msg *message.Message, qos encoding.QoS, subscriptionIDs []uint32)
}

// Registry resolves a ClientID to its live Deliverer, if connected.
type Registry interface {
	Lookup(clientID string) (Deliverer, bool)
}

// Router performs the subscription match walk for a published message and
// fans it out using the cached-publish hot path, falling back to the v5
// Full path only for receivers whose matched subscriptions carry
// subscription identifiers.
type Router struct {
	topics   *topic.Router
	registry Registry
	hooks    *hook.Manager

	mu     sync.Mutex
	caches map[cacheKey]*CachedPublish
}

type cacheKey struct {
	msg     *message.Message
	version ProtocolVersion
	qos     encoding.QoS
}

// NewRouter builds a Router over an existing topic.Router (subscription
// trie + shared-group bookkeeping) and hook.Manager (event notification).
func NewRouter(topics *topic.Router, registry Registry, hooks *hook.Manager) *Router {
	return &Router{
		topics:   topics,
		registry: registry,
		hooks:    hooks,
		caches:   make(map[cacheKey]*CachedPublish),
	}
}

// cached returns the CachedPublish for (msg, version, qos), building and
// memoizing it on first use. The message is part of the key, so concurrent
// Publish calls through one Router never reuse each other's bytes; Publish
// discards its own message's variants when its fan-out is done.
func (r *Router) cached(msg *message.Message, version ProtocolVersion, qos encoding.QoS) (*CachedPublish, error) {
	key := cacheKey{msg, version, qos}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cp, ok := r.caches[key]; ok {
		return cp, nil
	}
	cp, err := Build(msg, version, qos)
	if err != nil {
		return nil, err
	}
	r.caches[key] = cp
	return cp, nil
}

// Reset drops every memoized CachedPublish variant, for all messages.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches = make(map[cacheKey]*CachedPublish)
}

// matched pairs a SubscriberInfo with the effective QoS and subscription
// identifiers it contributes to one receiver, after dedup-by-client and
// cross-subscription QoS maximization.
type matched struct {
	clientID        string
	qos             encoding.QoS
	noLocal         bool
	retainAsPub     bool
	subscriptionIDs []uint32
}

// resolve walks the matched SubscriberInfo list and merges duplicates
// belonging to the same client into one delivery: effective QoS is the
// maximum QoS among matched non-shared subscriptions capped by the
// published QoS, and all contributing subscription identifiers are
// collected (MQTT-3.3.4-3).
func resolve(infos []topic.SubscriberInfo, publishQoS encoding.QoS, publisherClientID string) []matched {
	byClient := make(map[string]*matched, len(infos))
	order := make([]string, 0, len(infos))

	for _, info := range infos {
		if info.NoLocal && info.ClientID == publisherClientID {
			continue
		}

		effQoS := encoding.QoS(info.QoS)
		if effQoS > publishQoS {
			effQoS = publishQoS
		}

		m, ok := byClient[info.ClientID]
		if !ok {
			m = &matched{clientID: info.ClientID, qos: effQoS, noLocal: info.NoLocal, retainAsPub: info.RetainAsPublished}
			byClient[info.ClientID] = m
			order = append(order, info.ClientID)
		} else if effQoS > m.qos {
			m.qos = effQoS
		}

		if info.SubscriptionIdentifier != 0 {
			m.subscriptionIDs = append(m.subscriptionIDs, info.SubscriptionIdentifier)
		}
	}

	out := make([]matched, 0, len(order))
	for _, clientID := range order {
		out = append(out, *byClient[clientID])
	}
	return out
}

// Publish fans msg out to every subscriber whose filter matches msg.Topic.
// It returns the number of receivers the message was handed to (delivered
// live or queued offline); drops are reported through hooks, not the
// return value.
func (r *Router) Publish(msg *message.Message, publisherClientID string) int {
	defer func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for k := range r.caches {
			if k.msg == msg {
				delete(r.caches, k)
			}
		}
	}()

	infos := r.topics.MatchWithPublisher(msg.Topic, publisherClientID)
	if len(infos) == 0 {
		return 0
	}

	delivered := 0
	for _, m := range resolve(infos, msg.QoS, publisherClientID) {
		if r.deliverTo(msg, m) {
			delivered++
		}
	}
	return delivered
}

// deliverTo hands msg to a single resolved receiver, choosing the cached or
// full encode path and applying back-pressure policy when the receiver is
// online but cannot accept the frame immediately.
func (r *Router) deliverTo(msg *message.Message, m matched) bool {
	deliverer, online := r.registry.Lookup(m.clientID)
	if !online {
		// A persistent session that has disconnected keeps its Deliverer
		// registered (as a cold stub) so it still receives EnqueueOffline
		// calls; a clientID the registry has never heard of (stale
		// subscription outliving a clean-session removal) has none.
		if deliverer != nil {
			deliverer.EnqueueOffline(msg, m.qos, m.subscriptionIDs)
			return true
		}
		r.dropped(m.clientID, msg, hook.DropReasonClientDisconnected)
		return false
	}

	retain := msg.Retain && m.retainAsPub

	if NeedsFull(deliverer.ProtocolVersion(), m.subscriptionIDs) {
		packetID := uint16(0)
		if m.qos > encoding.QoS0 {
			packetID = deliverer.NextPacketID()
		}
		payload, err := BuildFull(msg, m.qos, msg.DUP, retain, packetID, m.subscriptionIDs)
		if err != nil {
			r.dropped(m.clientID, msg, hook.DropReasonInternalError)
			return false
		}
		return r.send(deliverer, payload, m, packetID, msg)
	}

	cp, err := r.cached(msg, deliverer.ProtocolVersion(), m.qos)
	if err != nil {
		r.dropped(m.clientID, msg, hook.DropReasonInternalError)
		return false
	}

	packetID := uint16(0)
	if m.qos > encoding.QoS0 {
		packetID = deliverer.NextPacketID()
	}
	payload := cp.Patch(msg.DUP, retain, packetID)
	return r.send(deliverer, payload, m, packetID, msg)
}

// send applies the three back-pressure policies named for the fan-out
// router: QoS0 to a saturated online client is dropped outright; QoS>0 to
// an online client that cannot take the frame spills to the offline queue
// rather than being lost; an offline client always goes straight to its
// offline queue (handled by the caller before send is reached).
func (r *Router) send(d Deliverer, payload []byte, m matched, packetID uint16, msg *message.Message) bool {
	if d.Deliver(payload, m.qos, packetID) {
		if m.qos > encoding.QoS0 {
			r.hooks.OnQosPublish(&hook.Client{ID: d.ClientID()}, &hook.PublishPacket{
				PacketID: packetID,
				Topic:    msg.Topic,
				Payload:  msg.Payload,
				QoS:      byte(m.qos),
				Retain:   msg.Retain,
			}, msg.LastAttemptAt, msg.AttemptCount)
		}
		return true
	}

	if m.qos == encoding.QoS0 {
		r.dropped(m.clientID, msg, hook.DropReasonQueueFull)
		return false
	}

	d.EnqueueOffline(msg, m.qos, m.subscriptionIDs)
	return true
}

func (r *Router) dropped(clientID string, msg *message.Message, reason hook.DropReason) {
	r.hooks.OnPublishDropped(&hook.Client{ID: clientID}, &hook.PublishPacket{
		Topic:   msg.Topic,
		Payload: msg.Payload,
		QoS:     byte(msg.QoS),
		Retain:  msg.Retain,
	}, reason)
}
