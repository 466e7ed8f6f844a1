package session

import (
	"sync"
	"time"

	"github.com/coremq/broker/fanout"
)

// State represents the session state
type State byte

const (
	StateNew          State = iota // Session is newly created
	StateActive                    // Session is active with a connected client
	StateDisconnected              // Session is disconnected but not expired
	StateExpired                   // Session has expired
)

// WillMessage represents the MQTT will message
type WillMessage struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	Properties map[string]interface{}
}

// Session represents an MQTT session
type Session struct {
	mu sync.RWMutex

	ClientID          string
	CleanStart        bool
	State             State
	ExpiryInterval    uint32 // Session expiry interval in seconds (0 = no expiry for persistent session)
	CreatedAt         time.Time
	LastAccessedAt    time.Time
	DisconnectedAt    time.Time
	WillMessage       *WillMessage
	WillDelayInterval uint32 // Will delay interval in seconds

	// Subscription data
	Subscriptions map[string]*Subscription // topic filter -> subscription

	// Outgoing QoS 1/2 inflight, keyed by packet ID. Both phases of the
	// QoS 2 outbound flow (awaiting PUBREC, then awaiting PUBCOMP after
	// PUBREL is sent) live in this one map; State on the entry tells them
	// apart instead of the entry's map membership.
	OutgoingQoS map[uint16]*InflightOut

	// InflightIn tracks QoS 2 inbound messages the broker has PUBRECed but
	// not yet received the client's PUBREL for.
	InflightIn map[uint16]struct{}

	// Packet ID generator
	nextPacketID uint16

	// Maximum packet size
	MaxPacketSize uint32

	// Receive maximum (max inflight)
	ReceiveMaximum uint16

	// Protocol version
	ProtocolVersion byte
}

// Subscription represents a topic subscription
type Subscription struct {
	TopicFilter            string
	QoS                    byte
	NoLocal                bool
	RetainAsPublished      bool
	RetainHandling         byte
	SubscriptionIdentifier uint32
	SubscribedAt           time.Time
}

// InflightKind discriminates how an outgoing inflight PUBLISH was encoded:
// the shared cached-publish variant, or a one-off Full encode (v5 receivers
// carrying subscription identifiers — see fanout.BuildFull).
type InflightKind byte

const (
	KindCached InflightKind = iota
	KindFull
)

// OutgoingState tracks where a packet ID sits in the outbound QoS flow.
// AwaitingPubAck only applies to QoS 1. AwaitingPubRec and AwaitingPubComp
// are the two phases of QoS 2: PUBLISH sent waiting for PUBREC, then PUBREL
// sent waiting for PUBCOMP.
type OutgoingState byte

const (
	AwaitingPubAck OutgoingState = iota
	AwaitingPubRec
	AwaitingPubComp
)

// InflightOut represents one outgoing QoS 1/2 message awaiting
// acknowledgment. Retransmission replays FullPayload (Kind == KindFull) or
// re-patches Cached (Kind == KindCached) with the DUP bit set, rather than
// re-running the router's match/resolve logic.
type InflightOut struct {
	PacketID        uint16
	Topic           string
	QoS             byte
	Retain          bool
	DUP             bool
	Kind            InflightKind
	Cached          *fanout.CachedPublish // set when Kind == KindCached
	FullPayload     []byte                // set when Kind == KindFull
	SubscriptionIDs []uint32
	Properties      map[string]interface{}
	State           OutgoingState
	Timestamp       time.Time
	AttemptCount    int
}

// New creates a new session
func New(clientID string, cleanStart bool, expiryInterval uint32, protocolVersion byte) *Session {
	now := time.Now()
	return &Session{
		ClientID:        clientID,
		CleanStart:      cleanStart,
		State:           StateNew,
		ExpiryInterval:  expiryInterval,
		CreatedAt:       now,
		LastAccessedAt:  now,
		Subscriptions:   make(map[string]*Subscription),
		OutgoingQoS:     make(map[uint16]*InflightOut),
		InflightIn:      make(map[uint16]struct{}),
		nextPacketID:    1,
		ReceiveMaximum:  65535, // Default maximum
		ProtocolVersion: protocolVersion,
	}
}

// SetActive marks the session as active
func (s *Session) SetActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateActive
	s.LastAccessedAt = time.Now()
}

// SetDisconnected marks the session as disconnected
func (s *Session) SetDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateDisconnected
	s.DisconnectedAt = time.Now()
}

// SetExpired marks the session as expired
func (s *Session) SetExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateExpired
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ExpiryInterval == 0 && !s.CleanStart {
		return false // Persistent session with no expiry
	}

	if s.State == StateDisconnected && s.ExpiryInterval > 0 {
		return time.Since(s.DisconnectedAt) > time.Duration(s.ExpiryInterval)*time.Second
	}

	return s.State == StateExpired
}

// Touch updates the last accessed time
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastAccessedAt = time.Now()
}

// SetWillMessage sets the will message for the session
func (s *Session) SetWillMessage(will *WillMessage, delayInterval uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WillMessage = will
	s.WillDelayInterval = delayInterval
}

// ClearWillMessage clears the will message
func (s *Session) ClearWillMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WillMessage = nil
}

// GetWillMessage returns the will message if present
func (s *Session) GetWillMessage() *WillMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.WillMessage
}

// ShouldPublishWill checks if will message should be published
func (s *Session) ShouldPublishWill() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.WillMessage == nil {
		return false
	}

	if s.WillDelayInterval == 0 {
		return true
	}

	return time.Since(s.DisconnectedAt) >= time.Duration(s.WillDelayInterval)*time.Second
}

// AddSubscription adds a subscription to the session
func (s *Session) AddSubscription(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscriptions[sub.TopicFilter] = sub
}

// RemoveSubscription removes a subscription from the session
func (s *Session) RemoveSubscription(topicFilter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Subscriptions, topicFilter)
}

// GetSubscription returns a subscription by topic filter
func (s *Session) GetSubscription(topicFilter string) (*Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.Subscriptions[topicFilter]
	return sub, ok
}

// GetAllSubscriptions returns all subscriptions
func (s *Session) GetAllSubscriptions() map[string]*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := make(map[string]*Subscription, len(s.Subscriptions))
	for k, v := range s.Subscriptions {
		subs[k] = v
	}
	return subs
}

// ClearSubscriptions removes all subscriptions
func (s *Session) ClearSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscriptions = make(map[string]*Subscription)
}

// NextPacketID generates the next packet ID
func (s *Session) NextPacketID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		id := s.nextPacketID
		s.nextPacketID++
		if s.nextPacketID == 0 {
			s.nextPacketID = 1
		}

		// Check if ID is already in use
		if _, ok := s.OutgoingQoS[id]; !ok {
			if _, ok := s.InflightIn[id]; !ok {
				return id
			}
		}
	}
}

// AddOutgoing registers a new outgoing QoS 1/2 inflight entry.
func (s *Session) AddOutgoing(msg *InflightOut) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OutgoingQoS[msg.PacketID] = msg
}

// RemoveOutgoing removes an outgoing inflight entry, e.g. on PUBACK (QoS 1)
// or PUBCOMP (QoS 2).
func (s *Session) RemoveOutgoing(packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.OutgoingQoS, packetID)
}

// GetOutgoing returns an outgoing inflight entry.
func (s *Session) GetOutgoing(packetID uint16) (*InflightOut, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.OutgoingQoS[packetID]
	return msg, ok
}

// GetAllOutgoing returns a copy of all outgoing inflight entries, e.g. for
// reconnect retransmission.
func (s *Session) GetAllOutgoing() map[uint16]*InflightOut {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make(map[uint16]*InflightOut, len(s.OutgoingQoS))
	for k, v := range s.OutgoingQoS {
		msgs[k] = v
	}
	return msgs
}

// AdvanceToPubComp transitions a QoS 2 outgoing entry from AwaitingPubRec
// to AwaitingPubComp once its PUBREC has arrived and the PUBREL has been
// sent.
func (s *Session) AdvanceToPubComp(packetID uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.OutgoingQoS[packetID]
	if !ok {
		return false
	}
	msg.State = AwaitingPubComp
	return true
}

// AddInflightIn records that a QoS 2 inbound PUBLISH has been PUBRECed and
// is awaiting the client's PUBREL.
func (s *Session) AddInflightIn(packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InflightIn[packetID] = struct{}{}
}

// RemoveInflightIn clears a QoS 2 inbound entry once its PUBREL arrives.
func (s *Session) RemoveInflightIn(packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.InflightIn, packetID)
}

// HasInflightIn reports whether a QoS 2 inbound PUBLISH is awaiting PUBREL.
func (s *Session) HasInflightIn(packetID uint16) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.InflightIn[packetID]
	return ok
}

// Clear clears all session data
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscriptions = make(map[string]*Subscription)
	s.OutgoingQoS = make(map[uint16]*InflightOut)
	s.InflightIn = make(map[uint16]struct{})
	s.WillMessage = nil
}

// GetState returns the current state
func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// GetClientID returns the client ID
func (s *Session) GetClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ClientID
}

// GetCleanStart returns the clean start flag
func (s *Session) GetCleanStart() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CleanStart
}

// GetExpiryInterval returns the expiry interval
func (s *Session) GetExpiryInterval() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ExpiryInterval
}

// UpdateExpiryInterval updates the session expiry interval
func (s *Session) UpdateExpiryInterval(interval uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ExpiryInterval = interval
}
