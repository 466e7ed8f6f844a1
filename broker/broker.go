// Package broker wires the subscription router, retained-message store,
// session manager, and hook pipeline into the single admission path a
// connected client's PUBLISH/SUBSCRIBE/DISCONNECT flows go through.
package broker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coremq/broker/encoding"
	"github.com/coremq/broker/fanout"
	"github.com/coremq/broker/hook"
	"github.com/coremq/broker/session"
	"github.com/coremq/broker/store"
	"github.com/coremq/broker/topic"
	"github.com/coremq/broker/types/message"
)

// Config holds the dependencies and tunables a Broker is built from. Stores
// and managers are constructed by the caller (main/cmd wiring) so tests can
// substitute in-memory implementations without touching Broker itself.
type Config struct {
	SessionManager *session.Manager
	Retained       *store.RetainedStore
	Hooks          *hook.Manager
	Logger         *slog.Logger

	SysInfoInterval  time.Duration
	ExpirySweepEvery time.Duration
}

// Broker is the CORE orchestrator: it owns the live client registry, routes
// published messages through the fan-out Router, and applies retained and
// will-message semantics around the session manager's lifecycle.
type Broker struct {
	sessions *session.Manager
	retained *store.RetainedStore
	hooks    *hook.Manager
	topics   *topic.Router
	router   *fanout.Router
	logger   *slog.Logger

	mu       sync.RWMutex
	registry map[string]fanout.Deliverer

	sysInfoInterval  time.Duration
	expirySweepEvery time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool

	startedAt time.Time

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	messagesDropped  atomic.Uint64
}

// New builds a Broker from its dependencies. The fan-out Router is
// constructed internally since it is purely a function of the topic.Router
// and hook.Manager Broker already owns — callers never need their own
// handle to it.
func New(cfg Config) *Broker {
	if cfg.SysInfoInterval == 0 {
		cfg.SysInfoInterval = 10 * time.Second
	}
	if cfg.ExpirySweepEvery == 0 {
		cfg.ExpirySweepEvery = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Broker{
		sessions:         cfg.SessionManager,
		retained:         cfg.Retained,
		hooks:            cfg.Hooks,
		topics:           topic.NewRouter(),
		logger:           cfg.Logger,
		registry:         make(map[string]fanout.Deliverer),
		sysInfoInterval:  cfg.SysInfoInterval,
		expirySweepEvery: cfg.ExpirySweepEvery,
		stopCh:           make(chan struct{}),
		startedAt:        time.Now(),
	}
	b.router = fanout.NewRouter(b.topics, b, b.hooks)

	b.wg.Add(2)
	go b.sysInfoLoop()
	go b.expirySweepLoop()

	b.hooks.OnStarted()

	return b
}

// Hooks returns the hook.Manager Broker dispatches connect/publish/
// subscribe events through, so the connection layer can run
// OnConnectAuthenticate/OnACLCheck before admitting a client action.
func (b *Broker) Hooks() *hook.Manager {
	return b.hooks
}

// GenerateClientID delegates to the session manager's assigned-client-ID
// generator, used when a CONNECT with CleanStart/CleanSession arrives with
// an empty ClientID (MQTT-3.1.3-6).
func (b *Broker) GenerateClientID(ctx context.Context) (string, error) {
	return b.sessions.GenerateClientID(ctx)
}

// Lookup implements fanout.Registry. The bool reports whether clientID has a
// registered Deliverer that is online; a disconnected persistent session's
// stub is still returned, with false.
func (b *Broker) Lookup(clientID string) (fanout.Deliverer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.registry[clientID]
	return d, ok && d.IsOnline()
}

// Attach registers a live Deliverer for clientID, taking over any existing
// registration for the same client ID (session takeover: the prior
// connection is the caller's responsibility to close — Attach only updates
// the routing table).
func (b *Broker) Attach(clientID string, d fanout.Deliverer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry[clientID] = d
}

// Detach removes a client's Deliverer registration unconditionally,
// whichever Deliverer is registered under clientID at the time of the call.
func (b *Broker) Detach(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.registry, clientID)
}

// Publish runs one PUBLISH through the retained-store update, the
// subscription match/fan-out, and the hook notifications that bracket both.
func (b *Broker) Publish(ctx context.Context, msg *message.Message, publisherClientID string) error {
	if b.closed.Load() {
		return ErrShuttingDown
	}
	b.messagesReceived.Add(1)

	hookClient := &hook.Client{ID: publisherClientID}
	hookPkt := &hook.PublishPacket{
		PacketID:  msg.PacketID,
		Topic:     msg.Topic,
		Payload:   msg.Payload,
		QoS:       byte(msg.QoS),
		Retain:    msg.Retain,
		Duplicate: msg.DUP,
		Created:   msg.CreatedAt,
		Origin:    publisherClientID,
	}
	if err := b.hooks.OnPublish(hookClient, hookPkt); err != nil {
		b.messagesDropped.Add(1)
		return err
	}

	if msg.Retain {
		if err := b.applyRetain(ctx, msg, hookClient, hookPkt); err != nil {
			return err
		}
	}

	delivered := b.router.Publish(msg, publisherClientID)
	b.messagesSent.Add(uint64(delivered))

	b.hooks.OnPublished(hookClient, hookPkt)
	return nil
}

// applyRetain stores or clears the retained message for msg.Topic. An
// empty payload deletes the retained message for that topic (MQTT-3.3.1-10).
func (b *Broker) applyRetain(ctx context.Context, msg *message.Message, client *hook.Client, pkt *hook.PublishPacket) error {
	if err := b.hooks.OnRetainMessage(client, pkt); err != nil {
		return err
	}
	if len(msg.Payload) == 0 {
		if err := b.retained.Delete(ctx, msg.Topic); err != nil {
			return err
		}
	} else {
		if err := b.retained.Set(ctx, msg.Topic, msg); err != nil {
			return err
		}
	}
	b.hooks.OnRetainPublished(client, pkt)
	return nil
}

// DeliverRetained sends every retained message matching filter to a newly
// subscribed client, honoring RetainHandling semantics the caller has
// already resolved (send-always vs send-if-new-subscription-only vs never).
func (b *Broker) DeliverRetained(ctx context.Context, clientID, filter string, qos byte) error {
	matches, err := b.retained.Match(ctx, filter, newRetainedMatcher())
	if err != nil {
		return err
	}

	d, online := b.Lookup(clientID)
	if !online {
		return nil
	}

	for _, m := range matches {
		effQoS := m.QoS
		if byte(effQoS) > qos {
			effQoS = encoding.QoS(qos)
		}
		cp, err := fanout.Build(m, d.ProtocolVersion(), effQoS)
		if err != nil {
			b.logger.Error("retained build failed", "topic", m.Topic, "error", err)
			continue
		}
		packetID := uint16(0)
		if effQoS > 0 {
			packetID = d.NextPacketID()
		}
		d.Deliver(cp.Patch(false, true, packetID), effQoS, packetID)
	}
	return nil
}

// Subscribe records sub in both the subscription trie and the session's own
// bookkeeping, then pushes retained messages to the subscriber.
func (b *Broker) Subscribe(ctx context.Context, sess *session.Session, sub *topic.Subscription) error {
	hookSub := &hook.Subscription{
		ClientID:               sub.ClientID,
		TopicFilter:            sub.TopicFilter,
		QoS:                    sub.QoS,
		NoLocal:                sub.NoLocal,
		RetainAsPublished:      sub.RetainAsPublished,
		RetainHandling:         sub.RetainHandling,
		SubscriptionIdentifier: sub.SubscriptionIdentifier,
	}
	if err := b.hooks.OnSubscribe(&hook.Client{ID: sub.ClientID}, hookSub); err != nil {
		return err
	}

	if err := b.topics.Subscribe(sub); err != nil {
		return err
	}

	sess.AddSubscription(&session.Subscription{
		TopicFilter:            sub.TopicFilter,
		QoS:                    sub.QoS,
		NoLocal:                sub.NoLocal,
		RetainAsPublished:      sub.RetainAsPublished,
		RetainHandling:         sub.RetainHandling,
		SubscriptionIdentifier: sub.SubscriptionIdentifier,
		SubscribedAt:           time.Now(),
	})

	b.hooks.OnSubscribed(&hook.Client{ID: sub.ClientID}, hookSub)

	if sub.RetainHandling != 2 { // 2 == "do not send retained messages"
		if err := b.DeliverRetained(ctx, sub.ClientID, sub.TopicFilter, sub.QoS); err != nil {
			b.logger.Error("retained delivery failed", "filter", sub.TopicFilter, "error", err)
		}
	}
	return nil
}

// Connect resolves the session for clientID — creating one, resuming a
// stored one, or taking over an existing live one — then attaches d as its
// delivery target. Returns sessionPresent per MQTT-3.2.2-2/CONNACK rules.
func (b *Broker) Connect(ctx context.Context, clientID string, cleanStart bool, expiryInterval uint32, protocolVersion byte, d fanout.Deliverer) (sess *session.Session, sessionPresent bool, err error) {
	if b.closed.Load() {
		return nil, false, ErrShuttingDown
	}
	if _, online := b.Lookup(clientID); online {
		if err := b.sessions.TakeoverSession(ctx, clientID); err != nil {
			return nil, false, err
		}
		b.Detach(clientID)
	}

	sess, sessionPresent, err = b.sessions.CreateSession(ctx, clientID, cleanStart, expiryInterval, protocolVersion)
	if err != nil {
		return nil, false, err
	}

	b.Attach(clientID, d)
	return sess, sessionPresent, nil
}

// Disconnect detaches clientID's Deliverer and hands the session off to the
// session manager, which applies will-publishing and clean-session removal.
// Use this for a clean-session teardown, where nothing should remain
// reachable under clientID once the connection drops.
func (b *Broker) Disconnect(ctx context.Context, clientID string, sendWill bool) error {
	b.Detach(clientID)
	return b.sessions.DisconnectSession(ctx, clientID, sendWill)
}

// DisconnectSession applies will-publishing and session bookkeeping without
// detaching clientID's Deliverer from the registry. A persistent session's
// connection layer calls this instead of Disconnect so its (now offline)
// Deliverer stays resolvable by the fan-out router, which spills further
// publishes to EnqueueOffline for replay when the client reconnects.
func (b *Broker) DisconnectSession(ctx context.Context, clientID string, sendWill bool) error {
	return b.sessions.DisconnectSession(ctx, clientID, sendWill)
}

// PublishWill implements session.WillPublisher: the session manager calls
// this to deliver a client's will message, either immediately on an
// ungraceful disconnect or after WillDelayInterval elapses.
func (b *Broker) PublishWill(ctx context.Context, will *session.WillMessage, clientID string) error {
	msg := message.NewMessage(0, will.Topic, will.Payload, encoding.QoS(will.QoS), will.Retain, will.Properties)
	return b.Publish(ctx, msg, clientID)
}

// Unsubscribe removes filter for clientID from both the trie and the session.
func (b *Broker) Unsubscribe(sess *session.Session, clientID, filter string) error {
	if err := b.hooks.OnUnsubscribe(&hook.Client{ID: clientID}, filter); err != nil {
		return err
	}
	b.topics.Unsubscribe(clientID, filter)
	sess.RemoveSubscription(filter)
	b.hooks.OnUnsubscribed(&hook.Client{ID: clientID}, filter)
	return nil
}

// Close stops the background loops. It does not close the underlying
// session manager or retained store — those outlive a single Broker in
// tests that rebuild a Broker against the same stores.
func (b *Broker) Close() {
	b.closed.Store(true)
	close(b.stopCh)
	b.wg.Wait()
	b.hooks.OnStopped(nil)
	b.hooks.Clear()
}

// Stats is a snapshot of the counters publishSysInfo already tracks,
// exported for callers (cmd/brokerd's Prometheus endpoint) that want them
// outside the $SYS publish cadence.
type Stats struct {
	Uptime           time.Duration
	ClientsConnected int64
	MessagesReceived uint64
	MessagesSent     uint64
	MessagesDropped  uint64
	Subscriptions    int64
	Retained         int64
}

func (b *Broker) Stats() Stats {
	b.mu.RLock()
	connected := int64(len(b.registry))
	b.mu.RUnlock()

	retainedCount, _ := b.retained.Count(context.Background())

	return Stats{
		Uptime:           time.Since(b.startedAt),
		ClientsConnected: connected,
		MessagesReceived: b.messagesReceived.Load(),
		MessagesSent:     b.messagesSent.Load(),
		MessagesDropped:  b.messagesDropped.Load(),
		Subscriptions:    int64(b.topics.Count()),
		Retained:         retainedCount,
	}
}

func (b *Broker) sysInfoLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.sysInfoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.publishSysInfo()
		}
	}
}

func (b *Broker) publishSysInfo() {
	b.mu.RLock()
	connected := int64(len(b.registry))
	b.mu.RUnlock()

	retainedCount, _ := b.retained.Count(context.Background())

	info := &hook.SysInfo{
		Uptime:           int64(time.Since(b.startedAt).Seconds()),
		Started:          b.startedAt,
		Time:             time.Now(),
		ClientsConnected: connected,
		MessagesReceived: int64(b.messagesReceived.Load()),
		MessagesSent:     int64(b.messagesSent.Load()),
		MessagesDropped:  int64(b.messagesDropped.Load()),
		Subscriptions:    int64(b.topics.Count()),
		Retained:         retainedCount,
	}
	b.hooks.OnSysInfoTick(info)
}

func (b *Broker) expirySweepLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.expirySweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			if n, err := b.retained.CleanupExpired(context.Background()); err != nil {
				b.logger.Error("retained expiry sweep failed", "error", err)
			} else if n > 0 {
				b.logger.Debug("retained messages expired", "count", n)
			}
		}
	}
}

// retainedMatcher adapts topic.TopicMatcher to store.TopicMatcher so
// RetainedStore.Match can reuse the same first-level-$-exclusion rule the
// subscription trie applies, without store importing topic.
type retainedMatcher struct {
	m *topic.TopicMatcher
}

func newRetainedMatcher() retainedMatcher {
	return retainedMatcher{m: topic.NewTopicMatcher()}
}

func (rm retainedMatcher) Match(filter, topicName string) bool {
	return rm.m.Match(filter, topicName)
}
