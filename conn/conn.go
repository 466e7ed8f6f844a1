package conn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	brokerpkg "github.com/coremq/broker/broker"
	"github.com/coremq/broker/encoding"
	"github.com/coremq/broker/fanout"
	"github.com/coremq/broker/network"
	"github.com/coremq/broker/qos"
	"github.com/coremq/broker/session"
	"github.com/coremq/broker/types/message"
)

// Config holds the tunables a Conn is built from. The zero value is usable;
// New fills in a default (withDefaults) for every zero field.
type Config struct {
	Broker   *brokerpkg.Broker
	QoS      *qos.Config
	Logger   *slog.Logger

	// OutboxSize bounds the number of encoded frames buffered for write
	// before Deliver starts reporting back-pressure (false).
	OutboxSize int
	// OfflineQueueSize bounds the in-memory replay queue kept for a
	// disconnected persistent session. Exceeding it drops the oldest
	// queued message (FIFO), matching Limits.MaxQueuedMessages in config.
	OfflineQueueSize int
	// WriteTimeout bounds each egress Write call.
	WriteTimeout time.Duration
	// KeepAliveGrace scales the client-declared Keep Alive interval into
	// the disconnect window per MQTT-3.1.2-24 (one and a half times the
	// Keep Alive value). 1.5 when zero.
	KeepAliveGrace float64
}

func (c Config) withDefaults() Config {
	if c.OutboxSize == 0 {
		c.OutboxSize = 256
	}
	if c.OfflineQueueSize == 0 {
		c.OfflineQueueSize = 1000
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.KeepAliveGrace == 0 {
		c.KeepAliveGrace = 1.5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Conn is one client connection's state machine: CONNECT admission,
// steady-state packet dispatch, QoS1/2 bookkeeping, and the outbox a
// fanout.Deliverer writes through. It implements fanout.Deliverer so the
// broker's registry can address it directly once attached.
type Conn struct {
	cfg     Config
	netConn *network.Connection
	broker  *brokerpkg.Broker
	logger  *slog.Logger

	state stateBox

	mu              sync.RWMutex
	clientID        string
	username        string
	protocolVersion byte
	sess            *session.Session
	online          bool

	qos *qos.Handler

	keepAlive    *network.KeepAlive
	keepAliveDur time.Duration

	outbox chan []byte

	offlineMu sync.Mutex
	offline   []*message.Message

	doneCh    chan struct{}
	closeOnce sync.Once
}

// New wraps an accepted network.Connection, ready for Serve to be called.
func New(netConn *network.Connection, cfg Config) *Conn {
	cfg = cfg.withDefaults()
	c := &Conn{
		cfg:     cfg,
		netConn: netConn,
		broker:  cfg.Broker,
		logger:  cfg.Logger,
		outbox:  make(chan []byte, cfg.OutboxSize),
		doneCh:  make(chan struct{}),
	}
	c.state.store(AwaitingConnect)

	c.qos = qos.NewHandler(cfg.QoS)
	c.qos.SetPublishCallback(c.onInboundPublish)
	c.qos.SetPubackCallback(c.writePuback)
	c.qos.SetPubrecCallback(c.writePubrec)
	c.qos.SetPubcompCallback(c.writePubcomp)

	return c
}

// ClientID implements fanout.Deliverer.
func (c *Conn) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

// ProtocolVersion implements fanout.Deliverer.
func (c *Conn) ProtocolVersion() fanout.ProtocolVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.protocolVersion == byte(encoding.ProtocolVersion311) {
		return fanout.MQTT311
	}
	return fanout.MQTT5
}

// IsOnline implements fanout.Deliverer.
func (c *Conn) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// NextPacketID implements fanout.Deliverer by delegating to the session's
// own packet identifier space, shared with inbound PUBREL bookkeeping.
func (c *Conn) NextPacketID() uint16 {
	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	if sess == nil {
		return 1
	}
	return sess.NextPacketID()
}

// Deliver implements fanout.Deliverer: it tracks QoS1/2 frames as
// outstanding inflight state on the session, then queues payload for the
// egress goroutine. A full outbox reports back-pressure to the caller
// rather than blocking the fan-out router.
func (c *Conn) Deliver(payload []byte, qos encoding.QoS, packetID uint16) bool {
	if !c.IsOnline() {
		return false
	}

	if qos > encoding.QoS0 {
		c.mu.RLock()
		sess := c.sess
		c.mu.RUnlock()
		if sess != nil {
			state := session.AwaitingPubAck
			if qos == encoding.QoS2 {
				state = session.AwaitingPubRec
			}
			sess.AddOutgoing(&session.InflightOut{
				PacketID:    packetID,
				QoS:         byte(qos),
				Kind:        session.KindFull,
				FullPayload: payload,
				State:       state,
				Timestamp:   time.Now(),
			})
		}
	}

	select {
	case c.outbox <- payload:
		return true
	default:
		return false
	}
}

// EnqueueOffline implements fanout.Deliverer for a disconnected persistent
// session: the message is held in memory (bounded, FIFO-dropping oldest)
// until the client reconnects and its subscriptions are replayed.
func (c *Conn) EnqueueOffline(msg *message.Message, qos encoding.QoS, subscriptionIDs []uint32) {
	c.offlineMu.Lock()
	defer c.offlineMu.Unlock()
	if len(c.offline) >= c.cfg.OfflineQueueSize {
		c.offline = c.offline[1:]
	}
	c.offline = append(c.offline, msg)
}

// drainOffline returns and clears the queued offline messages, called once
// a reconnecting client's session has been reattached.
func (c *Conn) drainOffline() []*message.Message {
	c.offlineMu.Lock()
	defer c.offlineMu.Unlock()
	out := c.offline
	c.offline = nil
	return out
}

// setOnline flips the registry-visible online flag without touching the
// broker's registry entry itself (Attach/Detach do that).
func (c *Conn) setOnline(online bool) {
	c.mu.Lock()
	c.online = online
	c.mu.Unlock()
}

func (c *Conn) markConnected(clientID, username string, protocolVersion byte, sess *session.Session, keepAlive time.Duration) {
	c.mu.Lock()
	c.clientID = clientID
	c.username = username
	c.protocolVersion = protocolVersion
	c.sess = sess
	c.online = true
	c.keepAliveDur = keepAlive
	c.mu.Unlock()
}

// Username returns the CONNECT packet's username, used by ACL checks on
// subsequent SUBSCRIBE/PUBLISH packets.
func (c *Conn) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Conn) session() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

// Close begins teardown: it stops accepting new outbound frames, signals
// the ingress/egress goroutines to exit, and closes the underlying
// network.Connection. Safe to call more than once and from either
// goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.store(Closing)
		c.setOnline(false)
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		close(c.doneCh)
		_ = c.netConn.Close()
		_ = c.qos.Close()
		c.state.store(Closed)
	})
}

// egressLoop writes queued frames to the network connection until Close
// fires or a write fails. It is the only goroutine that calls netConn.Write,
// keeping frame boundaries intact under concurrent Deliver calls.
func (c *Conn) egressLoop() {
	for {
		select {
		case <-c.doneCh:
			return
		case payload := <-c.outbox:
			if _, err := c.netConn.Write(payload); err != nil {
				c.logger.Debug("conn: write failed", "client_id", c.ClientID(), "error", err)
				c.Close()
				return
			}
		}
	}
}

// teardown runs the broker-side disconnect bookkeeping once the ingress
// loop exits, distinguishing a clean-session client (fully detached) from
// a persistent one (kept registered as an offline Deliverer stub so future
// publishes still resolve to it via EnqueueOffline).
func (c *Conn) teardown(ctx context.Context, sendWill bool) {
	sess := c.session()
	clientID := c.ClientID()
	if sess == nil || clientID == "" {
		return
	}

	c.setOnline(false)

	if sess.GetCleanStart() {
		if err := c.broker.Disconnect(ctx, clientID, sendWill); err != nil {
			c.logger.Error("conn: disconnect failed", "client_id", clientID, "error", err)
		}
		return
	}

	if err := c.broker.DisconnectSession(ctx, clientID, sendWill); err != nil {
		c.logger.Error("conn: disconnect failed", "client_id", clientID, "error", err)
	}
}
