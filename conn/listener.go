package conn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net"
	"time"

	"github.com/coremq/broker/network"
)

// ListenerConfig holds the tunables a Listener builds its accepted
// connections from. ConnConfig.Broker/QoS/Logger are required; every
// accepted connection is built from a copy of it.
type ListenerConfig struct {
	ConnConfig    Config
	PoolConfig    *network.PoolConfig
	NetConfig     *network.ConnectionConfig
	ShutdownGrace time.Duration
}

// Listener accepts raw net.Conn connections, wraps each in a
// network.Connection tracked by a network.Pool, and runs its conn.Conn
// lifecycle to completion in its own goroutine.
type Listener struct {
	cfg    ListenerConfig
	ln     net.Listener
	pool   *network.Pool
	dm     *network.DisconnectManager
	gs     *network.GracefulShutdown
	logger *slog.Logger
}

// NewListener wraps ln, ready for Serve to be called.
func NewListener(ln net.Listener, cfg ListenerConfig) (*Listener, error) {
	cfg.ConnConfig = cfg.ConnConfig.withDefaults()
	poolCfg := cfg.PoolConfig
	if poolCfg == nil {
		poolCfg = network.DefaultPoolConfig()
	}
	pool, err := network.NewPool(poolCfg)
	if err != nil {
		return nil, err
	}
	dm := network.NewDisconnectManager(5 * time.Second)
	grace := cfg.ShutdownGrace
	if grace == 0 {
		grace = 30 * time.Second
	}
	return &Listener{
		cfg:    cfg,
		ln:     ln,
		pool:   pool,
		dm:     dm,
		gs:     network.NewGracefulShutdown(pool, dm, grace),
		logger: cfg.ConnConfig.Logger,
	}, nil
}

// Serve accepts connections until ln is closed or ctx is cancelled,
// spawning a goroutine per connection. It blocks until the accept loop
// exits.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		raw, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go l.handle(ctx, raw)
	}
}

func (l *Listener) handle(ctx context.Context, raw net.Conn) {
	id := randConnID()
	netConn := network.NewConnection(raw, id, l.cfg.NetConfig)
	if err := l.pool.Add(netConn); err != nil {
		l.logger.Warn("conn: pool rejected connection", "error", err)
		_ = netConn.Close()
		return
	}
	defer func() { _ = l.pool.Remove(id) }()

	c := New(netConn, l.cfg.ConnConfig)

	go c.egressLoop()
	c.Serve(ctx)
}

// Shutdown drains the pool's live connections, sending each a
// server-shutting-down DISCONNECT before the configured grace period
// elapses.
func (l *Listener) Shutdown(ctx context.Context) error {
	return l.gs.Shutdown(ctx)
}

func randConnID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
