// Command brokerd runs a standalone MQTT broker: it loads a YAML config,
// wires the session/retained stores, hook pipeline, and broker orchestrator
// together, then accepts client connections on every configured listener
// until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coremq/broker/broker"
	"github.com/coremq/broker/config"
	"github.com/coremq/broker/conn"
	"github.com/coremq/broker/hook"
	"github.com/coremq/broker/pkg/logger"
	"github.com/coremq/broker/qos"
	"github.com/coremq/broker/session"
	"github.com/coremq/broker/store"
)

func main() {
	configPath := flag.String("config", "", "path to broker YAML config (defaults built in if omitted)")
	flag.Parse()

	slogLogger := logger.NewSlogLogger(slog.LevelInfo, os.Stdout)
	log := slogLogger.Slog()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error("brokerd: config load failed", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		log.Error("brokerd: invalid config", "error", err)
		os.Exit(1)
	}

	if err := logger.InitSentry(cfg.Observability.SentryDSN, cfg.Observability.Environment); err != nil {
		log.Error("brokerd: sentry init failed", "error", err)
	} else if cfg.Observability.SentryDSN != "" {
		slogLogger.WithSentry()
		defer logger.FlushSentry(2 * time.Second)
	}

	b, err := buildBroker(cfg, log)
	if err != nil {
		log.Error("brokerd: broker construction failed", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listeners, err := startListeners(ctx, cfg, b, log)
	if err != nil {
		log.Error("brokerd: listener setup failed", "error", err)
		os.Exit(1)
	}

	if cfg.Observability.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.Observability.MetricsAddr, b, log)
		log.Info("brokerd: metrics listening", "addr", cfg.Observability.MetricsAddr)
	}

	<-ctx.Done()
	log.Info("brokerd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for _, l := range listeners {
		wg.Add(1)
		go func(l *conn.Listener) {
			defer wg.Done()
			if err := l.Shutdown(shutdownCtx); err != nil {
				log.Warn("brokerd: listener shutdown error", "error", err)
			}
		}(l)
	}
	wg.Wait()
}

// willForwarder resolves the session.Manager/Broker construction-order
// cycle: session.NewManager needs a session.WillPublisher before
// broker.New exists to provide one. The forwarder is handed to the
// manager immediately and pointed at the broker right after New returns.
type willForwarder struct {
	b *broker.Broker
}

func (f *willForwarder) PublishWill(ctx context.Context, will *session.WillMessage, clientID string) error {
	return f.b.PublishWill(ctx, will, clientID)
}

// buildSessionStore always returns the in-memory session store: sessions
// are in-memory only, never persisted to disk or an external store.
func buildSessionStore(*config.Config) (session.Store, error) {
	return session.NewMemoryStore(), nil
}

func buildHooks(cfg *config.Config) (*hook.Manager, error) {
	mgr := hook.NewManager()

	if len(cfg.Auth.Users) > 0 {
		authHook := hook.NewBasicAuthHook()
		for _, u := range cfg.Auth.Users {
			authHook.AddUser(u.Username, u.Password)
		}
		if err := mgr.Add(authHook); err != nil {
			return nil, fmt.Errorf("brokerd: registering auth hook: %w", err)
		}
	} else {
		if err := mgr.Add(hook.NewAnonymousAuthHook(true)); err != nil {
			return nil, fmt.Errorf("brokerd: registering anonymous-auth hook: %w", err)
		}
	}

	if len(cfg.Auth.ACL) > 0 {
		rules := make([]hook.ACLRule, len(cfg.Auth.ACL))
		for i, r := range cfg.Auth.ACL {
			rules[i] = hook.ACLRule{Username: r.Username, TopicFilter: r.TopicFilter, Access: r.Access}
		}
		if err := mgr.Add(hook.NewACLHook(rules)); err != nil {
			return nil, fmt.Errorf("brokerd: registering acl hook: %w", err)
		}
	}

	rl := cfg.Limits.RateLimit
	if rl.PerClient > 0 || rl.PerTopic > 0 || rl.Global > 0 {
		rateHook := hook.NewMultiLevelRateLimitHook(rl.PerClient, rl.PerTopic, rl.Global, rl.Window)
		if err := mgr.Add(rateHook); err != nil {
			return nil, fmt.Errorf("brokerd: registering rate-limit hook: %w", err)
		}
	}

	return mgr, nil
}

func buildBroker(cfg *config.Config, log *slog.Logger) (*broker.Broker, error) {
	sessStore, err := buildSessionStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("brokerd: session store: %w", err)
	}

	forwarder := &willForwarder{}
	sessionMgr := session.NewManager(session.ManagerConfig{
		Store:               sessStore,
		ExpiryCheckInterval: cfg.Session.ExpiryCheckInterval,
		WillPublisher:       forwarder,
	})

	hooks, err := buildHooks(cfg)
	if err != nil {
		return nil, err
	}

	b := broker.New(broker.Config{
		SessionManager:   sessionMgr,
		Retained:         store.NewRetainedStore(),
		Hooks:            hooks,
		Logger:           log,
		SysInfoInterval:  cfg.MQTT.SysInterval,
		ExpirySweepEvery: cfg.Session.ExpiryCheckInterval,
	})
	forwarder.b = b
	return b, nil
}

func startListeners(ctx context.Context, cfg *config.Config, b *broker.Broker, log *slog.Logger) ([]*conn.Listener, error) {
	qosCfg := qos.DefaultConfig()
	qosCfg.MaxInflight = cfg.Limits.MaxInflight
	qosCfg.RetryInterval = cfg.Limits.RetryInterval

	var listeners []*conn.Listener
	for _, addr := range cfg.Server.BindAddresses {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Shutdown(ctx)
			}
			return nil, fmt.Errorf("brokerd: listen %s: %w", addr, err)
		}

		l, err := conn.NewListener(ln, conn.ListenerConfig{
			ConnConfig: conn.Config{
				Broker:           b,
				QoS:              qosCfg,
				Logger:           log,
				OfflineQueueSize: cfg.Limits.MaxQueuedMessages,
			},
		})
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("brokerd: listener %s: %w", addr, err)
		}

		log.Info("brokerd: listening", "addr", addr)
		go func() {
			if err := l.Serve(ctx); err != nil {
				log.Error("brokerd: accept loop exited", "addr", addr, "error", err)
			}
		}()
		listeners = append(listeners, l)
	}
	return listeners, nil
}
