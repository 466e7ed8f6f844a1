// Package config loads and validates the broker's YAML configuration into
// a Config record. CORE never consumes the YAML document directly — every
// component is handed a validated Config (or one of its sub-structs) built
// by Load.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration record.
type Config struct {
	Server        Server        `yaml:"server"`
	Limits        Limits        `yaml:"limits"`
	Session       Session       `yaml:"session"`
	MQTT          MQTT          `yaml:"mqtt"`
	Auth          Auth          `yaml:"auth"`
	Observability Observability `yaml:"observability"`
}

// Observability holds optional error-reporting and metrics settings.
// Both are no-ops when left unconfigured.
type Observability struct {
	// SentryDSN, if set, enables Sentry error reporting (see pkg/logger).
	SentryDSN   string `yaml:"sentry_dsn"`
	Environment string `yaml:"environment"`
	// MetricsAddr, if set, serves Prometheus metrics at /metrics on this
	// host:port, separate from the MQTT listeners in Server.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Server holds listener and worker settings.
type Server struct {
	// BindAddresses are host:port pairs, one per listener (TCP/TLS/WS).
	BindAddresses []string `yaml:"bind_addresses"`
	Workers       int      `yaml:"workers"`
}

// Limits holds per-connection and broker-wide resource caps.
type Limits struct {
	MaxConnections     int           `yaml:"max_connections"`
	MaxPacketSize      uint32        `yaml:"max_packet_size"`
	MaxInflight        uint16        `yaml:"max_inflight"`
	MaxQueuedMessages  int           `yaml:"max_queued_messages"`
	RetryInterval      time.Duration `yaml:"retry_interval"`
	RateLimit          RateLimit     `yaml:"rate_limit"`
}

// RateLimit bounds inbound PUBLISH throughput at three granularities. Any
// field left at 0 disables that granularity's check; the zero RateLimit
// disables rate limiting entirely (see buildHooks in cmd/brokerd).
type RateLimit struct {
	PerClient int           `yaml:"per_client"`
	PerTopic  int           `yaml:"per_topic"`
	Global    int           `yaml:"global"`
	Window    time.Duration `yaml:"window"`
}

// Session holds session-lifecycle defaults.
type Session struct {
	DefaultKeepAlive    time.Duration `yaml:"default_keep_alive"`
	MaxKeepAlive        time.Duration `yaml:"max_keep_alive"`
	TopicAliasMax       uint16        `yaml:"topic_alias_maximum"`
	ExpiryCheckInterval time.Duration `yaml:"expiry_check_interval"`
}

// MQTT holds protocol capability toggles advertised to clients.
type MQTT struct {
	MaxQoS                        uint8         `yaml:"max_qos"`
	RetainAvailable                bool          `yaml:"retain_available"`
	WildcardsAvailable             bool          `yaml:"wildcards_available"`
	SubscriptionIdentifiersAvailable bool        `yaml:"subscription_identifiers_available"`
	SharedSubscriptionsAvailable   bool          `yaml:"shared_subscriptions_available"`
	SysEnabled                     bool          `yaml:"sys_enabled"`
	SysInterval                    time.Duration `yaml:"sys_interval"`
}

// Auth holds the static user list and ACL patterns for the reference
// auth/ACL hook (see hook package) — entirely optional; an empty Auth
// leaves the broker open, same as the teacher's default-allow hooks.
type Auth struct {
	Users []AuthUser `yaml:"users"`
	ACL   []ACLRule  `yaml:"acl"`
}

// AuthUser is one static username/password credential.
type AuthUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ACLRule grants or denies access to a topic filter pattern.
type ACLRule struct {
	Username    string `yaml:"username"`
	TopicFilter string `yaml:"topic_filter"`
	Access      string `yaml:"access"` // "read", "write", "readwrite", "deny"
}

// Default returns a Config populated with the same defaults CORE's
// individual packages already fall back to when unconfigured (see
// session.ManagerConfig, network.PoolConfig, broker.Config), so a zero-value
// YAML document still produces a runnable broker.
func Default() *Config {
	return &Config{
		Server: Server{
			BindAddresses: []string{":1883"},
			Workers:       1,
		},
		Limits: Limits{
			MaxConnections:    0, // 0 == unlimited
			MaxPacketSize:     268435455,
			MaxInflight:       20,
			MaxQueuedMessages: 1000,
			RetryInterval:     20 * time.Second,
		},
		Session: Session{
			DefaultKeepAlive:    60 * time.Second,
			MaxKeepAlive:        0, // 0 == no server-imposed cap
			TopicAliasMax:       0,
			ExpiryCheckInterval: 30 * time.Second,
		},
		MQTT: MQTT{
			MaxQoS:                           2,
			RetainAvailable:                  true,
			WildcardsAvailable:               true,
			SubscriptionIdentifiersAvailable: true,
			SharedSubscriptionsAvailable:     true,
			SysEnabled:                       true,
			SysInterval:                      10 * time.Second,
		},
	}
}

// Validate rejects invalid values and invalid combinations of values. It is
// called by Load after defaulting, and may also be called directly by
// callers that build a Config programmatically (e.g. tests).
func (c *Config) Validate() error {
	if len(c.Server.BindAddresses) == 0 {
		return fmt.Errorf("%w: server.bind_addresses must not be empty", ErrInvalidConfig)
	}
	if c.Server.Workers < 0 {
		return fmt.Errorf("%w: server.workers must be >= 0", ErrInvalidConfig)
	}

	if c.MQTT.MaxQoS > 2 {
		return fmt.Errorf("%w: mqtt.max_qos must be 0, 1, or 2", ErrInvalidConfig)
	}
	if c.MQTT.SysEnabled {
		// $SYS topics are delivered as retained messages (§6), so a broker
		// that refuses retained messages cannot serve them at all.
		if !c.MQTT.RetainAvailable {
			return fmt.Errorf("%w: mqtt.sys_enabled requires mqtt.retain_available", ErrInvalidConfig)
		}
		if c.MQTT.SysInterval <= 0 {
			return fmt.Errorf("%w: mqtt.sys_interval must be > 0 when mqtt.sys_enabled", ErrInvalidConfig)
		}
	}

	if c.Session.MaxKeepAlive > 0 && c.Session.DefaultKeepAlive > c.Session.MaxKeepAlive {
		return fmt.Errorf("%w: session.default_keep_alive exceeds session.max_keep_alive", ErrInvalidConfig)
	}
	if c.Session.ExpiryCheckInterval <= 0 {
		return fmt.Errorf("%w: session.expiry_check_interval must be > 0", ErrInvalidConfig)
	}

	if c.Limits.MaxPacketSize == 0 {
		return fmt.Errorf("%w: limits.max_packet_size must be > 0", ErrInvalidConfig)
	}
	if c.Limits.MaxInflight == 0 {
		return fmt.Errorf("%w: limits.max_inflight must be > 0", ErrInvalidConfig)
	}
	rl := c.Limits.RateLimit
	if (rl.PerClient > 0 || rl.PerTopic > 0 || rl.Global > 0) && rl.Window <= 0 {
		return fmt.Errorf("%w: limits.rate_limit.window must be > 0 when a rate limit is set", ErrInvalidConfig)
	}

	for _, rule := range c.Auth.ACL {
		switch rule.Access {
		case "read", "write", "readwrite", "deny":
		default:
			return fmt.Errorf("%w: acl rule for %q has invalid access %q", ErrInvalidConfig, rule.TopicFilter, rule.Access)
		}
	}

	return nil
}
