package conn

import (
	"time"

	"github.com/coremq/broker/network"
)

// startKeepAlive arms the idle-disconnect timer against the client's
// declared Keep Alive interval. The broker is the server side of the
// connection and never pings a client (MQTT-3.1.2-24 only obligates the
// client to send control packets); PongHandler is left nil here too since
// onPacketReceived feeds KeepAlive.OnPong() directly on every parsed frame,
// not only PINGREQ. Timeout is half the interval so Interval+Timeout works
// out to the mandated one-and-a-half times the Keep Alive value.
func (c *Conn) startKeepAlive() {
	interval := c.keepAliveDur
	timeout := time.Duration(float64(interval) * (c.cfg.KeepAliveGrace - 1))
	c.keepAlive = network.NewKeepAlive(c.netConn, &network.KeepAliveConfig{
		Interval:   interval,
		Timeout:    timeout,
		MaxRetries: 1,
	})
	c.keepAlive.Start()
}

// onPacketReceived resets the keep-alive idle timer. Any control packet,
// not only PINGREQ, counts as proof of liveness.
func (c *Conn) onPacketReceived() {
	if c.keepAlive != nil {
		c.keepAlive.OnPong()
	}
}
