package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coremq/broker/broker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// brokerCollector polls broker.Broker.Stats() on scrape and reports the
// counters as a Prometheus gauge set, rather than wiring a promauto
// Counter into Broker itself — Broker's own atomic counters already are
// the source of truth, so this just republishes them.
type brokerCollector struct {
	b *broker.Broker

	clientsConnected *prometheus.Desc
	messagesReceived *prometheus.Desc
	messagesSent     *prometheus.Desc
	messagesDropped  *prometheus.Desc
	subscriptions    *prometheus.Desc
	retained         *prometheus.Desc
	uptimeSeconds    *prometheus.Desc
}

func newBrokerCollector(b *broker.Broker) *brokerCollector {
	ns := "coremq_broker"
	return &brokerCollector{
		b:                b,
		clientsConnected: prometheus.NewDesc(ns+"_clients_connected", "Number of currently connected clients.", nil, nil),
		messagesReceived: prometheus.NewDesc(ns+"_messages_received_total", "Total PUBLISH packets received from clients.", nil, nil),
		messagesSent:     prometheus.NewDesc(ns+"_messages_sent_total", "Total PUBLISH packets delivered to clients.", nil, nil),
		messagesDropped:  prometheus.NewDesc(ns+"_messages_dropped_total", "Total messages dropped before delivery.", nil, nil),
		subscriptions:    prometheus.NewDesc(ns+"_subscriptions", "Number of active topic subscriptions.", nil, nil),
		retained:         prometheus.NewDesc(ns+"_retained_messages", "Number of retained messages held.", nil, nil),
		uptimeSeconds:    prometheus.NewDesc(ns+"_uptime_seconds", "Seconds since the broker started.", nil, nil),
	}
}

func (c *brokerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.clientsConnected
	ch <- c.messagesReceived
	ch <- c.messagesSent
	ch <- c.messagesDropped
	ch <- c.subscriptions
	ch <- c.retained
	ch <- c.uptimeSeconds
}

func (c *brokerCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.b.Stats()
	ch <- prometheus.MustNewConstMetric(c.clientsConnected, prometheus.GaugeValue, float64(s.ClientsConnected))
	ch <- prometheus.MustNewConstMetric(c.messagesReceived, prometheus.CounterValue, float64(s.MessagesReceived))
	ch <- prometheus.MustNewConstMetric(c.messagesSent, prometheus.CounterValue, float64(s.MessagesSent))
	ch <- prometheus.MustNewConstMetric(c.messagesDropped, prometheus.CounterValue, float64(s.MessagesDropped))
	ch <- prometheus.MustNewConstMetric(c.subscriptions, prometheus.GaugeValue, float64(s.Subscriptions))
	ch <- prometheus.MustNewConstMetric(c.retained, prometheus.GaugeValue, float64(s.Retained))
	ch <- prometheus.MustNewConstMetric(c.uptimeSeconds, prometheus.GaugeValue, s.Uptime.Seconds())
}

// buildInfo is a fixed gauge (the standard Prometheus "info" pattern) so
// the binary's version shows up in queries without a separate endpoint.
var buildInfo = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "coremq_broker_build_info",
	Help: "Always 1; present so scrape-side joins can key on static labels.",
})

// startMetricsServer serves /metrics on addr until ctx is cancelled. It
// registers its own prometheus.Registry rather than the global default,
// so running brokerd as a library doesn't leak global collector state.
func startMetricsServer(ctx context.Context, addr string, b *broker.Broker, log *slog.Logger) *http.Server {
	buildInfo.Set(1)

	reg := prometheus.NewRegistry()
	reg.MustRegister(newBrokerCollector(b), buildInfo)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("brokerd: metrics server exited", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv
}
