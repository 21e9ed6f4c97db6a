package mqttmsgr

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

type options struct {
	logger log.FieldLogger
	clock  Clock
	dialer Dialer
	reg    prometheus.Registerer
}

type Option func(*options)

// WithLogger sets the logger. Default is the logrus standard logger.
func WithLogger(l log.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock replaces the wall clock used for every timer.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithRegisterer registers the client's Prometheus collectors with reg. Every
// series carries a "client" label with the client ID, so clients sharing reg
// need distinct IDs. Without it metrics are collected but not registered
// anywhere.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.reg = reg
	}
}
