package transport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spacemeshos/go-parindex/metrics"
)

const subsystem = "transport"

var (
	messages = metrics.NewCounter(
		"messages",
		subsystem,
		"number of messages by direction",
		[]string{"kind", "tag", "direction"},
	)
	bytesCount = metrics.NewCounter(
		"bytes",
		subsystem,
		"payload bytes by direction",
		[]string{"kind", "tag", "direction"},
	)
	exchangeLatency = metrics.NewHistogramWithBuckets(
		"exchange_latency_seconds",
		subsystem,
		"duration of a neighbour exchange",
		[]string{"tag"},
		prometheus.ExponentialBuckets(0.0001, 4, 10),
	)
)

// Tracker counts traffic of one transport implementation.
type Tracker struct {
	kind string
}

// NewTracker creates a tracker labelled with the transport kind.
func NewTracker(kind string) *Tracker {
	return &Tracker{kind: kind}
}

// Sent records an outgoing message.
func (t *Tracker) Sent(tag Tag, size int) {
	messages.WithLabelValues(t.kind, tag.String(), "sent").Inc()
	bytesCount.WithLabelValues(t.kind, tag.String(), "sent").Add(float64(size))
}

// Received records an incoming message.
func (t *Tracker) Received(tag Tag, size int) {
	messages.WithLabelValues(t.kind, tag.String(), "received").Inc()
	bytesCount.WithLabelValues(t.kind, tag.String(), "received").Add(float64(size))
}
