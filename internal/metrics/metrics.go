// Package metrics holds the Prometheus collectors exported by munirpanel.
//
// Collectors are registered on the default registry at init and exposed by
// the panel server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "munirpanel_build_info",
			Help: "Build information of the munir panel",
		},
		[]string{"version", "commit", "date"},
	)

	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "munirpanel_polls_total",
		Help: "Total number of adapter polls by result",
	}, []string{"resource", "result"})

	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "munirpanel_poll_duration_seconds",
		Help:    "Duration of adapter polls",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms .. ~2.5s
	}, []string{"resource"})

	LastSuccessTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "munirpanel_last_success_timestamp_seconds",
		Help: "Unix time of the last successful adapter poll",
	}, []string{"resource"})

	PutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "munirpanel_puts_total",
		Help: "Total number of parameter writes sent to the adapter by result",
	}, []string{"resource", "result"})

	EditsCoalescedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "munirpanel_edits_coalesced_total",
		Help: "Total number of field edits absorbed into an already pending write",
	}, []string{"resource"})

	EditsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "munirpanel_edits_sent_total",
		Help: "Total number of debounced field edits sent to the adapter",
	}, []string{"resource"})

	StreamClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "munirpanel_stream_clients",
		Help: "Number of connected live-update clients",
	}, []string{"transport"})
)
