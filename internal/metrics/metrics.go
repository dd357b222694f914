// Package metrics defines the Prometheus collectors exported by the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spotify_now_playing"

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	TokenRequests    *prometheus.CounterVec
	TokenLatency     *prometheus.HistogramVec
	PlaybackRequests *prometheus.CounterVec
	PollIterations   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokenRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_requests_total",
				Help:      "Total number of token endpoint requests.",
			},
			[]string{"grant_type", "result"},
		),
		TokenLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_request_duration_seconds",
				Help:      "Latency of token endpoint requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"grant_type"},
		),
		PlaybackRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "playback_requests_total",
				Help:      "Total number of Web API playback queries by outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		PollIterations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_iterations_total",
				Help:      "Total number of now-playing poll iterations by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

// RecordTokenRequest records a token endpoint call.
func (m *Metrics) RecordTokenRequest(grantType, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TokenRequests.WithLabelValues(grantType, result).Inc()
	m.TokenLatency.WithLabelValues(grantType).Observe(duration.Seconds())
}

// RecordPlaybackRequest records a playback query.
func (m *Metrics) RecordPlaybackRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.PlaybackRequests.WithLabelValues(endpoint, outcome).Inc()
}

// RecordPollIteration records one pass of the now-playing poller.
func (m *Metrics) RecordPollIteration(outcome string) {
	if m == nil {
		return
	}
	m.PollIterations.WithLabelValues(outcome).Inc()
}
