// Package metrics exposes Prometheus collectors for the actors.
//
// A nil *Metrics is valid and records nothing, so components take one
// unconditionally and callers pass nil when metrics are disabled.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/najoast/socialshard/core"
)

const namespace = "socialshard"

// Broadcast results.
const (
	BroadcastSent    = "sent"
	BroadcastDropped = "dropped"
)

// Metrics holds every collector the process reports.
type Metrics struct {
	claims          *prometheus.CounterVec
	roleChanges     *prometheus.CounterVec
	scoreUpdates    prometheus.Counter
	trims           prometheus.Counter
	broadcasts      *prometheus.CounterVec
	feedSize        prometheus.Gauge
	messages        *prometheus.CounterVec
	messageDuration *prometheus.HistogramVec
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "username_claims_total",
			Help:      "Username claims by outcome",
		}, []string{"outcome"}),
		roleChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_changes_total",
			Help:      "Role grants and revocations",
		}, []string{"op", "role"}),
		scoreUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_updates_total",
			Help:      "Score index upserts",
		}),
		trims: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_index_trims_total",
			Help:      "Score index trims from the soft cap down to the hard cap",
		}),
		broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "top_post_broadcasts_total",
			Help:      "Top post broadcasts by result",
		}, []string{"result"}),
		feedSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "top_posts_feed_size",
			Help:      "Entries held by the aggregated feed",
		}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actor_messages_total",
			Help:      "Messages handled by actors",
		}, []string{"service", "method", "result"}),
		messageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "actor_message_duration_seconds",
			Help:      "Handler latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"service", "method"}),
	}
}

// Handler serves the metrics of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordClaim counts a claim. outcome is "ok" or the refusal kind.
func (m *Metrics) RecordClaim(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(outcome).Inc()
}

// RecordRoleChange counts a grant or revoke.
func (m *Metrics) RecordRoleChange(op, role string) {
	if m == nil {
		return
	}
	m.roleChanges.WithLabelValues(op, role).Inc()
}

// RecordScoreUpdate counts an upsert and, when it trimmed, a trim.
func (m *Metrics) RecordScoreUpdate(trimmed bool) {
	if m == nil {
		return
	}
	m.scoreUpdates.Inc()
	if trimmed {
		m.trims.Inc()
	}
}

// RecordBroadcast counts a fan-out attempt.
func (m *Metrics) RecordBroadcast(result string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(result).Inc()
}

// SetFeedSize reports the aggregated feed length.
func (m *Metrics) SetFeedSize(n int) {
	if m == nil {
		return
	}
	m.feedSize.Set(float64(n))
}

// ObserveMessage records one handled message.
func (m *Metrics) ObserveMessage(service, method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(service, method, resultLabel(err)).Inc()
	m.messageDuration.WithLabelValues(service, method).Observe(d.Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, core.ErrUnknownMethod):
		return "unknown_method"
	case errors.Is(err, core.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "error"
	}
}

// InstrumentHandler wraps h so every message it handles is counted and
// timed under service.
func InstrumentHandler(m *Metrics, service string, h core.MessageHandler) core.MessageHandler {
	if m == nil {
		return h
	}
	return core.HandlerFunc(func(ctx context.Context, msg *core.Message) ([]byte, error) {
		start := time.Now()
		data, err := h.HandleMessage(ctx, msg)
		m.ObserveMessage(service, msg.Method, time.Since(start), err)
		return data, err
	})
}
