package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_webhooks_received_total",
		Help: "Total number of webhook requests received.",
	}, []string{"integration"})

	WebhooksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_webhooks_rejected_total",
		Help: "Total number of webhook requests rejected before publishing.",
	}, []string{"reason"})

	TopicsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hookrelay_topics_created_total",
		Help: "Total number of topics created on first use.",
	})

	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_messages_published_total",
		Help: "Total number of messages published to the backend.",
	}, []string{"topic"})

	BackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_backend_errors_total",
		Help: "Total number of failed backend calls.",
	}, []string{"op"})

	PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hookrelay_publish_duration_seconds",
		Help:    "Duration of backend publish calls.",
		Buckets: prometheus.DefBuckets,
	})
)

// Rejection reasons.
const (
	ReasonMalformed    = "malformed"
	ReasonUnauthorized = "unauthorized"
	ReasonTooLarge     = "too_large"
)

// NewPublishTimer starts a timer observed into PublishDuration.
func NewPublishTimer() *prometheus.Timer {
	return prometheus.NewTimer(PublishDuration)
}
