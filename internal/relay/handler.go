// Package relay turns an authenticated webhook delivery into a message on the
// topic for its integration and event type.
//
// Per delivery the handler makes at most one topic listing, at most one topic
// creation and exactly one publish, in that order. It holds no state between
// deliveries and does no retries; callers own timeouts through ctx.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mattjoyce/hookrelay/internal/log"
	"github.com/mattjoyce/hookrelay/internal/metrics"
	"github.com/mattjoyce/hookrelay/internal/relayerr"
	"github.com/mattjoyce/hookrelay/internal/topic"
)

// Request headers read by the handler.
const (
	EventHeader    = "X-GitHub-Event"
	DeliveryHeader = "X-GitHub-Delivery"
)

// Request is one inbound webhook delivery.
type Request struct {
	// Integration is the path segment naming the sender.
	Integration string
	Header      http.Header
	Body        []byte
}

// Ack is the body returned for an accepted webhook.
type Ack struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

// Accepted is the acknowledgement for every successfully relayed webhook.
var Accepted = Ack{Code: "Ok", Message: "Webhook received."}

// Authenticator verifies request signatures.
type Authenticator interface {
	Validate(h http.Header, body []byte) error
}

// TopicRouter resolves and publishes to topics.
type TopicRouter interface {
	Resolve(ctx context.Context, integration, eventType string) (topic.Handle, error)
	Publish(ctx context.Context, h topic.Handle, subject, message, deliveryID string) (string, error)
}

// Handler authenticates a webhook and republishes it to its topic.
type Handler struct {
	auth   Authenticator
	router TopicRouter
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(auth Authenticator, router TopicRouter, logger *slog.Logger) *Handler {
	return &Handler{auth: auth, router: router, logger: logger}
}

// Handle relays req. Errors are *relayerr types: malformed, unauthorized or
// backend failures.
func (h *Handler) Handle(ctx context.Context, req Request) (Ack, error) {
	deliveryID := req.Header.Get(DeliveryHeader)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	logger := log.WithDelivery(h.logger, deliveryID).With("integration", req.Integration)

	metrics.WebhooksReceived.WithLabelValues(req.Integration).Inc()

	ack, err := h.relay(ctx, req, deliveryID, logger)
	if err != nil {
		h.record(logger, err)
		return Ack{}, err
	}
	return ack, nil
}

func (h *Handler) relay(ctx context.Context, req Request, deliveryID string, logger *slog.Logger) (Ack, error) {
	if req.Integration == "" {
		return Ack{}, relayerr.Malformed("missing integration")
	}

	eventType := req.Header.Get(EventHeader)
	if eventType == "" {
		return Ack{}, relayerr.Malformed("missing event type header")
	}

	if err := h.auth.Validate(req.Header, req.Body); err != nil {
		return Ack{}, err
	}

	message, err := Envelope(req.Body)
	if err != nil {
		return Ack{}, err
	}

	t, err := h.router.Resolve(ctx, req.Integration, eventType)
	if err != nil {
		return Ack{}, err
	}

	msgID, err := h.router.Publish(ctx, t, eventType, message, deliveryID)
	if err != nil {
		return Ack{}, err
	}

	logger.Info("webhook published",
		"event", eventType,
		"topic", t.Name,
		"topic_created", t.Created,
		"message_id", msgID,
	)
	return Accepted, nil
}

// record logs and counts a failed delivery. Only the error's public form is
// logged for client errors; backend detail is logged for operators.
func (h *Handler) record(logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, relayerr.ErrMalformed):
		metrics.WebhooksRejected.WithLabelValues(metrics.ReasonMalformed).Inc()
		logger.Warn("webhook rejected", "reason", relayerr.PublicMessage(err))
	case errors.Is(err, relayerr.ErrUnauthorized):
		metrics.WebhooksRejected.WithLabelValues(metrics.ReasonUnauthorized).Inc()
		logger.Warn("webhook rejected", "reason", relayerr.PublicMessage(err))
	default:
		logger.Error("webhook relay failed", "error", err)
	}
}
