package topic

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mattjoyce/hookrelay/internal/metrics"
	"github.com/mattjoyce/hookrelay/internal/relayerr"
)

// Backend operation names reported in relayerr.BackendError.
const (
	OpListTopics  = "list_topics"
	OpCreateTopic = "create_topic"
	OpPublish     = "publish"
)

// StructureJSON marks a message whose body is a JSON object keyed by
// delivery protocol ("default", "email", ...).
const StructureJSON = "json"

// Backend is the publish/subscribe service topics live in.
// Implementations must be safe for concurrent use.
type Backend interface {
	// ListTopics returns the resource identifiers of every existing topic.
	ListTopics(ctx context.Context) ([]string, error)

	// CreateTopic creates the named topic and returns its identifier.
	// Creating an existing name must return the existing identifier.
	CreateTopic(ctx context.Context, name string) (string, error)

	// Publish delivers a message and returns the backend message ID.
	Publish(ctx context.Context, in PublishInput) (string, error)
}

// PublishInput describes one message to publish.
type PublishInput struct {
	TargetID   string
	Subject    string
	Message    string
	Structure  string
	DeliveryID string
}

// Handle is a resolved topic.
type Handle struct {
	Name    string
	ID      string
	Created bool
}

// Router resolves integration/event pairs to topics, creating them on
// first use. It keeps no cache: topics may be created by other instances.
type Router struct {
	backend Backend
	logger  *slog.Logger
}

// NewRouter creates a Router over backend.
func NewRouter(backend Backend, logger *slog.Logger) *Router {
	return &Router{backend: backend, logger: logger}
}

// Name returns the topic name for an integration and event type.
func Name(integration, eventType string) string {
	return integration + "_" + eventType
}

// LogicalName returns the last colon-delimited segment of a resource
// identifier. A logical name that itself contains ":" cannot round-trip.
func LogicalName(resourceID string) string {
	if i := strings.LastIndexByte(resourceID, ':'); i >= 0 {
		return resourceID[i+1:]
	}
	return resourceID
}

// Resolve returns the topic for integration and eventType. It lists the
// backend's topics and creates the topic only when no existing identifier
// ends in the expected name. Concurrent creators rely on the backend's
// idempotent create; the result is not re-checked.
func (r *Router) Resolve(ctx context.Context, integration, eventType string) (Handle, error) {
	name := Name(integration, eventType)

	ids, err := r.backend.ListTopics(ctx)
	if err != nil {
		metrics.BackendErrors.WithLabelValues(OpListTopics).Inc()
		return Handle{}, &relayerr.BackendError{Op: OpListTopics, Err: err}
	}

	known := make(map[string]string, len(ids))
	for _, id := range ids {
		known[LogicalName(id)] = id
	}

	if id, ok := known[name]; ok {
		r.logger.Debug("topic found", "topic", name, "topic_id", id)
		return Handle{Name: name, ID: id}, nil
	}

	id, err := r.backend.CreateTopic(ctx, name)
	if err != nil {
		metrics.BackendErrors.WithLabelValues(OpCreateTopic).Inc()
		return Handle{}, &relayerr.BackendError{Op: OpCreateTopic, Err: err}
	}

	metrics.TopicsCreated.Inc()
	r.logger.Info("topic created", "topic", name, "topic_id", id)
	return Handle{Name: name, ID: id, Created: true}, nil
}

// Publish sends message to the resolved topic with subject and the JSON
// message structure.
func (r *Router) Publish(ctx context.Context, h Handle, subject, message, deliveryID string) (string, error) {
	timer := metrics.NewPublishTimer()
	defer timer.ObserveDuration()

	msgID, err := r.backend.Publish(ctx, PublishInput{
		TargetID:   h.ID,
		Subject:    subject,
		Message:    message,
		Structure:  StructureJSON,
		DeliveryID: deliveryID,
	})
	if err != nil {
		metrics.BackendErrors.WithLabelValues(OpPublish).Inc()
		return "", &relayerr.BackendError{Op: OpPublish, Err: err}
	}

	metrics.MessagesPublished.WithLabelValues(h.Name).Inc()
	return msgID, nil
}
