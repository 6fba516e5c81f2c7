// Package jetstream publishes webhook payloads to NATS JetStream. Each topic
// is a stream capturing a single subject, <prefix>.<topic name>.
package jetstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mattjoyce/hookrelay/internal/topic"
)

// IDPrefix is prepended to stream names to form topic identifiers, so the
// stream name is the last colon-delimited segment.
const IDPrefix = "nats:jetstream:"

// Message headers set on published messages.
const (
	HeaderSubject   = "Subject"
	HeaderStructure = "Message-Structure"
)

// Options configures the NATS connection.
type Options struct {
	URL           string
	CredsFile     string
	SubjectPrefix string
}

// Backend implements topic.Backend on JetStream streams.
type Backend struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
}

// Connect dials NATS and returns a Backend. Call Close when done.
func Connect(ctx context.Context, o Options) (*Backend, error) {
	opts := []nats.Option{
		nats.Name("hookrelay"),
		nats.MaxReconnects(-1),
	}
	if o.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(o.CredsFile))
	}

	nc, err := nats.Connect(o.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	b := NewWithJetStream(js, o.SubjectPrefix)
	b.nc = nc
	return b, nil
}

// NewWithJetStream wraps an existing JetStream context.
func NewWithJetStream(js jetstream.JetStream, subjectPrefix string) *Backend {
	return &Backend{js: js, prefix: subjectPrefix}
}

// Close drains and closes the underlying connection, if owned.
func (b *Backend) Close() error {
	if b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}

// ResourceID returns the topic identifier for a stream name.
func ResourceID(stream string) string {
	return IDPrefix + stream
}

// Subject returns the NATS subject captured by the stream for a topic.
func (b *Backend) Subject(stream string) string {
	return b.prefix + "." + stream
}

func (b *Backend) ListTopics(ctx context.Context) ([]string, error) {
	lister := b.js.StreamNames(ctx)

	var ids []string
	for name := range lister.Name() {
		ids = append(ids, ResourceID(name))
	}
	if err := lister.Err(); err != nil && !errors.Is(err, jetstream.ErrEndOfData) {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	return ids, nil
}

// CreateTopic creates or updates the stream, which is idempotent for an
// unchanged configuration.
func (b *Backend) CreateTopic(ctx context.Context, name string) (string, error) {
	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{b.Subject(name)},
	})
	if err != nil {
		return "", fmt.Errorf("create stream %q: %w", name, err)
	}
	return ResourceID(name), nil
}

func (b *Backend) Publish(ctx context.Context, in topic.PublishInput) (string, error) {
	stream := topic.LogicalName(in.TargetID)

	msg := nats.NewMsg(b.Subject(stream))
	msg.Data = []byte(in.Message)
	msg.Header.Set(HeaderSubject, in.Subject)
	if in.Structure != "" {
		msg.Header.Set(HeaderStructure, in.Structure)
	}

	var opts []jetstream.PublishOpt
	if in.DeliveryID != "" {
		opts = append(opts, jetstream.WithMsgID(in.DeliveryID))
	}

	ack, err := b.js.PublishMsg(ctx, msg, opts...)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", msg.Subject, err)
	}
	return fmt.Sprintf("%s:%d", ack.Stream, ack.Sequence), nil
}
