// Package memory is an in-process topic backend for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mattjoyce/hookrelay/internal/topic"
)

// DefaultPrefix is prepended to topic names to form identifiers.
const DefaultPrefix = "arn:memory:local"

// Message is a published message as recorded by the backend.
type Message struct {
	ID         string
	TopicID    string
	Subject    string
	Body       string
	Structure  string
	DeliveryID string
}

// Calls counts backend invocations by operation.
type Calls struct {
	ListTopics  int
	CreateTopic int
	Publish     int
}

// Backend stores topics and messages in memory.
type Backend struct {
	mu       sync.Mutex
	prefix   string
	ids      []string
	messages []Message
	calls    Calls
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{prefix: DefaultPrefix}
}

// Seed registers existing topic identifiers verbatim.
func (b *Backend) Seed(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, ids...)
}

func (b *Backend) ListTopics(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls.ListTopics++
	return append([]string(nil), b.ids...), nil
}

// CreateTopic is idempotent per name, like SNS.
func (b *Backend) CreateTopic(ctx context.Context, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls.CreateTopic++
	if id, ok := b.find(name); ok {
		return id, nil
	}

	id := b.prefix + ":" + name
	b.ids = append(b.ids, id)
	return id, nil
}

func (b *Backend) Publish(ctx context.Context, in topic.PublishInput) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls.Publish++
	if !b.exists(in.TargetID) {
		return "", fmt.Errorf("topic %q does not exist", in.TargetID)
	}

	msg := Message{
		ID:         uuid.NewString(),
		TopicID:    in.TargetID,
		Subject:    in.Subject,
		Body:       in.Message,
		Structure:  in.Structure,
		DeliveryID: in.DeliveryID,
	}
	b.messages = append(b.messages, msg)
	return msg.ID, nil
}

// Messages returns a copy of all published messages in publish order.
func (b *Backend) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.messages...)
}

// Calls returns the invocation counters.
func (b *Backend) Calls() Calls {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *Backend) find(name string) (string, bool) {
	for _, id := range b.ids {
		if topic.LogicalName(id) == name {
			return id, true
		}
	}
	return "", false
}

func (b *Backend) exists(id string) bool {
	for _, known := range b.ids {
		if known == id {
			return true
		}
	}
	return false
}
