package jetstream

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookrelay/internal/topic"
)

type nameLister struct {
	names chan string
	err   error
}

func (l *nameLister) Name() <-chan string { return l.names }
func (l *nameLister) Err() error          { return l.err }

func newLister(err error, names ...string) *nameLister {
	ch := make(chan string, len(names))
	for _, n := range names {
		ch <- n
	}
	close(ch)
	return &nameLister{names: ch, err: err}
}

// fakeJetStream overrides the calls Backend makes; anything else panics
// through the nil embedded interface.
type fakeJetStream struct {
	jetstream.JetStream

	lister    *nameLister
	created   []jetstream.StreamConfig
	createErr error
	published []*nats.Msg
	pubOpts   int
	pubErr    error
}

func (f *fakeJetStream) StreamNames(ctx context.Context, _ ...jetstream.StreamListOpt) jetstream.StreamNameLister {
	return f.lister
}

func (f *fakeJetStream) CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, cfg)
	return nil, nil
}

func (f *fakeJetStream) PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.pubErr != nil {
		return nil, f.pubErr
	}
	f.published = append(f.published, msg)
	f.pubOpts = len(opts)
	return &jetstream.PubAck{Stream: "123_push", Sequence: 7}, nil
}

func TestListTopics(t *testing.T) {
	js := &fakeJetStream{lister: newLister(nil, "123_push", "123_issues")}
	b := NewWithJetStream(js, "hookrelay")

	ids, err := b.ListTopics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"nats:jetstream:123_push", "nats:jetstream:123_issues"}, ids)

	for _, id := range ids {
		assert.NotContains(t, topic.LogicalName(id), ":")
	}
}

func TestListTopics_Error(t *testing.T) {
	cause := errors.New("jetstream not enabled")
	b := NewWithJetStream(&fakeJetStream{lister: newLister(cause)}, "hookrelay")

	_, err := b.ListTopics(context.Background())
	assert.ErrorIs(t, err, cause)
}

func TestCreateTopic(t *testing.T) {
	js := &fakeJetStream{}
	b := NewWithJetStream(js, "hooks")

	id, err := b.CreateTopic(context.Background(), "123_push")
	require.NoError(t, err)
	assert.Equal(t, "nats:jetstream:123_push", id)
	require.Len(t, js.created, 1)
	assert.Equal(t, "123_push", js.created[0].Name)
	assert.Equal(t, []string{"hooks.123_push"}, js.created[0].Subjects)

	js.createErr = errors.New("invalid stream name")
	_, err = b.CreateTopic(context.Background(), "bad.name")
	assert.Error(t, err)
}

func TestPublish(t *testing.T) {
	js := &fakeJetStream{}
	b := NewWithJetStream(js, "hookrelay")

	msgID, err := b.Publish(context.Background(), topic.PublishInput{
		TargetID:   "nats:jetstream:123_push",
		Subject:    "push",
		Message:    `{"default":"{}"}`,
		Structure:  topic.StructureJSON,
		DeliveryID: "d-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "123_push:7", msgID)

	require.Len(t, js.published, 1)
	msg := js.published[0]
	assert.Equal(t, "hookrelay.123_push", msg.Subject)
	assert.Equal(t, `{"default":"{}"}`, string(msg.Data))
	assert.Equal(t, "push", msg.Header.Get(HeaderSubject))
	assert.Equal(t, "json", msg.Header.Get(HeaderStructure))
	assert.Equal(t, 1, js.pubOpts)
}

func TestPublish_Error(t *testing.T) {
	cause := errors.New("no responders")
	b := NewWithJetStream(&fakeJetStream{pubErr: cause}, "hookrelay")

	_, err := b.Publish(context.Background(), topic.PublishInput{TargetID: "nats:jetstream:x"})
	assert.ErrorIs(t, err, cause)
}

func TestCloseWithoutConnection(t *testing.T) {
	assert.NoError(t, NewWithJetStream(&fakeJetStream{}, "hookrelay").Close())
}
