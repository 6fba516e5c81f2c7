// Package backend builds the configured topic backend.
package backend

import (
	"context"
	"fmt"

	"github.com/mattjoyce/hookrelay/internal/backend/jetstream"
	"github.com/mattjoyce/hookrelay/internal/backend/memory"
	"github.com/mattjoyce/hookrelay/internal/backend/sns"
	"github.com/mattjoyce/hookrelay/internal/config"
	"github.com/mattjoyce/hookrelay/internal/topic"
)

// CloseFunc releases backend resources.
type CloseFunc func() error

func noopClose() error { return nil }

// Open connects to the backend selected by cfg.Kind. The returned client is
// long-lived and shared by all requests.
func Open(ctx context.Context, cfg config.BackendConfig) (topic.Backend, CloseFunc, error) {
	switch cfg.Kind {
	case config.BackendSNS:
		b, err := sns.New(ctx, sns.Options{
			Region:          cfg.SNS.Region,
			Endpoint:        cfg.SNS.Endpoint,
			AccessKeyID:     cfg.SNS.AccessKeyID,
			SecretAccessKey: cfg.SNS.SecretAccessKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, noopClose, nil

	case config.BackendJetStream:
		b, err := jetstream.Connect(ctx, jetstream.Options{
			URL:           cfg.JetStream.URL,
			CredsFile:     cfg.JetStream.CredsFile,
			SubjectPrefix: cfg.JetStream.SubjectPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil

	case config.BackendMemory:
		return memory.New(), noopClose, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Kind)
	}
}
