package webhook

import (
	"context"

	"github.com/mattjoyce/hookrelay/internal/relay"
)

// Relayer processes one webhook delivery.
type Relayer interface {
	Handle(ctx context.Context, req relay.Request) (relay.Ack, error)
}

// Config holds webhook server configuration.
type Config struct {
	Listen string `yaml:"listen"`

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64 `yaml:"max_body_size,omitempty"`
}

// ErrorResponse is the JSON response for webhook errors. It mirrors the
// shape of relay.Ack.
type ErrorResponse struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

// HealthResponse is the JSON response for the liveness endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// Default values
const (
	DefaultMaxBodySize = 1048576 // 1 MB
)
