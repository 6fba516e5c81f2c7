package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookrelay/internal/backend/memory"
	"github.com/mattjoyce/hookrelay/internal/config"
	"github.com/mattjoyce/hookrelay/internal/relay"
	"github.com/mattjoyce/hookrelay/internal/relayerr"
	"github.com/mattjoyce/hookrelay/internal/signature"
	"github.com/mattjoyce/hookrelay/internal/topic"
)

// mockRelayer is a mock implementation of Relayer for testing.
type mockRelayer struct {
	handleFn func(ctx context.Context, req relay.Request) (relay.Ack, error)
}

func (m *mockRelayer) Handle(ctx context.Context, req relay.Request) (relay.Ack, error) {
	if m.handleFn != nil {
		return m.handleFn(ctx, req)
	}
	return relay.Accepted, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleWebhook_PassesRequestToRelay(t *testing.T) {
	body := []byte(`{"zen":"Design for failure."}`)

	mr := &mockRelayer{
		handleFn: func(ctx context.Context, req relay.Request) (relay.Ack, error) {
			assert.Equal(t, "my-integration", req.Integration)
			assert.Equal(t, "ping", req.Header.Get(relay.EventHeader))
			assert.Equal(t, string(body), string(req.Body))
			return relay.Accepted, nil
		},
	}
	server := New(Config{Listen: "127.0.0.1:0"}, mr, testLogger())

	req := httptest.NewRequest("POST", "/my-integration", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "ping")
	rec := serve(server, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"Code":"Ok","Message":"Webhook received."}`, rec.Body.String())
}

func TestHandleWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"malformed", relayerr.Malformed("missing signature header"), http.StatusBadRequest, "BadRequestError", "missing signature header"},
		{"unauthorized", relayerr.Unauthorized("signature mismatch"), http.StatusUnauthorized, "UnauthorizedError", "signature mismatch"},
		{"backend", &relayerr.BackendError{Op: "publish", Err: errors.New("arn:aws:sns:eu-west-1:123456789012:x denied")}, http.StatusBadGateway, "BackendError", "messaging backend unavailable"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "InternalServerError", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := &mockRelayer{
				handleFn: func(ctx context.Context, req relay.Request) (relay.Ack, error) {
					return relay.Ack{}, tt.err
				},
			}
			server := New(Config{Listen: "127.0.0.1:0"}, mr, testLogger())

			rec := serve(server, httptest.NewRequest("POST", "/123", strings.NewReader(`{}`)))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantMsg, resp.Message)
		})
	}
}

func TestHandleWebhook_BodyTooLarge(t *testing.T) {
	mr := &mockRelayer{
		handleFn: func(ctx context.Context, req relay.Request) (relay.Ack, error) {
			t.Fatal("Handle should not be called for an oversized body")
			return relay.Ack{}, nil
		},
	}
	server := New(Config{Listen: "127.0.0.1:0", MaxBodySize: 1024}, mr, testLogger())

	body := bytes.Repeat([]byte("a"), 2048)
	rec := serve(server, httptest.NewRequest("POST", "/123", bytes.NewReader(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleWebhook_MethodAndPath(t *testing.T) {
	server := New(Config{Listen: "127.0.0.1:0"}, &mockRelayer{}, testLogger())

	rec := serve(server, httptest.NewRequest("GET", "/123", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(server, httptest.NewRequest("POST", "/a/b", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	server := New(Config{Listen: "127.0.0.1:0"}, &mockRelayer{}, testLogger())

	rec := serve(server, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	server := New(Config{Listen: "127.0.0.1:0"}, &mockRelayer{}, testLogger())

	serve(server, httptest.NewRequest("POST", "/metrics-probe", strings.NewReader(`{}`)))
	rec := serve(server, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNew_AppliesDefaults(t *testing.T) {
	server := New(Config{Listen: "127.0.0.1:0"}, &mockRelayer{}, testLogger())
	assert.Equal(t, int64(DefaultMaxBodySize), server.config.MaxBodySize)
}

func TestFromGlobalConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.HTTP.Listen = "0.0.0.0:9000"
	cfg.HTTP.MaxBodyBytes = 4096

	wc, err := FromGlobalConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, Config{Listen: "0.0.0.0:9000", MaxBodySize: 4096}, wc)

	_, err = FromGlobalConfig(nil)
	assert.Error(t, err)

	cfg.HTTP.Listen = ""
	_, err = FromGlobalConfig(cfg)
	assert.Error(t, err)
}

// TestEndToEnd runs a signed delivery through the real relay against the
// in-memory backend.
func TestEndToEnd(t *testing.T) {
	const secret = "very-secret"
	body := []byte(`{"action":"opened","number":2,"pull_request":{"title":"Update the README"}}`)

	backend := memory.New()
	backend.Seed("arn:foo:bar:octo_push")
	router := topic.NewRouter(backend, testLogger())
	validator := signature.NewValidator(secret, config.ParseBlacklist(config.DefaultHashlibBlacklist))
	server := New(Config{Listen: "127.0.0.1:0"}, relay.NewHandler(validator, router, testLogger()), testLogger())

	sig, err := signature.Sign("sha256", []byte(secret), body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/octo", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-Hub-Signature", sig)
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")
	rec := serve(server, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msgs := backend.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "arn:memory:local:octo_pull_request", msgs[0].TopicID)
	assert.Equal(t, "pull_request", msgs[0].Subject)
	assert.Equal(t, "72d3162e-cc78-11e3-81ab-4c9367dc0958", msgs[0].DeliveryID)

	inner, err := relay.Unwrap(msgs[0].Body)
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(inner))

	// Header names are case-insensitive.
	req = httptest.NewRequest("POST", "/octo", bytes.NewReader(body))
	req.Header.Set("x-github-event", "pull_request")
	req.Header.Set("x-hub-signature", "sha256=00")
	rec = serve(server, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
