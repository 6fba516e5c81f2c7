package apigw

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookrelay/internal/backend/memory"
	"github.com/mattjoyce/hookrelay/internal/config"
	"github.com/mattjoyce/hookrelay/internal/log"
	"github.com/mattjoyce/hookrelay/internal/relay"
	"github.com/mattjoyce/hookrelay/internal/relayerr"
	"github.com/mattjoyce/hookrelay/internal/signature"
	"github.com/mattjoyce/hookrelay/internal/topic"
)

type recordingRelayer struct {
	got relay.Request
	err error
}

func (r *recordingRelayer) Handle(ctx context.Context, req relay.Request) (relay.Ack, error) {
	r.got = req
	if r.err != nil {
		return relay.Ack{}, r.err
	}
	return relay.Accepted, nil
}

func post(path string, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       path,
		Headers:    map[string]string{"x-github-event": "push"},
		Body:       body,
	}
}

func TestHandle_IntegrationSource(t *testing.T) {
	tests := []struct {
		name string
		req  events.APIGatewayProxyRequest
		want string
	}{
		{"path parameter", func() events.APIGatewayProxyRequest {
			r := post("/prod/ignored", `{}`)
			r.PathParameters = map[string]string{"integration": "octo"}
			return r
		}(), "octo"},
		{"single segment path", post("/octo/", `{}`), "octo"},
		{"nested path", post("/a/b", `{}`), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := &recordingRelayer{}
			resp, err := New(rr, 0, log.Discard()).Handle(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.want, rr.got.Integration)
		})
	}
}

func TestHandle_HeadersAndBody(t *testing.T) {
	rr := &recordingRelayer{}
	req := post("/octo", "")
	req.Body = base64.StdEncoding.EncodeToString([]byte(`{"a":1}`))
	req.IsBase64Encoded = true
	req.MultiValueHeaders = map[string][]string{"X-Hub-Signature": {"sha1=abc"}}

	resp, err := New(rr, 0, log.Discard()).Handle(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"Code":"Ok","Message":"Webhook received."}`, resp.Body)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, `{"a":1}`, string(rr.got.Body))
	assert.Equal(t, "push", rr.got.Header.Get("X-GitHub-Event"))
	assert.Equal(t, "sha1=abc", rr.got.Header.Get("X-Hub-Signature"))
}

func TestHandle_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		req        events.APIGatewayProxyRequest
		err        error
		maxBody    int64
		wantStatus int
		wantCode   string
	}{
		{"bad base64", func() events.APIGatewayProxyRequest {
			r := post("/octo", "!!!")
			r.IsBase64Encoded = true
			return r
		}(), nil, 0, http.StatusBadRequest, "BadRequestError"},
		{"too large", post("/octo", `{"padding":"0123456789"}`), nil, 8, http.StatusRequestEntityTooLarge, "PayloadTooLargeError"},
		{"wrong method", events.APIGatewayProxyRequest{HTTPMethod: http.MethodPut, Path: "/octo"}, nil, 0, http.StatusMethodNotAllowed, "MethodNotAllowedError"},
		{"malformed", post("/octo", `{}`), relayerr.Malformed("missing event type header"), 0, http.StatusBadRequest, "BadRequestError"},
		{"unauthorized", post("/octo", `{}`), relayerr.Unauthorized("signature mismatch"), 0, http.StatusUnauthorized, "UnauthorizedError"},
		{"backend", post("/octo", `{}`), &relayerr.BackendError{Op: "publish", Err: errors.New("throttled")}, 0, http.StatusBadGateway, "BackendError"},
		{"internal", post("/octo", `{}`), errors.New("boom"), 0, http.StatusInternalServerError, "InternalServerError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := New(&recordingRelayer{err: tt.err}, tt.maxBody, log.Discard()).Handle(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, resp.Body, `"Code":"`+tt.wantCode+`"`)
			assert.NotContains(t, resp.Body, "throttled")
		})
	}
}

func TestHandle_Healthz(t *testing.T) {
	resp, err := New(&recordingRelayer{}, 0, log.Discard()).Handle(context.Background(),
		events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/healthz"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body)
}

func TestHandle_EndToEnd(t *testing.T) {
	const secret = "lambda-secret"
	body := `{"ref":"refs/heads/main"}`

	backend := memory.New()
	router := topic.NewRouter(backend, log.Discard())
	validator := signature.NewValidator(secret, config.ParseBlacklist(config.DefaultHashlibBlacklist))
	adapter := New(relay.NewHandler(validator, router, log.Discard()), 0, log.Discard())

	sig, err := signature.Sign("sha1", []byte(secret), []byte(body))
	require.NoError(t, err)

	req := post("/octo", body)
	req.Headers["X-Hub-Signature"] = sig
	resp, err := adapter.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	msgs := backend.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "arn:memory:local:octo_push", msgs[0].TopicID)
	assert.Equal(t, 1, backend.Calls().CreateTopic)
}

func TestHeader_MultiValueWins(t *testing.T) {
	h := Header(events.APIGatewayProxyRequest{
		Headers:           map[string]string{"X-Custom": "single"},
		MultiValueHeaders: map[string][]string{"x-custom": {"one", "two"}},
	})
	assert.Equal(t, []string{"one", "two"}, h.Values("X-Custom"))
}
