// Package apigw adapts API Gateway proxy events to the relay handler so the
// same code path serves both the HTTP listener and AWS Lambda.
package apigw

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mattjoyce/hookrelay/internal/metrics"
	"github.com/mattjoyce/hookrelay/internal/relay"
	"github.com/mattjoyce/hookrelay/internal/relayerr"
)

// PathParameter is the API Gateway path parameter holding the integration.
const PathParameter = "integration"

// DefaultMaxBodySize matches the HTTP listener default.
const DefaultMaxBodySize = 1048576

// Relayer processes one webhook delivery.
type Relayer interface {
	Handle(ctx context.Context, req relay.Request) (relay.Ack, error)
}

// Adapter serves API Gateway proxy events.
type Adapter struct {
	relayer     Relayer
	maxBodySize int64
	logger      *slog.Logger
}

// New creates an Adapter. A non-positive maxBodySize selects the default.
func New(relayer Relayer, maxBodySize int64, logger *slog.Logger) *Adapter {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &Adapter{relayer: relayer, maxBodySize: maxBodySize, logger: logger}
}

// Handle is the Lambda handler. It never returns an error: failures are
// reported to API Gateway as JSON responses with the mapped status code.
func (a *Adapter) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := strings.Trim(req.Path, "/")

	if path == "healthz" && req.HTTPMethod == http.MethodGet {
		return respond(http.StatusOK, map[string]string{"status": "ok"}), nil
	}
	if req.HTTPMethod != http.MethodPost {
		return respondError(http.StatusMethodNotAllowed, "MethodNotAllowedError", "method not allowed"), nil
	}

	integration := req.PathParameters[PathParameter]
	if integration == "" && !strings.Contains(path, "/") {
		integration = path
	}

	body, err := decodeBody(req)
	if err != nil {
		metrics.WebhooksRejected.WithLabelValues(metrics.ReasonMalformed).Inc()
		return respondError(http.StatusBadRequest, "BadRequestError", "body is not valid base64"), nil
	}
	if int64(len(body)) > a.maxBodySize {
		metrics.WebhooksRejected.WithLabelValues(metrics.ReasonTooLarge).Inc()
		return respondError(http.StatusRequestEntityTooLarge, "PayloadTooLargeError", "payload too large"), nil
	}

	ack, err := a.relayer.Handle(ctx, relay.Request{
		Integration: integration,
		Header:      Header(req),
		Body:        body,
	})
	if err != nil {
		status := relayerr.StatusCode(err)
		if status >= http.StatusInternalServerError {
			a.logger.Error("lambda invocation failed",
				"request_id", req.RequestContext.RequestID,
				"status", status,
				"error", err,
			)
		}
		return respondError(status, relayerr.Code(err), relayerr.PublicMessage(err)), nil
	}

	return respond(http.StatusOK, ack), nil
}

// Header merges single and multi-value proxy headers into a canonical
// http.Header. Multi-value entries win when both are present.
func Header(req events.APIGatewayProxyRequest) http.Header {
	h := make(http.Header, len(req.Headers))
	for k, v := range req.Headers {
		h.Set(k, v)
	}
	for k, vs := range req.MultiValueHeaders {
		h.Del(k)
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}

func decodeBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

func respond(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"Code":"InternalServerError","Message":"internal server error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func respondError(status int, code, message string) events.APIGatewayProxyResponse {
	return respond(status, relay.Ack{Code: code, Message: message})
}
