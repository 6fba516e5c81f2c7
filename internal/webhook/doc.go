// Package webhook serves the HTTP endpoint GitHub-style webhooks are posted to.
//
// Each integration posts to its own path segment. The segment is used
// verbatim in the destination topic name:
//
//	POST /{integration}
//	X-GitHub-Event: push
//	X-Hub-Signature: sha1=<hex>        (required when a secret is configured)
//	X-GitHub-Delivery: <uuid>          (optional, used for log correlation)
//
// # Request Flow
//
//  1. HTTP POST arrives at /{integration}
//  2. Body size checked (reject with 413 if too large)
//  3. Delivery handed to the relay: event header, signature, topic, publish
//  4. 200 OK returned with {"Code":"Ok","Message":"Webhook received."}
//
// # Error Responses
//
// - 400 Bad Request: missing event header, missing or malformed signature,
// disallowed digest algorithm, body not JSON
// - 401 Unauthorized: signature does not match
// - 413 Payload Too Large: body exceeds the configured limit
// - 502 Bad Gateway: the messaging backend failed
//
// Error bodies carry a short code and a generic message. Signatures, secrets
// and payloads are never logged.
//
// # Other Routes
//
// - GET /healthz: liveness probe
// - GET /metrics: Prometheus metrics
package webhook
