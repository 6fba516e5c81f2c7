package relay

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/mattjoyce/hookrelay/internal/relayerr"
)

// Envelope wraps a JSON body for a message published with the "json"
// message structure. The body is re-encoded compactly under the "default"
// key, which is what protocols without a dedicated entry receive.
func Envelope(body []byte) (string, error) {
	// Compact passes invalid UTF-8 through and Marshal would then rewrite it.
	if !utf8.Valid(body) {
		return "", relayerr.Malformed("request body is not valid JSON")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return "", relayerr.Malformed("request body is not valid JSON")
	}

	out, err := json.Marshal(map[string]string{"default": compact.String()})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Unwrap returns the original body carried by an Envelope message.
func Unwrap(message string) ([]byte, error) {
	var env map[string]string
	if err := json.Unmarshal([]byte(message), &env); err != nil {
		return nil, err
	}
	return []byte(env["default"]), nil
}
