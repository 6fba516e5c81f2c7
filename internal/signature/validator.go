package signature

import (
	"crypto/hmac"
	"encoding/hex"
	"fmt"
	"hash"
	"net/http"
	"strings"

	"github.com/mattjoyce/hookrelay/internal/relayerr"
)

// Header is the HTTP header carrying the body signature.
const Header = "X-Hub-Signature"

// Failure reasons. They are returned to callers, so they describe the
// request shape only.
const (
	ReasonMissingHeader   = "missing signature header"
	ReasonMalformedFormat = "malformed signature format"
	ReasonBadAlgorithm    = "unavailable or disallowed hash algorithm"
	ReasonMismatch        = "signature mismatch"
)

// Parsed is the "<algorithm>=<hexdigest>" form of a signature header.
type Parsed struct {
	Algorithm string
	Digest    string
}

// Validator checks request signatures against a shared secret.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	secret    []byte
	blacklist map[string]struct{}
}

// NewValidator returns a Validator for secret. An empty secret disables
// verification. Blacklist names are matched case-insensitively, and an
// alias such as "SHA-1" also bans the digest it resolves to.
func NewValidator(secret string, blacklist map[string]struct{}) *Validator {
	bl := make(map[string]struct{}, len(blacklist))
	for name := range blacklist {
		lower := strings.ToLower(name)
		bl[lower] = struct{}{}
		if canonical, _, ok := Lookup(lower); ok {
			bl[canonical] = struct{}{}
		}
	}

	v := &Validator{blacklist: bl}
	if secret != "" {
		v.secret = []byte(secret)
	}
	return v
}

// Enabled reports whether a secret is configured.
func (v *Validator) Enabled() bool {
	return v.secret != nil
}

// Validate authenticates body against the signature in h. It returns nil,
// a *relayerr.MalformedError or a *relayerr.UnauthorizedError.
func (v *Validator) Validate(h http.Header, body []byte) error {
	if !v.Enabled() {
		return nil
	}

	values := h.Values(Header)
	if len(values) == 0 {
		return relayerr.Malformed(ReasonMissingHeader)
	}

	parsed, err := ParseHeader(values[0])
	if err != nil {
		return err
	}

	newHash, err := v.algorithm(parsed.Algorithm)
	if err != nil {
		return err
	}

	mac := hmac.New(newHash, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(parsed.Digest))) {
		return relayerr.Unauthorized(ReasonMismatch)
	}
	return nil
}

// Allowed reports whether name resolves to a registered digest that is not
// blacklisted.
func (v *Validator) Allowed(name string) bool {
	_, err := v.algorithm(name)
	return err == nil
}

func (v *Validator) algorithm(name string) (func() hash.Hash, error) {
	lower := strings.ToLower(name)
	if _, banned := v.blacklist[lower]; banned {
		return nil, relayerr.Malformed(ReasonBadAlgorithm)
	}

	canonical, fn, ok := Lookup(lower)
	if !ok {
		return nil, relayerr.Malformed(ReasonBadAlgorithm)
	}
	if _, banned := v.blacklist[canonical]; banned {
		return nil, relayerr.Malformed(ReasonBadAlgorithm)
	}
	return fn, nil
}

// ParseHeader splits a signature header value. The value must contain
// exactly one "=" with non-empty text on both sides.
func ParseHeader(value string) (Parsed, error) {
	if strings.Count(value, "=") != 1 {
		return Parsed{}, relayerr.Malformed(ReasonMalformedFormat)
	}

	algorithm, digest, _ := strings.Cut(value, "=")
	if algorithm == "" || digest == "" {
		return Parsed{}, relayerr.Malformed(ReasonMalformedFormat)
	}
	return Parsed{Algorithm: algorithm, Digest: digest}, nil
}

// Sign computes the signature header value for body using algorithm.
func Sign(algorithm string, secret, body []byte) (string, error) {
	canonical, newHash, ok := Lookup(algorithm)
	if !ok {
		return "", fmt.Errorf("unknown hash algorithm %q", algorithm)
	}

	mac := hmac.New(newHash, secret)
	mac.Write(body)
	return canonical + "=" + hex.EncodeToString(mac.Sum(nil)), nil
}
