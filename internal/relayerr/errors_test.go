package relayerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	cause := errors.New("throttled")

	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"malformed", Malformed("missing signature header"), http.StatusBadRequest, "BadRequestError"},
		{"wrapped malformed", fmt.Errorf("validate: %w", Malformed("x")), http.StatusBadRequest, "BadRequestError"},
		{"unauthorized", Unauthorized("signature mismatch"), http.StatusUnauthorized, "UnauthorizedError"},
		{"backend", &BackendError{Op: "publish", Err: cause}, http.StatusBadGateway, "BackendError"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "InternalServerError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}

	assert.Equal(t, http.StatusOK, StatusCode(nil))
}

func TestBackendErrorUnwrap(t *testing.T) {
	cause := errors.New("access denied")
	err := fmt.Errorf("resolve: %w", &BackendError{Op: "create_topic", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrBackend)
	assert.NotErrorIs(t, err, ErrMalformed)

	var be *BackendError
	if assert.ErrorAs(t, err, &be) {
		assert.Equal(t, "create_topic", be.Op)
	}
	assert.Contains(t, err.Error(), "backend create_topic failed")
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "malformed signature format", PublicMessage(Malformed("malformed signature format")))
	assert.Equal(t, "signature mismatch", PublicMessage(Unauthorized("signature mismatch")))
	assert.Equal(t, "messaging backend unavailable",
		PublicMessage(&BackendError{Op: "publish", Err: errors.New("arn:aws:sns:secret-account")}))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("boom")))
}
