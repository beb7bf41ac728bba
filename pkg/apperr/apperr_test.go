package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NotFound("conversation missing").HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, BreakerOpen("anthropic").HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, Validation("bad input").HTTPStatus())
}

func TestRetryable(t *testing.T) {
	assert.True(t, Transient("timeout", nil).Retryable())
	assert.False(t, NotFound("missing").Retryable())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Unavailable("bus disconnected", cause)
	assert.ErrorIs(t, err, cause)
}
