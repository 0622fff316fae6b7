package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	assert.Equal(t, "not_found: client not found", New(CodeNotFound, "client not found").Error())
	assert.Equal(t, "conflict", New(CodeConflict, "").Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("pq: duplicate key value")
	err := Wrap(cause, CodeConflict, "correo_electronico already registered")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeConflict, CodeOf(err))
}

func TestIsMatchesThroughWrapping(t *testing.T) {
	inner := Wrap(errors.New("boom"), CodeTimeout, "transaction aborted")
	outer := fmt.Errorf("pipeline: %w", inner)

	assert.True(t, Is(outer, CodeTimeout))
	assert.False(t, Is(outer, CodeNotFound))
	assert.False(t, Is(errors.New("uncoded"), CodeTimeout))
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("raw failure")))
	assert.Equal(t, CodeBadRequest, CodeOf(New(CodeBadRequest, "nombre is required")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest: http.StatusBadRequest,
		CodeNotFound:   http.StatusNotFound,
		CodeConflict:   http.StatusConflict,
		CodeTimeout:    http.StatusGatewayTimeout,
		CodeInternal:   http.StatusInternalServerError,
		Code("other"):  http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), "code %s", code)
	}
}
