package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_Wrapped(t *testing.T) {
	errStock := New(InsufficientStock, "insufficient_stock", "insufficient stock")
	err := fmt.Errorf("add line: %w", errStock)

	assert.Equal(t, InsufficientStock, KindOf(err))
	assert.Equal(t, "insufficient_stock", CodeOf(err))
	assert.Equal(t, "insufficient stock", MessageOf(err))
	assert.True(t, errors.Is(err, errStock))
}

func TestKindOf_Plain(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, "internal_error", CodeOf(err))
	assert.Equal(t, "internal server error", MessageOf(err))
}

func TestKind_Status(t *testing.T) {
	cases := map[Kind]int{
		Validation:           http.StatusBadRequest,
		Auth:                 http.StatusUnauthorized,
		Forbidden:            http.StatusForbidden,
		NotFound:             http.StatusNotFound,
		Conflict:             http.StatusConflict,
		InsufficientStock:    http.StatusBadRequest,
		Gateway:              http.StatusBadRequest,
		GatewayUnavailable:   http.StatusBadGateway,
		SettlementIncomplete: http.StatusConflict,
		RateLimited:          http.StatusTooManyRequests,
		Internal:             http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.Status())
	}
}
