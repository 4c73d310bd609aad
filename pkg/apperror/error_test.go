package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	err := New("permission_denied", "no rights")
	assert.Equal(t, "permission_denied: no rights", err.Error())

	wrapped := err.WithInternal(errors.New("row missing"))
	assert.Equal(t, "permission_denied: no rights (row missing)", wrapped.Error())
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := ErrPermissionDenied.
		WithMessage("User 3 cannot delete item 42").
		WithInternal(errors.New("bitmask 0"))

	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := ErrDatabase.WithInternal(fmt.Errorf("execute: %w", cause))

	assert.True(t, errors.Is(err, cause))
}

func TestWithDetailsKeepsCode(t *testing.T) {
	err := ErrInvalidState.WithDetails(map[string]any{"itemId": uint64(8)})

	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, uint64(8), err.Details["itemId"])
}
