package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	cloned := Clone(ErrSessionEnded, "session 42 has ended")

	assert.True(t, errors.Is(cloned, ErrSessionEnded))
	assert.False(t, errors.Is(cloned, ErrSessionBusy))
	assert.Equal(t, http.StatusConflict, cloned.Status)
	assert.Equal(t, "chat session has ended", ErrSessionEnded.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.EqualError(t, appErr.Unwrap(), "boom")
}

func TestFromErrorPassesThroughTyped(t *testing.T) {
	wrapped := fmt.Errorf("turn: %w", ErrServiceNotConfigured)

	appErr := FromError(wrapped)

	assert.Equal(t, ErrServiceNotConfigured.Code, appErr.Code)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Status)
}
