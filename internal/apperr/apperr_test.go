package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(ConfigFailed, "init", nil))
}

func TestOf(t *testing.T) {
	cause := errors.New("pin busy")
	err := Wrap(ConfigFailed, "configure line 4", cause)

	assert.Equal(t, ConfigFailed, Of(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "configure line 4: config_failed: pin busy", err.Error())

	wrapped := fmt.Errorf("buttons init: %w", err)
	assert.Equal(t, ConfigFailed, Of(wrapped))
	assert.True(t, Is(wrapped, ConfigFailed))
}

func TestOfBareCode(t *testing.T) {
	assert.Equal(t, ResourceExhausted, Of(ResourceExhausted))
	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, Unknown, Of(errors.New("other")))
}
