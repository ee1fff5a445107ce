package rabbitmq

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermanent(t *testing.T) {
	cause := errors.New("bad payload")

	wrapped := fmt.Errorf("handle: %w", Permanent(cause))

	assert.True(t, IsPermanent(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.False(t, IsPermanent(cause))
	assert.NoError(t, Permanent(nil))
}
