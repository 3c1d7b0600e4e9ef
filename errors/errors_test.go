package errors_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/mdrouter-go/errors"
)

func TestLoginTimeoutError(t *testing.T) {
	var err error = Errorf("failed to connect: %w", LoginTimeoutError{
		Waited:   5 * time.Second,
		Channels: []string{"channel_1", "channel_2"},
	})
	assert.True(t, Is(err, ErrLoginTimeout))
	assert.True(t, Is(err, ErrRouter))
	assert.False(t, Is(err, ErrSessionClosed))

	got, ok := AsLoginTimeoutError(err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, got.Waited)
	assert.Equal(t, "login failed (timed out after waiting 5000 milliseconds) for channel_1, channel_2", got.Error())
}

func TestSentinels(t *testing.T) {
	assert.True(t, Is(ErrInvalidServiceGroup, ErrInvalidConfig))
	assert.True(t, Is(ErrInvalidServiceGroup, ErrRouter))
	assert.True(t, Is(Errorf("%w: 'FEED'", ErrUnknownServiceName), ErrRouter))
	assert.NotEqual(t, ErrUnknownServiceName.Error(), ErrUnknownServiceID.Error())
}
