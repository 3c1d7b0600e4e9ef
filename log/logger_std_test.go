package log_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/aptpod/mdrouter-go/log"
)

func Test_stdLogger(t *testing.T) {
	testee := NewStd()
	ctx := context.Background()
	require.NotPanics(t, func() { testee.Infof(ctx, "message") })
	require.NotPanics(t, func() { testee.Warnf(ctx, "message") })
	require.NotPanics(t, func() { testee.Errorf(ctx, "message") })
	require.NotPanics(t, func() { testee.Debugf(ctx, "message") })
}

func Example_stdLogger() {
	ctx := WithTrackChannel(context.Background(), "channel_1")
	testee := NewStdWith(log.New(os.Stdout, "", log.Lshortfile))
	testee.Infof(ctx, "message %s", "info")
	testee.Warnf(ctx, "message %s", "warn")
	testee.Errorf(ctx, "message %s", "error")
	testee.Debugf(ctx, "message %s", "debug")

	// Output:
	// logger_std_test.go:26: INFO: track-channel:channel_1	message info
	// logger_std_test.go:27: WARN: track-channel:channel_1	message warn
	// logger_std_test.go:28: ERROR: track-channel:channel_1	message error
	// logger_std_test.go:29: DEBUG: track-channel:channel_1	message debug
}
