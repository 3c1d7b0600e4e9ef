package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aptpod/mdrouter-go/errors"
)

func TestLoop(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := newLoop()
	go l.run()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, l.post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.call(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)

	l.stop()
	l.stop()
	assert.False(t, l.post(func() {}))
	assert.ErrorIs(t, l.call(context.Background(), func() {}), errors.ErrSessionClosed)
}

func TestLoop_callContextCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := newLoop()
	go l.run()
	defer l.stop()

	release := make(chan struct{})
	require.True(t, l.post(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.call(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestEventDispatcher(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := newEventDispatcher()
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.dispatchLoop()
	}()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		d.addHandler(func() {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, i)
		})
	}
	d.stop()
	<-done
	d.addHandler(func() { t.Error("called after stop") })

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}
