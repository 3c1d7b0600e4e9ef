package session

import (
	"context"
	"sync"

	"github.com/aptpod/mdrouter-go/errors"
)

const defaultLoopQueueSize = 4096

// loopは、ルーティング状態を操作する関数を1つのゴルーチンで順に実行します。
type loop struct {
	queue    chan func()
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

func newLoop() *loop {
	return &loop{
		queue:    make(chan func(), defaultLoopQueueSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (l *loop) run() {
	defer close(l.finished)
	for {
		select {
		case <-l.done:
			return
		default:
		}
		select {
		case f := <-l.queue:
			f()
		case <-l.done:
			return
		}
	}
}

// postは、fをキューへ積みます。ループが停止している場合はfalseを返却します。
func (l *loop) post(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- f:
		return true
	case <-l.done:
		return false
	}
}

// callは、fをループ上で実行し、完了するまで待ちます。
func (l *loop) call(ctx context.Context, f func()) error {
	doneCh := make(chan struct{})
	if !l.post(func() {
		defer close(doneCh)
		f()
	}) {
		return errors.ErrSessionClosed
	}
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.finished:
		select {
		case <-doneCh:
			return nil
		default:
			return errors.ErrSessionClosed
		}
	}
}

// stopは、ループを停止し、実行中の関数が戻るまで待ちます。
func (l *loop) stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
	<-l.finished
}
