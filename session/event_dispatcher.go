package session

import (
	"sync"
)

type eventDispatcher struct {
	handler []func()
	cond    *sync.Cond
	stopped bool
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{
		handler: []func(){},
		cond:    sync.NewCond(&sync.Mutex{}),
	}
}

// dispatchLoopは、stopが呼ばれるまでに追加されたハンドラを全て実行してから戻ります。
func (u *eventDispatcher) dispatchLoop() {
	for {
		u.cond.L.Lock()
		for len(u.handler) == 0 {
			u.cond.Wait()
		}
		handlers := make([]func(), 0, len(u.handler))
		handlers = append(handlers, u.handler...)
		u.handler = u.handler[:0]
		u.cond.L.Unlock()
		for _, h := range handlers {
			if h == nil {
				return
			}
			h()
		}
	}
}

func (u *eventDispatcher) addHandler(f func()) {
	u.cond.L.Lock()
	defer u.cond.L.Unlock()
	if u.stopped {
		return
	}
	u.handler = append(u.handler, f)
	u.cond.Signal()
}

func (u *eventDispatcher) stop() {
	u.cond.L.Lock()
	defer u.cond.L.Unlock()
	if u.stopped {
		return
	}
	u.stopped = true
	u.handler = append(u.handler, nil)
	u.cond.Signal()
}
