package session

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aptpod/mdrouter-go/errors"
	"github.com/aptpod/mdrouter-go/internal/ch"
	"github.com/aptpod/mdrouter-go/internal/retry"
	"github.com/aptpod/mdrouter-go/log"
	"github.com/aptpod/mdrouter-go/message"
	"github.com/aptpod/mdrouter-go/wire"
)

var errNotConnected = errors.New("channel is not connected")

// connHandlerは、チャネルのコネクションで発生した事象を受け取ります。
//
// 各メソッドはルーティングループ上で呼び出されます。
type connHandler interface {
	onChannelUp(ch *channel, gen uint64)
	onChannelMessage(ch *channel, gen uint64, msg message.Msg)
	onChannelDown(ch *channel, gen uint64, cause error)
}

// channelConnは、チャネルの物理コネクションを管理します。
//
// コネクション毎に受信と送信のゴルーチンを持ち、切断された場合は再接続します。
type channelConn struct {
	ch            *channel
	group         string
	dialer        wire.Dialer
	retry         retry.Retry
	autoReconnect bool
	logger        log.Logger
	handler       connHandler
	post          func(f func()) bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	conf ChannelConfig
	tr   wire.Transport
	out  *outQueue
	gen  uint64
}

// outQueueは、チャネルへの送信待ちメッセージのキューです。
//
// ルーティングループをブロックしないよう上限を持ちません。
type outQueue struct {
	mu     sync.Mutex
	msgs   []message.Msg
	notify chan struct{}
}

func newOutQueue() *outQueue {
	return &outQueue{notify: make(chan struct{}, 1)}
}

func (q *outQueue) push(msg message.Msg) int {
	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	n := len(q.msgs)
	q.mu.Unlock()
	ch.TryWrite[struct{}](struct{}{}, q.notify)
	return n
}

// popAllは、キューに溜まったメッセージを全て取り出します。空の場合は到着を待ちます。
func (q *outQueue) popAll(ctx context.Context) ([]message.Msg, bool) {
	for {
		q.mu.Lock()
		msgs := q.msgs
		q.msgs = nil
		q.mu.Unlock()
		if len(msgs) > 0 {
			return msgs, true
		}
		if _, ok := ch.ReadOrDoneOne[struct{}](ctx, q.notify); !ok {
			return nil, false
		}
	}
}

var _ channelLink = (*channelConn)(nil)

func newChannelConn(ctx context.Context, group string, conf ChannelConfig, dialer wire.Dialer, sc *Config, post func(f func()) bool) *channelConn {
	ctx, cancel := context.WithCancel(log.WithTrackChannel(ctx, conf.Name))
	return &channelConn{
		group:  group,
		conf:   conf,
		dialer: dialer,
		retry: retry.Retry{
			BaseInterval:    sc.ReconnectBaseInterval,
			MaxBaseInterval: sc.ReconnectMaxInterval,
			Clock:           sc.Clock,
		},
		autoReconnect: sc.Reconnect,
		logger:        sc.Logger,
		post:          post,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (c *channelConn) start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(c.ctx)
	}()
}

func (c *channelConn) run(ctx context.Context) {
	for {
		tr, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Errorf(ctx, "Give up connecting: %+v", err)
			}
			return
		}
		c.mu.Lock()
		c.gen++
		gen := c.gen
		out := newOutQueue()
		c.tr, c.out = tr, out
		c.mu.Unlock()
		c.logger.Infof(ctx, "Connected")

		if !c.post(func() { c.handler.onChannelUp(c.ch, gen) }) {
			tr.Close()
			return
		}
		err = c.serve(ctx, tr, out, gen)

		c.mu.Lock()
		c.tr, c.out = nil, nil
		c.mu.Unlock()
		tr.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warnf(ctx, "Disconnected: %v", err)
		if !c.post(func() { c.handler.onChannelDown(c.ch, gen, err) }) {
			return
		}
		if !c.autoReconnect {
			return
		}
		c.logger.Infof(ctx, "Try reconnecting...")
	}
}

func (c *channelConn) dial(ctx context.Context) (wire.Transport, error) {
	c.mu.Lock()
	dc := wire.DialConfig{
		ChannelName:             c.conf.Name,
		GroupName:               c.group,
		Address:                 c.conf.Address,
		GuaranteedOutputBuffers: c.conf.GuaranteedOutputBuffers,
		NumInputBuffers:         c.conf.NumInputBuffers,
	}
	c.mu.Unlock()

	rt := c.retry
	if !c.autoReconnect {
		rt.MaxAttempt = 1
	}
	var res wire.Transport
	err := rt.Do(ctx, func() (end bool) {
		tr, err := c.dialer.Dial(ctx, dc)
		if err != nil {
			c.logger.Warnf(ctx, "Failed to dial %s: %v", dc.Address, err)
			return false
		}
		res = tr
		return true
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *channelConn) serve(ctx context.Context, tr wire.Transport, out *outQueue, gen uint64) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		for {
			msg, err := tr.Read()
			if err != nil {
				return err
			}
			c.logger.Debugf(log.WithTrackMessageID(ctx), "Received %T on stream %d", msg, msg.GetStreamID())
			if !c.post(func() { c.handler.onChannelMessage(c.ch, gen, msg) }) {
				return errors.ErrSessionClosed
			}
		}
	})
	eg.Go(func() error {
		defer tr.Close()
		for {
			msgs, ok := out.popAll(ctx)
			if !ok {
				return ctx.Err()
			}
			for _, msg := range msgs {
				if err := tr.Write(msg); err != nil {
					return err
				}
			}
		}
	})
	return eg.Wait()
}

func (c *channelConn) send(msg message.Msg) error {
	c.mu.Lock()
	out, limit := c.out, c.conf.GuaranteedOutputBuffers
	c.mu.Unlock()
	if out == nil {
		return errNotConnected
	}
	if n := out.push(msg); n == limit+1 {
		c.logger.Warnf(c.ctx, "Output queue exceeds guaranteed output buffers (%d)", limit)
	}
	return nil
}

func (c *channelConn) reconnect() {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr != nil {
		tr.Close()
	}
}

func (c *channelConn) close() error {
	c.cancel()
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return nil
	}
	if err := tr.Close(); err != nil && !errors.Is(err, wire.ErrClosed) {
		return err
	}
	return nil
}

func (c *channelConn) modify(conf ChannelConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conf = conf
}

func (c *channelConn) wait() {
	c.wg.Wait()
}
