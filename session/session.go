package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/aptpod/mdrouter-go/errors"
	"github.com/aptpod/mdrouter-go/log"
	"github.com/aptpod/mdrouter-go/message"
	"github.com/aptpod/mdrouter-go/wire"
)

// Connectは、全チャネルへ接続しコンシューマーセッションを返却します。
//
// いずれかのチャネルでログインが受け付けられた時点で戻ります。
// LoginRequestTimeoutまでにどのチャネルもログインできない場合、全チャネルを閉じて errors.LoginTimeoutError を返却します。
func Connect(ctx context.Context, dialer wire.Dialer, groups []ChannelGroupConfig, opts ...Option) (*Session, error) {
	conf := DefaultConfig()
	conf.ChannelGroups = groups
	for _, o := range opts {
		o(&conf)
	}
	return ConnectWithConfig(ctx, dialer, &conf)
}

// ConnectWithConfigは、Configを指定してコンシューマーセッションを返却します。
//
// LoadConfigで読み込んだ設定を使用する場合はこのメソッドを使用します。
func ConnectWithConfig(ctx context.Context, dialer wire.Dialer, c *Config) (*Session, error) {
	conf := *c
	conf.setDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	sctx := log.WithTrackSessionID(context.Background(), id)
	s := &Session{
		id:             id,
		ctx:            sctx,
		conf:           conf,
		logger:         conf.Logger,
		loop:           newLoop(),
		dispatcher:     newEventDispatcher(),
		dispatcherDone: make(chan struct{}),
	}
	s.nextHandle.Store(int64(firstHandle))
	s.metrics = newMetrics(conf.MetricsRegisterer)

	r, err := newRouter(sctx, conf, s.loop.post, s, s.metrics)
	if err != nil {
		s.metrics.unregister()
		return nil, err
	}
	s.router = r
	var names []string
	for _, g := range conf.ChannelGroups {
		for _, cc := range g.Channels {
			conn := newChannelConn(sctx, g.Name, cc, dialer, &conf, s.loop.post)
			ch := newChannel(g.Name, cc, conn)
			conn.ch = ch
			conn.handler = r
			r.addChannel(ch)
			s.conns = append(s.conns, conn)
			names = append(names, cc.Name)
		}
	}

	go func() {
		defer close(s.dispatcherDone)
		s.dispatcher.dispatchLoop()
	}()
	go s.loop.run()
	for _, conn := range s.conns {
		conn.start()
	}
	s.logger.Infof(sctx, "Connecting %d channels", len(s.conns))

	timer := conf.Clock.Timer(conf.LoginRequestTimeout)
	defer timer.Stop()
	select {
	case <-r.login.acceptedCh:
		s.logger.Infof(sctx, "Login accepted")
		return s, nil
	case <-timer.C:
		s.Close(context.Background())
		return nil, errors.LoginTimeoutError{
			Waited:   conf.LoginRequestTimeout,
			Channels: names,
		}
	case <-ctx.Done():
		s.Close(context.Background())
		return nil, ctx.Err()
	}
}

// Sessionは、複数のチャネルを1つの論理的な購読として扱うコンシューマーセッションです。
type Session struct {
	id     string
	ctx    context.Context
	conf   Config
	logger log.Logger

	router  *router
	loop    *loop
	conns   []*channelConn
	metrics *metrics

	dispatcher     *eventDispatcher
	dispatcherDone chan struct{}

	nextHandle   atomic.Int64
	unregistered sync.Map
	closed       atomic.Bool
	closeOnce    sync.Once
	closeErr     error
}

var _ emitter = (*Session)(nil)

func (s *Session) emit(handler EventHandler, ev *Event) {
	s.dispatcher.addHandler(func() {
		if _, ok := s.unregistered.Load(ev.Handle); ok {
			return
		}
		handler.OnEvent(ev)
	})
}

func (s *Session) emitChannelEvent(ev *ChannelEvent) {
	h := s.conf.ChannelEventHandler
	s.dispatcher.addHandler(func() {
		h.OnChannelEvent(ev)
	})
}

// IDは、セッションIDを返却します。
func (s *Session) ID() string {
	return s.id
}

// LoginHandleは、論理ログインストリームのハンドルを返却します。
func (s *Session) LoginHandle() Handle {
	return LoginHandle
}

/*
Registerは、ストリームを登録しハンドルを返却します。

ドメインタイプがログインの場合はログインハンドルを返却し、キャッシュ済みのリフレッシュを再送します。
ソースディレクトリの場合は統合したディレクトリを配送します。
バッチリクエストの場合、返却したハンドルには "Stream closed for batch" が通知され、
各アイテムには返却したハンドル + 1 から順にハンドルが割り当てられます。
*/
func (s *Session) Register(ctx context.Context, req *message.RequestMsg, handler EventHandler, closure any) (Handle, error) {
	if req == nil {
		return 0, errors.Errorf("nil request: %w", errors.ErrRouter)
	}
	if s.closed.Load() {
		return 0, errors.ErrSessionClosed
	}
	var h Handle
	if req.DomainType == message.DomainLogin {
		h = LoginHandle
		s.unregistered.Delete(LoginHandle)
	} else {
		n := int64(1 + len(req.Batch))
		h = Handle(s.nextHandle.Add(n) - n)
	}
	var err error
	if cerr := s.loop.call(ctx, func() {
		err = s.router.register(h, req, handler, closure)
	}); cerr != nil {
		return 0, cerr
	}
	if err != nil {
		return 0, err
	}
	return h, nil
}

// Unregisterは、ストリームの登録を解除します。
//
// 解除後、配送待ちのイベントを含めハンドルへのイベントは配送されません。何度呼び出しても構いません。
func (s *Session) Unregister(ctx context.Context, h Handle) error {
	s.unregistered.Store(h, struct{}{})
	if s.closed.Load() {
		return nil
	}
	if err := s.loop.call(ctx, func() {
		s.router.unregister(h)
	}); err != nil {
		if errors.Is(err, errors.ErrSessionClosed) {
			return nil
		}
		return err
	}
	// ルーターはこれ以降ハンドルへイベントを発行しないため、配送待ちのイベントを捨てた後に解除します。
	s.dispatcher.addHandler(func() {
		s.unregistered.Delete(h)
	})
	return nil
}

// Reissueは、登録済みストリームのリクエストを変更します。
func (s *Session) Reissue(ctx context.Context, h Handle, req *message.RequestMsg) error {
	if req == nil {
		return errors.Errorf("nil request: %w", errors.ErrRouter)
	}
	return s.callErr(ctx, func() error {
		return s.router.reissue(h, req)
	})
}

// SubmitPostは、PostMsgを送信します。
//
// アイテムのハンドルを指定した場合はアイテムをサービング中のチャネルへ、
// ログインハンドルを指定した場合はログイン済みの全チャネルへ送信します。
func (s *Session) SubmitPost(ctx context.Context, h Handle, msg *message.PostMsg) error {
	return s.callErr(ctx, func() error {
		return s.router.submitPost(h, msg)
	})
}

// SubmitGenericは、GenericMsgを送信します。
func (s *Session) SubmitGeneric(ctx context.Context, h Handle, msg *message.GenericMsg) error {
	return s.callErr(ctx, func() error {
		return s.router.submitGeneric(h, msg)
	})
}

// ChannelInformationは、全チャネルの情報を返却します。
func (s *Session) ChannelInformation(ctx context.Context) ([]ChannelInformation, error) {
	var res []ChannelInformation
	if err := s.callErr(ctx, func() error {
		res = s.router.channelInformation()
		return nil
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// ModifyChannelsは、全チャネルのパラメーターを変更します。
func (s *Session) ModifyChannels(ctx context.Context, code IOCtlCode, value int) error {
	return s.callErr(ctx, func() error {
		return s.router.modifyChannels(code, value)
	})
}

func (s *Session) callErr(ctx context.Context, f func() error) error {
	if s.closed.Load() {
		return errors.ErrSessionClosed
	}
	var err error
	if cerr := s.loop.call(ctx, func() {
		err = f()
	}); cerr != nil {
		return cerr
	}
	return err
}

// Closeは、セッションを閉じます。
//
// 登録中の全ストリームへクローズを通知し、全チャネルを閉じ、全ゴルーチンの終了を待ちます。
// イベントハンドラの中から呼び出してはいけません。
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		var errs error
		if err := s.loop.call(ctx, func() {
			errs = s.router.close()
		}); err != nil {
			errs = multierr.Append(errs, err)
		}
		s.loop.stop()
		for _, conn := range s.conns {
			conn.cancel()
			conn.wait()
		}
		s.metrics.unregister()
		s.dispatcher.stop()
		<-s.dispatcherDone
		s.logger.Infof(s.ctx, "Consumer session closed")
		s.closeErr = errs
	})
	return s.closeErr
}
