package session

import (
	"context"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/aptpod/mdrouter-go/errors"
	"github.com/aptpod/mdrouter-go/log"
	"github.com/aptpod/mdrouter-go/message"
)

// emitterは、ルーターが生成したイベントをアプリケーションへ配送します。
type emitter interface {
	emit(handler EventHandler, ev *Event)
	emitChannelEvent(ev *ChannelEvent)
}

/*
routerは、コンシューマーセッションのルーティング状態を所有します。

routerのメソッドはすべて単一のルーティングループから呼び出されるため、内部状態はロックしません。
タイマーのコールバックはpostを経由してループ上で実行されます。
*/
type router struct {
	ctx     context.Context
	conf    Config
	logger  log.Logger
	clk     clock.Clock
	post    func(f func()) bool
	emitter emitter
	metrics *metrics

	channels []*channel
	registry *serviceRegistry
	groups   *serviceGroups
	login    *loginAggregator

	items      map[Handle]*item
	dirStreams map[Handle]*directoryStream

	closed bool
}

func newRouter(ctx context.Context, conf Config, post func(f func()) bool, em emitter, m *metrics) (*router, error) {
	groups, err := newServiceGroups(conf.ServiceGroups)
	if err != nil {
		return nil, err
	}
	return &router{
		ctx:        ctx,
		conf:       conf,
		logger:     conf.Logger,
		clk:        conf.Clock,
		post:       post,
		emitter:    em,
		metrics:    m,
		registry:   newServiceRegistry(),
		groups:     groups,
		login:      newLoginAggregator(conf.LoginRequest, conf.LoginEventHandler),
		items:      make(map[Handle]*item),
		dirStreams: make(map[Handle]*directoryStream),
	}, nil
}

func (r *router) addChannel(ch *channel) {
	r.channels = append(r.channels, ch)
}

func (r *router) channelCtx(ch *channel) context.Context {
	return log.WithTrackChannel(r.ctx, ch.name)
}

func (r *router) afterFunc(d time.Duration, f func()) *clock.Timer {
	return r.clk.AfterFunc(d, func() {
		r.post(f)
	})
}

func (r *router) emit(handler EventHandler, h Handle, closure any, msg message.Msg, ch *channel) {
	ev := &Event{
		Handle:  h,
		Closure: closure,
		Msg:     msg,
	}
	if ch != nil {
		ev.Channel = ch.info()
	}
	r.emitter.emit(handler, ev)
}

func (r *router) send(ch *channel, msg message.Msg) {
	if err := ch.link.send(msg); err != nil {
		r.logger.Warnf(r.channelCtx(ch), "Failed to send %T on stream %d: %v", msg, msg.GetStreamID(), err)
	}
}

func (r *router) transit(ch *channel, to ChannelState, cause error) bool {
	from := ch.state
	if from == to {
		return true
	}
	if !from.canTransitTo(to) {
		r.logger.Warnf(r.channelCtx(ch), "Invalid channel transition %v -> %v", from, to)
		return false
	}
	ch.state = to
	r.metrics.channelTransitions.WithLabelValues(ch.name, to.String()).Inc()
	r.logger.Infof(r.channelCtx(ch), "Channel state changed %v -> %v", from, to)
	r.emitter.emitChannelEvent(&ChannelEvent{
		Channel:  *ch.info(),
		OldState: from,
		NewState: to,
		Err:      cause,
	})
	return true
}

// onChannelUpは、チャネルのコネクションが確立した時に呼び出されます。
func (r *router) onChannelUp(ch *channel, gen uint64) {
	if r.closed || ch.state == ChannelStateClosed {
		return
	}
	if ch.state == ChannelStateActive {
		r.channelDown(ch, errors.New("unexpected reconnect"), false)
	}
	if !r.transit(ch, ChannelStateInitializing, nil) {
		return
	}
	ch.gen = gen
	ch.resetTables()
	stopTimer(&ch.abandonTimer)
	r.sendLogin(ch)
}

// onChannelDownは、チャネルのコネクションが切断された時に呼び出されます。
func (r *router) onChannelDown(ch *channel, gen uint64, cause error) {
	if r.closed || gen != ch.gen || !ch.alive() {
		return
	}
	r.channelDown(ch, cause, false)
}

// failChannelは、チャネルを障害として切断し、再接続させます。
func (r *router) failChannel(ch *channel, cause error) {
	if !ch.alive() {
		return
	}
	r.logger.Warnf(r.channelCtx(ch), "Channel failed: %v", cause)
	r.channelDown(ch, cause, true)
}

func (r *router) channelDown(ch *channel, cause error, reconnect bool) {
	if !r.transit(ch, ChannelStateDown, cause) {
		return
	}
	if ch.login != LoginStateNotSent {
		r.metrics.loginTransitions.WithLabelValues(LoginStateNotSent.String()).Inc()
	}
	ch.login = LoginStateNotSent
	ch.stopTimers()
	r.withdrawChannel(ch, textChannelDown)
	r.emitLoginChannelStatus(ch, textChannelDownReconnect)
	if reconnect {
		ch.link.reconnect()
	}
	if r.conf.ChannelAbandonTimeout > 0 {
		gen := ch.gen
		ch.abandonTimer = r.afterFunc(r.conf.ChannelAbandonTimeout, func() {
			r.onChannelAbandon(ch, gen)
		})
	}
	r.reevaluate()
}

func (r *router) onChannelAbandon(ch *channel, gen uint64) {
	if r.closed || ch.state != ChannelStateDown || ch.gen != gen {
		return
	}
	r.logger.Warnf(r.channelCtx(ch), "Abandon channel after %v", r.conf.ChannelAbandonTimeout)
	r.closeChannel(ch, errors.New(textChannelAbandoned))
}

// closeChannelは、チャネルを閉じ、以後再接続しません。
func (r *router) closeChannel(ch *channel, cause error) {
	if ch.state == ChannelStateClosed {
		return
	}
	if ch.alive() {
		r.withdrawChannel(ch, textChannelClosed)
	}
	ch.login = LoginStateClosed
	ch.stopTimers()
	r.transit(ch, ChannelStateClosed, cause)
	if err := ch.link.close(); err != nil {
		r.logger.Warnf(r.channelCtx(ch), "Failed to close channel: %v", err)
	}
	for _, it := range r.sortedItems() {
		if it.pinned == ch {
			it.pinned = nil
		}
	}
	r.emitLoginChannelStatus(ch, textChannelClosed)
	r.reevaluate()
}

// withdrawChannelは、チャネルが広告していた全サービスを取り下げ、チャネル上のアイテムを回復させます。
func (r *router) withdrawChannel(ch *channel, text string) {
	ids := make([]int, 0, len(ch.services))
	for id := range ch.services {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	var deltas []*message.ServiceEntry
	names := make(map[uint16]string)
	for _, id := range ids {
		c := ch.services[uint16(id)]
		if d := r.registry.remove(c); d != nil {
			deltas = append(deltas, d)
			names[d.ServiceID] = c.name
		}
	}
	r.publishDeltas(deltas, names)

	var lost []*item
	for _, ws := range ch.sortedStreams() {
		lost = append(lost, r.dropStream(ch, ws)...)
	}
	ch.resetTables()
	sortItems(lost)
	for _, it := range lost {
		r.channelLost(it, ch, text)
	}
}

func (r *router) channelsAlive() bool {
	for _, ch := range r.channels {
		if ch.state != ChannelStateClosed {
			return true
		}
	}
	return false
}

func (r *router) usableChannels() []*channel {
	var res []*channel
	for _, ch := range r.channels {
		if ch.login == LoginStateAccepted && ch.alive() {
			res = append(res, ch)
		}
	}
	return res
}

// onChannelMessageは、チャネルから受信したメッセージをルーティングします。
func (r *router) onChannelMessage(ch *channel, gen uint64, msg message.Msg) {
	if r.closed || gen != ch.gen || !ch.alive() {
		return
	}
	switch msg.GetStreamID() {
	case loginStreamID:
		r.onChannelLoginMsg(ch, msg)
	case directoryStreamID:
		r.onChannelDirectoryMsg(ch, msg)
	default:
		r.onChannelItemMsg(ch, msg)
	}
}

// registerは、ストリームを登録します。
//
// バッチリクエストの場合、アイテムのハンドルは h+1 から順に割り当てます。
func (r *router) register(h Handle, req *message.RequestMsg, handler EventHandler, closure any) error {
	if r.closed {
		return errors.ErrSessionClosed
	}
	if handler == nil {
		handler = nopEventHandler{}
	}
	switch req.DomainType {
	case message.DomainLogin:
		r.registerLogin(req, handler, closure)
		return nil
	case message.DomainSource:
		s := newDirectoryStream(h, req.Clone(), handler, closure)
		r.dirStreams[h] = s
		r.emit(s.handler, s.handle, s.closure, s.refreshMsg(r.registry), nil)
		return nil
	}

	if req.IsBatch() {
		r.emit(handler, h, closure, &message.StatusMsg{
			Header: message.Header{StreamID: int32(h), DomainType: req.DomainType},
			Key:    message.Key{ServiceID: req.ServiceID, ServiceName: req.ServiceName},
			State: &message.State{
				StreamState: message.StreamStateClosed,
				DataState:   message.DataStateOk,
				Text:        textBatchClosed,
			},
		}, nil)
		for i, name := range req.Batch {
			ireq := req.Clone()
			ireq.Batch = nil
			ireq.Name = name
			r.registerItem(newItem(h+Handle(i)+1, ireq, handler, closure))
		}
		return nil
	}
	r.registerItem(newItem(h, req.Clone(), handler, closure))
	return nil
}

// unregisterは、ストリームの登録を解除します。存在しないハンドルは無視します。
func (r *router) unregister(h Handle) {
	if h == LoginHandle {
		r.login.detach()
		return
	}
	if _, ok := r.dirStreams[h]; ok {
		delete(r.dirStreams, h)
		return
	}
	if it, ok := r.items[h]; ok {
		r.removeItem(it, true)
	}
}

// reissueは、登録済みストリームのリクエストを変更します。
func (r *router) reissue(h Handle, req *message.RequestMsg) error {
	if r.closed {
		return errors.ErrSessionClosed
	}
	if h == LoginHandle {
		r.reissueLogin(req)
		return nil
	}
	if s, ok := r.dirStreams[h]; ok {
		ns := newDirectoryStream(h, req.Clone(), s.handler, s.closure)
		r.dirStreams[h] = ns
		r.emit(ns.handler, ns.handle, ns.closure, ns.refreshMsg(r.registry), nil)
		return nil
	}
	it, ok := r.items[h]
	if !ok {
		return errors.Errorf("handle %d: %w", h, errors.ErrUnknownHandle)
	}
	return r.reissueItem(it, req)
}

func (r *router) channelInformation() []ChannelInformation {
	res := make([]ChannelInformation, 0, len(r.channels))
	for _, ch := range r.channels {
		res = append(res, *ch.info())
	}
	return res
}

func (r *router) modifyChannels(code IOCtlCode, value int) error {
	for _, ch := range r.channels {
		conf := ch.conf
		if err := conf.modify(code, value); err != nil {
			return err
		}
	}
	for _, ch := range r.channels {
		_ = ch.conf.modify(code, value)
		ch.link.modify(ch.conf)
	}
	return nil
}

// closeは、全ストリームへクローズを通知し、全チャネルを閉じます。
func (r *router) close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	closed := message.State{
		StreamState: message.StreamStateClosed,
		DataState:   message.DataStateSuspect,
		Text:        textSessionClosed,
	}
	for _, s := range r.sortedDirStreams() {
		r.emit(s.handler, s.handle, s.closure, &message.StatusMsg{
			Header: message.Header{StreamID: int32(s.handle), DomainType: message.DomainSource},
			Key:    s.key(),
			State:  &closed,
		}, nil)
	}
	r.dirStreams = make(map[Handle]*directoryStream)
	for _, it := range r.sortedItems() {
		r.emitItemStatus(it, closed, nil)
		r.removeItem(it, false)
	}
	if r.login.accepted {
		r.emitLogin(&message.StatusMsg{
			Header: message.Header{StreamID: loginStreamID, DomainType: message.DomainLogin},
			Key:    message.Key{Name: r.login.req.Name},
			State:  &closed,
		}, nil)
	}

	var errs error
	for _, ch := range r.channels {
		ch.stopTimers()
		if ch.state != ChannelStateClosed {
			r.transit(ch, ChannelStateClosed, errors.ErrSessionClosed)
			errs = multierr.Append(errs, ch.link.close())
		}
	}
	return errs
}

func (r *router) sortedItems() []*item {
	res := make([]*item, 0, len(r.items))
	for _, it := range r.items {
		res = append(res, it)
	}
	sortItems(res)
	return res
}

func sortItems(items []*item) {
	sort.Slice(items, func(i, j int) bool { return items[i].handle < items[j].handle })
}

func (r *router) sortedDirStreams() []*directoryStream {
	res := make([]*directoryStream, 0, len(r.dirStreams))
	for _, s := range r.dirStreams {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].handle < res[j].handle })
	return res
}

func (c *channel) sortedStreams() []*wireStream {
	res := make([]*wireStream, 0, len(c.streamsByID))
	for _, ws := range c.streamsByID {
		res = append(res, ws)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].id < res[j].id })
	return res
}
