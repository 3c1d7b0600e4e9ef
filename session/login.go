package session

import (
	"github.com/aptpod/mdrouter-go/errors"
	"github.com/aptpod/mdrouter-go/message"
)

// loginAggregatorは、全チャネルのログインを1つの論理ログインストリームに集約します。
type loginAggregator struct {
	req     *message.RequestMsg
	handler EventHandler
	closure any

	// 集約したリフレッシュ
	refresh  *message.RefreshMsg
	accepted bool
	closed   bool

	acceptedCh chan struct{}
}

func newLoginAggregator(req *message.RequestMsg, handler EventHandler) *loginAggregator {
	req = req.Clone()
	req.StreamID = loginStreamID
	req.DomainType = message.DomainLogin
	if handler == nil {
		handler = nopEventHandler{}
	}
	return &loginAggregator{
		req:        req,
		handler:    handler,
		acceptedCh: make(chan struct{}),
	}
}

func (l *loginAggregator) detach() {
	l.handler = nopEventHandler{}
	l.closure = nil
}

func (r *router) emitLogin(msg message.Msg, ch *channel) {
	r.emit(r.login.handler, LoginHandle, r.login.closure, msg, ch)
}

func (r *router) registerLogin(req *message.RequestMsg, handler EventHandler, closure any) {
	r.login.handler = handler
	r.login.closure = closure
	if req.Name != "" && (req.Name != r.login.req.Name || req.Pause != r.login.req.Pause) {
		r.reissueLogin(req)
	}
	if r.login.refresh != nil {
		rf := *r.login.refresh
		rf.Solicited = true
		r.emitLogin(&rf, nil)
	}
}

// reissueLoginは、ログインリクエストを更新し、ログイン済みの全チャネルへ送信します。
func (r *router) reissueLogin(req *message.RequestMsg) {
	nreq := req.Clone()
	nreq.StreamID = loginStreamID
	nreq.DomainType = message.DomainLogin
	r.login.req = nreq
	for _, ch := range r.channels {
		if ch.login == LoginStateNotSent || !ch.alive() {
			continue
		}
		r.send(ch, nreq.Clone())
	}
}

func (r *router) setLoginState(ch *channel, s LoginState) LoginState {
	prev := ch.login
	if prev != s {
		ch.login = s
		r.metrics.loginTransitions.WithLabelValues(s.String()).Inc()
	}
	return prev
}

func (r *router) sendLogin(ch *channel) {
	r.setLoginState(ch, LoginStatePending)
	r.send(ch, r.login.req.Clone())
	gen := ch.gen
	stopTimer(&ch.loginTimer)
	ch.loginTimer = r.afterFunc(r.conf.LoginRequestTimeout, func() {
		if ch.gen != gen || ch.login != LoginStatePending || !ch.alive() {
			return
		}
		r.failChannel(ch, errors.Errorf("login request timed out after %v: %w", r.conf.LoginRequestTimeout, errors.ErrLoginTimeout))
	})
}

func (r *router) onChannelLoginMsg(ch *channel, msg message.Msg) {
	switch m := msg.(type) {
	case *message.RefreshMsg:
		r.onChannelLoginState(ch, m.State, m)
	case *message.StatusMsg:
		if m.State != nil {
			r.onChannelLoginState(ch, *m.State, nil)
		}
	case *message.GenericMsg:
		c := *m
		c.StreamID = loginStreamID
		r.emitLogin(&c, ch)
	case *message.AckMsg:
		delete(ch.posts, postKey{streamID: loginStreamID, postID: m.AckID})
		c := *m
		c.StreamID = loginStreamID
		r.emitLogin(&c, ch)
	default:
		r.logger.Debugf(r.channelCtx(ch), "Ignore %T on login stream", msg)
	}
}

func (r *router) onChannelLoginState(ch *channel, st message.State, refresh *message.RefreshMsg) {
	switch {
	case st.StreamState == message.StreamStateOpen && st.DataState != message.DataStateSuspect:
		if refresh == nil && ch.login != LoginStateSuspect {
			return
		}
		r.loginAccepted(ch, refresh)
	case st.StreamState == message.StreamStateOpen:
		if r.setLoginState(ch, LoginStateSuspect) != LoginStateSuspect {
			r.emitLoginChannelStatus(ch, textChannelSuspect)
		}
	case st.StreamState == message.StreamStateClosedRecover:
		r.failChannel(ch, errors.Errorf("login closed recoverable by provider: %v", st))
	case st.StreamState.IsClosed():
		r.logger.Warnf(r.channelCtx(ch), "Login closed by provider: %v", st)
		r.closeChannel(ch, errors.Errorf("login closed by provider: %v", st))
	}
}

func (r *router) loginAccepted(ch *channel, refresh *message.RefreshMsg) {
	prev := r.setLoginState(ch, LoginStateAccepted)
	stopTimer(&ch.loginTimer)
	if ch.state == ChannelStateInitializing {
		r.transit(ch, ChannelStateActive, nil)
	}
	if !r.login.accepted {
		r.login.accepted = true
		rf := &message.RefreshMsg{
			Header: message.Header{StreamID: loginStreamID, DomainType: message.DomainLogin},
			Key:    message.Key{Name: r.login.req.Name},
			State: message.State{
				StreamState: message.StreamStateOpen,
				DataState:   message.DataStateOk,
				Text:        textLoginAccepted,
			},
			Solicited: true,
			Complete:  true,
		}
		if refresh != nil {
			rf.Attrib = refresh.Attrib
			rf.Payload = refresh.Payload
			if refresh.Name != "" {
				rf.Name = refresh.Name
			}
		}
		r.login.refresh = rf
		r.emitLogin(rf, ch)
		close(r.login.acceptedCh)
	} else if prev != LoginStateAccepted {
		r.emitLoginChannelStatus(ch, textChannelUp)
	}
	if prev != LoginStateAccepted {
		r.requestDirectory(ch)
	}
}

// emitLoginChannelStatusは、チャネルのログイン状態の変化を論理ログインストリームへ通知します。
//
// 論理ログインのリフレッシュ前、およびクローズ後は通知しません。
func (r *router) emitLoginChannelStatus(ch *channel, text string) {
	if !r.login.accepted || r.login.closed || r.closed {
		return
	}
	st := message.State{
		StreamState: message.StreamStateOpen,
		DataState:   message.DataStateOk,
		Text:        text,
	}
	if len(r.usableChannels()) == 0 {
		st.DataState = message.DataStateSuspect
	}
	if !r.channelsAlive() {
		st.StreamState = message.StreamStateClosed
		st.DataState = message.DataStateSuspect
		r.login.closed = true
	}
	r.emitLogin(&message.StatusMsg{
		Header: message.Header{StreamID: loginStreamID, DomainType: message.DomainLogin},
		Key:    message.Key{Name: r.login.req.Name},
		State:  &st,
	}, ch)
}
