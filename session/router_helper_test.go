package session

import (
	"context"
	"testing"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/aptpod/mdrouter-go/errors"
	"github.com/aptpod/mdrouter-go/message"
)

type fakeLink struct {
	sent       []message.Msg
	reconnects int
	closed     bool
	conf       ChannelConfig
}

func (l *fakeLink) send(msg message.Msg) error {
	l.sent = append(l.sent, msg)
	return nil
}

func (l *fakeLink) reconnect() {
	l.reconnects++
}

func (l *fakeLink) close() error {
	l.closed = true
	return nil
}

func (l *fakeLink) modify(conf ChannelConfig) {
	l.conf = conf
}

type fakeEmitter struct {
	events        []*Event
	channelEvents []*ChannelEvent
}

func (e *fakeEmitter) emit(_ EventHandler, ev *Event) {
	e.events = append(e.events, ev)
}

func (e *fakeEmitter) emitChannelEvent(ev *ChannelEvent) {
	e.channelEvents = append(e.channelEvents, ev)
}

type routerHarness struct {
	t      *testing.T
	r      *router
	m      *metrics
	clk    *clock.Mock
	em     *fakeEmitter
	posted chan func()
	chs    map[string]*channel
	links  map[string]*fakeLink
}

func newRouterHarness(t *testing.T, opts []Option, names ...string) *routerHarness {
	t.Helper()
	conf := DefaultConfig()
	var chs []ChannelConfig
	for _, n := range names {
		chs = append(chs, ChannelConfig{Name: n, Address: n + ":14002"})
	}
	conf.ChannelGroups = []ChannelGroupConfig{{Name: "group", Channels: chs}}
	clk := clock.NewMock()
	conf.Clock = clk
	conf.LoginRequest = message.NewLoginRequest("user")
	for _, o := range opts {
		o(&conf)
	}
	conf.setDefaults()
	require.NoError(t, conf.Validate())

	h := &routerHarness{
		t:      t,
		m:      newMetrics(nil),
		clk:    clk,
		em:     &fakeEmitter{},
		posted: make(chan func(), 256),
		chs:    make(map[string]*channel),
		links:  make(map[string]*fakeLink),
	}
	r, err := newRouter(context.Background(), conf, func(f func()) bool {
		h.posted <- f
		return true
	}, h.em, h.m)
	require.NoError(t, err)
	h.r = r
	for _, g := range conf.ChannelGroups {
		for _, cc := range g.Channels {
			l := &fakeLink{conf: cc}
			ch := newChannel(g.Name, cc, l)
			r.addChannel(ch)
			h.chs[cc.Name] = ch
			h.links[cc.Name] = l
		}
	}
	return h
}

func (h *routerHarness) up(name string) {
	ch := h.chs[name]
	h.r.onChannelUp(ch, ch.gen+1)
}

func (h *routerHarness) down(name string) {
	ch := h.chs[name]
	h.r.onChannelDown(ch, ch.gen, errors.New("EOF"))
}

func (h *routerHarness) recv(name string, msg message.Msg) {
	ch := h.chs[name]
	h.r.onChannelMessage(ch, ch.gen, msg)
}

func (h *routerHarness) acceptLogin(name string) {
	h.recv(name, &message.RefreshMsg{
		Header:    message.Header{StreamID: loginStreamID, DomainType: message.DomainLogin},
		Key:       message.Key{Name: "user"},
		State:     message.State{StreamState: message.StreamStateOpen, DataState: message.DataStateOk},
		Solicited: true,
		Complete:  true,
	})
}

func (h *routerHarness) directory(name string, entries ...*message.ServiceEntry) {
	h.recv(name, &message.RefreshMsg{
		Header:    message.Header{StreamID: directoryStreamID, DomainType: message.DomainSource},
		State:     message.State{StreamState: message.StreamStateOpen, DataState: message.DataStateOk},
		Solicited: true,
		Complete:  true,
		Payload:   &message.DirectoryMap{Entries: entries},
	})
}

func (h *routerHarness) directoryUpdate(name string, entries ...*message.ServiceEntry) {
	h.recv(name, &message.UpdateMsg{
		Header:  message.Header{StreamID: directoryStreamID, DomainType: message.DomainSource},
		Payload: &message.DirectoryMap{Entries: entries},
	})
}

// activateは、チャネルを接続しログインとソースディレクトリを完了させます。
func (h *routerHarness) activate(name string, entries ...*message.ServiceEntry) {
	h.up(name)
	h.acceptLogin(name)
	h.directory(name, entries...)
	h.sent(name)
}

func (h *routerHarness) advance(d time.Duration) {
	h.clk.Add(d)
	for {
		select {
		case f := <-h.posted:
			f()
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func (h *routerHarness) register(hd Handle, req *message.RequestMsg) {
	h.t.Helper()
	require.NoError(h.t, h.r.register(hd, req, nopEventHandler{}, nil))
}

// sentは、チャネルへ送信されたメッセージを取り出します。
func (h *routerHarness) sent(name string) []message.Msg {
	l := h.links[name]
	res := l.sent
	l.sent = nil
	return res
}

// eventsは、ハンドルへ配送されたメッセージを取り出します。
func (h *routerHarness) events(hd Handle) []message.Msg {
	var (
		res  []message.Msg
		rest []*Event
	)
	for _, ev := range h.em.events {
		if ev.Handle == hd {
			res = append(res, ev.Msg)
			continue
		}
		rest = append(rest, ev)
	}
	h.em.events = rest
	return res
}

func (h *routerHarness) itemRefresh(name string, streamID int32, itemName string) {
	h.recv(name, &message.RefreshMsg{
		Header:    message.Header{StreamID: streamID, DomainType: message.DomainMarketPrice},
		Key:       message.Key{Name: itemName},
		State:     message.State{StreamState: message.StreamStateOpen, DataState: message.DataStateOk},
		Solicited: true,
		Complete:  true,
	})
}

func service(id uint16, name string) *message.ServiceEntry {
	return &message.ServiceEntry{
		ServiceID: id,
		Action:    message.MapActionAdd,
		Info: &message.ServiceInfo{
			Name:         name,
			Capabilities: []message.DomainType{message.DomainMarketPrice, message.DomainMarketByOrder},
		},
		State: &message.ServiceState{ServiceState: message.ServiceUp},
	}
}

func itemRequest(serviceName, name string) *message.RequestMsg {
	return &message.RequestMsg{
		Header:    message.Header{DomainType: message.DomainMarketPrice},
		Key:       message.Key{Name: name, ServiceName: serviceName},
		Streaming: true,
	}
}

func itemRequestByID(id uint16, name string) *message.RequestMsg {
	return &message.RequestMsg{
		Header:    message.Header{DomainType: message.DomainMarketPrice},
		Key:       message.Key{Name: name, ServiceID: pointer.ToUint16(id)},
		Streaming: true,
	}
}

func lastRequest(t *testing.T, msgs []message.Msg) *message.RequestMsg {
	t.Helper()
	require.NotEmpty(t, msgs)
	req, ok := msgs[len(msgs)-1].(*message.RequestMsg)
	require.True(t, ok, "%T", msgs[len(msgs)-1])
	return req
}

func statusOf(t *testing.T, msg message.Msg) message.State {
	t.Helper()
	st, ok := msg.(*message.StatusMsg)
	require.True(t, ok, "%T", msg)
	require.NotNil(t, st.State)
	return *st.State
}
