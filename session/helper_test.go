package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aptpod/mdrouter-go/errors"
	"github.com/aptpod/mdrouter-go/message"
	. "github.com/aptpod/mdrouter-go/session"
	"github.com/aptpod/mdrouter-go/wire"
)

const waitTimeout = 3 * time.Second

// providerは、Pipeで接続するインメモリのプロバイダーです。
//
// ログインとソースディレクトリに応答し、アイテムリクエストには自身の名前をペイロードとしたリフレッシュを返却します。
type provider struct {
	name     string
	services []*message.ServiceEntry
	// ログインに応答しない
	silent bool

	mu     sync.Mutex
	conns  []*wire.PipeTransport
	refuse bool
	wg     sync.WaitGroup

	closes chan *message.CloseMsg
}

func newProvider(name string, services ...string) *provider {
	p := &provider{
		name:   name,
		closes: make(chan *message.CloseMsg, 100),
	}
	for i, s := range services {
		p.services = append(p.services, &message.ServiceEntry{
			ServiceID: uint16(i + 1),
			Action:    message.MapActionAdd,
			Info: &message.ServiceInfo{
				Name:         s,
				Capabilities: []message.DomainType{message.DomainMarketPrice},
			},
			State: &message.ServiceState{ServiceState: message.ServiceUp},
		})
	}
	return p
}

func (p *provider) channel() ChannelConfig {
	return ChannelConfig{Name: p.name, Address: p.name + ":14002"}
}

func (p *provider) dial() (wire.Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refuse {
		return nil, errors.New("connection refused")
	}
	cli, srv := wire.Pipe()
	p.conns = append(p.conns, srv)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer srv.Close()
		p.serve(srv)
	}()
	return cli, nil
}

func (p *provider) serve(tr wire.Transport) {
	for {
		msg, err := tr.Read()
		if err != nil {
			return
		}
		var res message.Msg
		switch m := msg.(type) {
		case *message.RequestMsg:
			res = p.respond(m)
		case *message.PostMsg:
			if m.SolicitAck {
				res = &message.AckMsg{Header: m.Header, AckID: m.PostID}
			}
		case *message.CloseMsg:
			p.closes <- m
		}
		if res == nil {
			continue
		}
		if err := tr.Write(res); err != nil {
			return
		}
	}
}

func (p *provider) respond(req *message.RequestMsg) message.Msg {
	ok := message.State{StreamState: message.StreamStateOpen, DataState: message.DataStateOk}
	switch req.DomainType {
	case message.DomainLogin:
		if p.silent {
			return nil
		}
		return &message.RefreshMsg{
			Header:    req.Header,
			Key:       message.Key{Name: req.Name},
			State:     ok,
			Solicited: true,
			Complete:  true,
		}
	case message.DomainSource:
		return &message.RefreshMsg{
			Header:    req.Header,
			State:     ok,
			Solicited: true,
			Complete:  true,
			Payload:   &message.DirectoryMap{Entries: p.services},
		}
	default:
		return &message.RefreshMsg{
			Header:    req.Header,
			Key:       message.Key{Name: req.Name, ServiceID: req.ServiceID},
			State:     ok,
			Solicited: true,
			Complete:  true,
			Payload:   p.name,
		}
	}
}

// killは、全コネクションを切断し、以後の接続を拒否します。
func (p *provider) kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refuse = true
	for _, c := range p.conns {
		c.Close()
	}
}

func (p *provider) wait() {
	p.wg.Wait()
}

func dialer(ps ...*provider) wire.Dialer {
	return wire.DialerFunc(func(ctx context.Context, c wire.DialConfig) (wire.Transport, error) {
		for _, p := range ps {
			if p.name == c.ChannelName {
				return p.dial()
			}
		}
		return nil, errors.Errorf("unknown channel %q", c.ChannelName)
	})
}

func channelGroup(ps ...*provider) []ChannelGroupConfig {
	g := ChannelGroupConfig{Name: "group"}
	for _, p := range ps {
		g.Channels = append(g.Channels, p.channel())
	}
	return []ChannelGroupConfig{g}
}

type eventRecorder struct {
	ch chan *Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan *Event, 1000)}
}

func (r *eventRecorder) OnEvent(ev *Event) {
	r.ch <- ev
}

func (r *eventRecorder) next(t *testing.T) *Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (r *eventRecorder) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-r.ch:
		t.Fatalf("unexpected event %T %+v", ev.Msg, ev.Msg)
	case <-time.After(d):
	}
}

func connect(t *testing.T, ps []*provider, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{
		WithLoginRequest(message.NewLoginRequest("user")),
		WithReconnect(true, 10*time.Millisecond, 20*time.Millisecond),
	}, opts...)
	s, err := Connect(context.Background(), dialer(ps...), channelGroup(ps...), opts...)
	require.NoError(t, err)
	return s
}

// waitServicesは、統合したディレクトリに全てのサービスが現れるまで待ちます。
func waitServices(t *testing.T, s *Session, names ...string) {
	t.Helper()
	ctx := context.Background()
	rec := newEventRecorder()
	h, err := s.Register(ctx, &message.RequestMsg{
		Header:    message.Header{DomainType: message.DomainSource},
		Streaming: true,
	}, rec, nil)
	require.NoError(t, err)
	defer s.Unregister(ctx, h)

	want := make(map[string]struct{})
	for _, n := range names {
		want[n] = struct{}{}
	}
	for len(want) > 0 {
		var payload any
		switch m := rec.next(t).Msg.(type) {
		case *message.RefreshMsg:
			payload = m.Payload
		case *message.UpdateMsg:
			payload = m.Payload
		}
		dir, ok := payload.(*message.DirectoryMap)
		if !ok {
			continue
		}
		for _, e := range dir.Entries {
			if e.Info != nil {
				delete(want, e.Info.Name)
			}
		}
	}
}

func itemRequest(serviceName, name string) *message.RequestMsg {
	return &message.RequestMsg{
		Header:    message.Header{DomainType: message.DomainMarketPrice},
		Key:       message.Key{Name: name, ServiceName: serviceName},
		Streaming: true,
	}
}
