package session_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aptpod/mdrouter-go/errors"
	"github.com/aptpod/mdrouter-go/message"
	. "github.com/aptpod/mdrouter-go/session"
)

func TestConnect(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	a, b := newProvider("A", "DIRECT_FEED"), newProvider("B", "OTHER")
	defer b.wait()
	defer a.wait()
	login := newEventRecorder()
	s := connect(t, []*provider{a, b}, WithLoginEventHandler(login))
	defer s.Close(ctx)

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, LoginHandle, s.LoginHandle())
	ev := login.next(t)
	assert.Equal(t, LoginHandle, ev.Handle)
	rf, ok := ev.Msg.(*message.RefreshMsg)
	require.True(t, ok)
	assert.Equal(t, "Login accepted", rf.State.Text)
	assert.Equal(t, "user", rf.Name)

	waitServices(t, s, "DIRECT_FEED", "OTHER")

	rec := newEventRecorder()
	h, err := s.Register(ctx, itemRequest("OTHER", "IBM.N"), rec, "closure")
	require.NoError(t, err)
	ev = rec.next(t)
	assert.Equal(t, h, ev.Handle)
	assert.Equal(t, "closure", ev.Closure)
	require.NotNil(t, ev.Channel)
	assert.Equal(t, "B", ev.Channel.Name)
	rf, ok = ev.Msg.(*message.RefreshMsg)
	require.True(t, ok)
	assert.Equal(t, int32(h), rf.StreamID)
	assert.Equal(t, "IBM.N", rf.Name)
	assert.Equal(t, "OTHER", rf.ServiceName)
	// IDはディレクトリの到着順で割り当てられる
	assert.GreaterOrEqual(t, *rf.ServiceID, ServiceIDBase)
	assert.Equal(t, "B", rf.Payload)

	infos, err := s.ChannelInformation(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for i, name := range []string{"A", "B"} {
		assert.Equal(t, name, infos[i].Name)
		assert.Equal(t, "group", infos[i].GroupName)
		assert.Equal(t, ChannelStateActive, infos[i].State)
		assert.Equal(t, LoginStateAccepted, infos[i].LoginState)
	}
	require.NoError(t, s.Close(ctx))
}

func TestConnect_loginTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	a := newProvider("A", "DIRECT_FEED")
	a.silent = true
	defer a.wait()

	_, err := Connect(context.Background(), dialer(a), channelGroup(a),
		WithLoginRequest(message.NewLoginRequest("user")),
		WithLoginRequestTimeout(100*time.Millisecond),
	)
	assert.ErrorIs(t, err, errors.ErrLoginTimeout)
	lerr, ok := errors.AsLoginTimeoutError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, lerr.Channels)
	assert.Equal(t, 100*time.Millisecond, lerr.Waited)
}

func TestConnect_invalidConfig(t *testing.T) {
	defer goleak.VerifyNone(t)
	_, err := Connect(context.Background(), dialer(), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestConnect_contextCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)
	a := newProvider("A", "DIRECT_FEED")
	a.silent = true
	defer a.wait()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Connect(ctx, dialer(a), channelGroup(a))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSession_Failover(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	a, b := newProvider("A", "DIRECT_FEED"), newProvider("B", "DIRECT_FEED_BACKUP")
	defer b.wait()
	defer a.wait()

	chEvents := make(chan *ChannelEvent, 100)
	s := connect(t, []*provider{a, b},
		WithServiceGroups(ServiceGroupConfig{Name: "SVG1", Services: []string{"DIRECT_FEED", "DIRECT_FEED_BACKUP"}}),
		WithChannelEventHandler(ChannelEventHandlerFunc(func(ev *ChannelEvent) {
			chEvents <- ev
		})),
	)
	defer s.Close(ctx)
	waitServices(t, s, "DIRECT_FEED", "DIRECT_FEED_BACKUP")

	rec := newEventRecorder()
	h, err := s.Register(ctx, &message.RequestMsg{
		Header:          message.Header{DomainType: message.DomainMarketPrice},
		Key:             message.Key{Name: "IBM.N"},
		ServiceListName: "SVG1",
		Streaming:       true,
	}, rec, nil)
	require.NoError(t, err)
	rf := rec.next(t).Msg.(*message.RefreshMsg)
	assert.Equal(t, "A", rf.Payload)
	assert.Equal(t, "SVG1", rf.ServiceName)

	a.kill()

	ev := rec.next(t)
	st, ok := ev.Msg.(*message.StatusMsg)
	require.True(t, ok, "%T", ev.Msg)
	assert.Equal(t, int32(h), st.StreamID)
	assert.Equal(t, message.StreamStateOpen, st.State.StreamState)
	assert.Equal(t, message.DataStateSuspect, st.State.DataState)
	assert.Equal(t, "Channel is down", st.State.Text)

	ev = rec.next(t)
	rf, ok = ev.Msg.(*message.RefreshMsg)
	require.True(t, ok, "%T", ev.Msg)
	assert.Equal(t, "B", rf.Payload)
	assert.Equal(t, "SVG1", rf.ServiceName)
	assert.Equal(t, "B", ev.Channel.Name)

	for {
		var ev *ChannelEvent
		select {
		case ev = <-chEvents:
		case <-time.After(waitTimeout):
			t.Fatal("channel A did not go down")
		}
		if ev.Channel.Name == "A" && ev.NewState == ChannelStateDown {
			assert.Equal(t, ChannelStateActive, ev.OldState)
			assert.Error(t, ev.Err)
			break
		}
	}
	require.NoError(t, s.Close(ctx))
}

func TestSession_Unregister(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	a := newProvider("A", "DIRECT_FEED")
	defer a.wait()
	s := connect(t, []*provider{a})
	defer s.Close(ctx)
	waitServices(t, s, "DIRECT_FEED")

	rec := newEventRecorder()
	h, err := s.Register(ctx, itemRequest("DIRECT_FEED", "IBM.N"), rec, nil)
	require.NoError(t, err)
	rec.next(t)

	require.NoError(t, s.Unregister(ctx, h))
	require.NoError(t, s.Unregister(ctx, h))
	select {
	case m := <-a.closes:
		assert.Equal(t, message.DomainMarketPrice, m.DomainType)
	case <-time.After(waitTimeout):
		t.Fatal("close was not sent")
	}

	err = s.SubmitPost(ctx, h, &message.PostMsg{})
	assert.ErrorIs(t, err, errors.ErrUnknownHandle)
	require.Eventually(t, func() bool { return UnregisteredLen(s) == 0 }, waitTimeout, 10*time.Millisecond)

	// チャネルを失っても解除済みのハンドルには通知されない
	a.kill()
	rec.none(t, 100*time.Millisecond)
}

func TestSession_Post(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	a := newProvider("A", "DIRECT_FEED")
	defer a.wait()
	s := connect(t, []*provider{a})
	defer s.Close(ctx)
	waitServices(t, s, "DIRECT_FEED")

	rec := newEventRecorder()
	h, err := s.Register(ctx, itemRequest("DIRECT_FEED", "IBM.N"), rec, nil)
	require.NoError(t, err)
	rec.next(t)

	require.NoError(t, s.SubmitPost(ctx, h, &message.PostMsg{
		Key:        message.Key{Name: "IBM.N", ServiceID: pointer.To(ServiceIDBase)},
		PostID:     42,
		SolicitAck: true,
	}))
	ev := rec.next(t)
	ack, ok := ev.Msg.(*message.AckMsg)
	require.True(t, ok, "%T", ev.Msg)
	assert.Equal(t, int32(h), ack.StreamID)
	assert.Equal(t, uint32(42), ack.AckID)

	err = s.SubmitPost(ctx, h, &message.PostMsg{Key: message.Key{ServiceName: "UNKNOWN"}})
	assert.ErrorIs(t, err, errors.ErrUnknownServiceName)
	require.NoError(t, s.SubmitGeneric(ctx, LoginHandle, &message.GenericMsg{Key: message.Key{Name: "gen"}}))
}

func TestSession_Batch(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	a := newProvider("A", "DIRECT_FEED")
	defer a.wait()
	s := connect(t, []*provider{a})
	defer s.Close(ctx)
	waitServices(t, s, "DIRECT_FEED")

	rec := newEventRecorder()
	req := itemRequest("DIRECT_FEED", "")
	req.Batch = []string{"IBM.N", "MSFT.O"}
	h, err := s.Register(ctx, req, rec, nil)
	require.NoError(t, err)

	got := make(map[Handle]message.Msg)
	for i := 0; i < 3; i++ {
		ev := rec.next(t)
		got[ev.Handle] = ev.Msg
	}
	st, ok := got[h].(*message.StatusMsg)
	require.True(t, ok)
	assert.Equal(t, "Stream closed for batch", st.State.Text)
	assert.Equal(t, "IBM.N", got[h+1].(*message.RefreshMsg).Name)
	assert.Equal(t, "MSFT.O", got[h+2].(*message.RefreshMsg).Name)

	// バッチのハンドルは後続の登録と重複しない
	h2, err := s.Register(ctx, itemRequest("DIRECT_FEED", "AAPL.O"), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, h+3, h2)
}

func TestSession_BatchOverOutputBuffers(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	a := newProvider("A", "DIRECT_FEED")
	defer a.wait()
	s, err := Connect(ctx, dialer(a), []ChannelGroupConfig{{
		Name:     "group",
		Channels: []ChannelConfig{{Name: "A", Address: "A:14002", GuaranteedOutputBuffers: 2}},
	}}, WithLoginRequest(message.NewLoginRequest("user")))
	require.NoError(t, err)
	defer s.Close(ctx)
	waitServices(t, s, "DIRECT_FEED")

	const n = 300
	rec := newEventRecorder()
	req := itemRequest("DIRECT_FEED", "")
	for i := 0; i < n; i++ {
		req.Batch = append(req.Batch, fmt.Sprintf("ITEM%03d", i))
	}
	h, err := s.Register(ctx, req, rec, nil)
	require.NoError(t, err)

	refreshed := make(map[Handle]struct{})
	for len(refreshed) < n {
		ev := rec.next(t)
		if ev.Handle == h {
			continue
		}
		rf, ok := ev.Msg.(*message.RefreshMsg)
		require.True(t, ok, "%T", ev.Msg)
		assert.Equal(t, fmt.Sprintf("ITEM%03d", ev.Handle-h-1), rf.Name)
		refreshed[ev.Handle] = struct{}{}
	}
	require.NoError(t, s.Close(ctx))
}

func TestSession_Close(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	a := newProvider("A", "DIRECT_FEED")
	defer a.wait()
	s := connect(t, []*provider{a})
	waitServices(t, s, "DIRECT_FEED")

	rec := newEventRecorder()
	h, err := s.Register(ctx, itemRequest("DIRECT_FEED", "IBM.N"), rec, nil)
	require.NoError(t, err)
	rec.next(t)

	require.NoError(t, s.Close(ctx))
	ev := rec.next(t)
	assert.Equal(t, h, ev.Handle)
	st, ok := ev.Msg.(*message.StatusMsg)
	require.True(t, ok)
	assert.Equal(t, message.StreamStateClosed, st.State.StreamState)
	assert.Equal(t, "Consumer session is closed", st.State.Text)

	require.NoError(t, s.Close(ctx))
	_, err = s.Register(ctx, itemRequest("DIRECT_FEED", "IBM.N"), rec, nil)
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
	_, err = s.ChannelInformation(ctx)
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
	assert.ErrorIs(t, s.Reissue(ctx, h, itemRequest("DIRECT_FEED", "IBM.N")), errors.ErrSessionClosed)
	assert.NoError(t, s.Unregister(ctx, h))
}

func TestSession_Metrics(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	a := newProvider("A", "DIRECT_FEED")
	defer a.wait()
	reg := prometheus.NewRegistry()
	s := connect(t, []*provider{a}, WithMetricsRegisterer(reg))
	waitServices(t, s, "DIRECT_FEED")

	rec := newEventRecorder()
	_, err := s.Register(ctx, itemRequest("DIRECT_FEED", "IBM.N"), rec, nil)
	require.NoError(t, err)
	rec.next(t)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var open float64
	for _, mf := range mfs {
		if mf.GetName() != "mdrouter_session_items" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "state" && l.GetValue() == "open" {
					open = m.GetGauge().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 1.0, open)

	require.NoError(t, s.Close(ctx))
	mfs, err = reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, mfs)
}

func TestSession_ModifyChannels(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	a := newProvider("A", "DIRECT_FEED")
	defer a.wait()
	s := connect(t, []*provider{a})
	defer s.Close(ctx)

	require.NoError(t, s.ModifyChannels(ctx, IOCtlNumInputBuffers, 300))
	assert.ErrorIs(t, s.ModifyChannels(ctx, IOCtlGuaranteedOutputBuffers, 1), errors.ErrInvalidIOCtl)
	infos, err := s.ChannelInformation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 300, infos[0].NumInputBuffers)
	assert.Equal(t, 100, infos[0].GuaranteedOutputBuffers)
}
