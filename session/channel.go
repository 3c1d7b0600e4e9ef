package session

import (
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/aptpod/mdrouter-go/message"
	"github.com/aptpod/mdrouter-go/wire"
)

// channelLinkは、ルーターからチャネルの物理コネクションを操作するインターフェースです。
type channelLink interface {
	// sendは、メッセージを送信キューへ積みます。
	send(msg message.Msg) error
	// reconnectは、現在のコネクションを切断し再接続を開始します。
	reconnect()
	// closeは、コネクションを閉じ再接続を停止します。
	close() error
	// modifyは、チャネルのパラメーターを変更します。
	modify(conf ChannelConfig)
}

// channelは、ルーティングループが所有するチャネルの状態です。
type channel struct {
	name  string
	group string
	conf  ChannelConfig
	link  channelLink

	state ChannelState
	login LoginState
	// 現在のコネクションの世代
	gen      uint64
	dirReady bool

	streamIDs   *wire.StreamIDGenerator
	services    map[uint16]*contribution
	serviceIDs  map[string]uint16
	streams     map[streamKey]*wireStream
	streamsByID map[int32]*wireStream
	posts       map[postKey]Handle

	loginTimer   *clock.Timer
	dirTimer     *clock.Timer
	abandonTimer *clock.Timer
}

func newChannel(group string, conf ChannelConfig, link channelLink) *channel {
	ch := &channel{
		name:  conf.Name,
		group: group,
		conf:  conf,
		link:  link,
		state: ChannelStateInitializing,
		login: LoginStateNotSent,
	}
	ch.resetTables()
	return ch
}

func (c *channel) resetTables() {
	c.streamIDs = wire.NewStreamIDGenerator(directoryStreamID)
	c.services = make(map[uint16]*contribution)
	c.serviceIDs = make(map[string]uint16)
	c.streams = make(map[streamKey]*wireStream)
	c.streamsByID = make(map[int32]*wireStream)
	c.posts = make(map[postKey]Handle)
	c.dirReady = false
}

// usableは、アイテムをルーティング可能かどうかを返却します。
func (c *channel) usable() bool {
	return c.state == ChannelStateActive && c.login == LoginStateAccepted && c.dirReady
}

func (c *channel) alive() bool {
	return c.state != ChannelStateDown && c.state != ChannelStateClosed
}

func (c *channel) info() *ChannelInformation {
	return &ChannelInformation{
		Name:                    c.name,
		GroupName:               c.group,
		Address:                 c.conf.Address,
		State:                   c.state,
		LoginState:              c.login,
		GuaranteedOutputBuffers: c.conf.GuaranteedOutputBuffers,
		NumInputBuffers:         c.conf.NumInputBuffers,
		HighWaterMark:           c.conf.HighWaterMark,
		SysSendBufSize:          c.conf.SysSendBufSize,
		SysRecvBufSize:          c.conf.SysRecvBufSize,
	}
}

func (c *channel) String() string {
	return c.name
}

func stopTimer(t **clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (c *channel) stopTimers() {
	stopTimer(&c.loginTimer)
	stopTimer(&c.dirTimer)
	stopTimer(&c.abandonTimer)
}

// streamKeyは、同一チャネル上でまとめることができるリクエストのキーです。
type streamKey struct {
	domain     message.DomainType
	name       string
	serviceID  uint16
	qos        string
	filter     string
	identifier string
	streaming  bool
}

func newStreamKey(req *message.RequestMsg, localServiceID uint16) streamKey {
	k := streamKey{
		domain:    req.DomainType,
		name:      req.Name,
		serviceID: localServiceID,
		streaming: req.Streaming,
	}
	if req.QoS != nil {
		k.qos = req.QoS.Best.String()
		if req.QoS.Worst != nil {
			k.qos += "-" + req.QoS.Worst.String()
		}
	}
	if req.Filter != nil {
		k.filter = fmt.Sprint(*req.Filter)
	}
	if req.Identifier != nil {
		k.identifier = fmt.Sprint(*req.Identifier)
	}
	return k
}

// wireStreamは、チャネル上の1つのストリームです。
//
// プライベートでないストリームは、同一リクエストの複数アイテムで共有されます。
type wireStream struct {
	id             int32
	key            streamKey
	private        bool
	localServiceID uint16
	req            *message.RequestMsg
	items          []*item
}

func (s *wireStream) priority() *message.Priority {
	p := message.Priority{Class: 1, Count: 0}
	for _, it := range s.items {
		if it.req.Priority != nil {
			if it.req.Priority.Class > p.Class {
				p.Class = it.req.Priority.Class
			}
			p.Count += it.req.Priority.Count
		} else {
			p.Count++
		}
	}
	return &p
}

func (s *wireStream) remove(it *item) {
	for i, v := range s.items {
		if v == it {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

type postKey struct {
	streamID int32
	postID   uint32
}
