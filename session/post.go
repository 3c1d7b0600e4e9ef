package session

import (
	"github.com/aptpod/mdrouter-go/errors"
	"github.com/aptpod/mdrouter-go/message"
)

// submitPostは、PostMsgをルーティングします。
//
// アイテムのハンドルの場合はそのアイテムをサービングしているチャネルへ、
// ログインハンドルの場合はログイン済みの全チャネルへ送信します。
func (r *router) submitPost(h Handle, msg *message.PostMsg) error {
	if r.closed {
		return errors.ErrSessionClosed
	}
	if h == LoginHandle {
		return r.fanOut(func(ch *channel) (message.Msg, bool) {
			c := *msg
			c.StreamID = loginStreamID
			c.DomainType = message.DomainLogin
			c.Key = r.offStreamKey(ch, msg.Key)
			if c.SolicitAck {
				ch.posts[postKey{streamID: loginStreamID, postID: c.PostID}] = LoginHandle
			}
			return &c, true
		})
	}
	it, ws, err := r.boundItem(h)
	if err != nil {
		return err
	}
	key, err := r.onStreamKey(it.ch, msg.Key)
	if err != nil {
		return err
	}
	c := *msg
	c.StreamID = ws.id
	c.DomainType = ws.req.DomainType
	c.Key = key
	if c.SolicitAck {
		it.ch.posts[postKey{streamID: ws.id, postID: c.PostID}] = it.handle
	}
	r.send(it.ch, &c)
	return nil
}

// submitGenericは、GenericMsgをルーティングします。
func (r *router) submitGeneric(h Handle, msg *message.GenericMsg) error {
	if r.closed {
		return errors.ErrSessionClosed
	}
	if h == LoginHandle {
		return r.fanOut(func(ch *channel) (message.Msg, bool) {
			c := *msg
			c.StreamID = loginStreamID
			c.Key = r.offStreamKey(ch, msg.Key)
			return &c, true
		})
	}
	it, ws, err := r.boundItem(h)
	if err != nil {
		return err
	}
	key, err := r.onStreamKey(it.ch, msg.Key)
	if err != nil {
		return err
	}
	c := *msg
	c.StreamID = ws.id
	c.Key = key
	r.send(it.ch, &c)
	return nil
}

func (r *router) boundItem(h Handle) (*item, *wireStream, error) {
	it, ok := r.items[h]
	if !ok {
		if _, ok := r.dirStreams[h]; ok {
			return nil, nil, errors.Errorf("handle %d: %w", h, errors.ErrStreamNotOpen)
		}
		return nil, nil, errors.Errorf("handle %d: %w", h, errors.ErrUnknownHandle)
	}
	if !it.bound() {
		return nil, nil, errors.Errorf("handle %d: %w", h, errors.ErrStreamNotOpen)
	}
	return it, it.stream, nil
}

// onStreamKeyは、アイテムストリーム上のメッセージのキーをチャネルローカルのサービスへ変換します。
func (r *router) onStreamKey(ch *channel, k message.Key) (message.Key, error) {
	res := k
	if k.HasServiceName() {
		if _, ok := ch.serviceIDs[k.ServiceName]; !ok {
			return res, errors.Errorf("%q on channel %s: %w", k.ServiceName, ch.name, errors.ErrUnknownServiceName)
		}
	}
	if k.HasServiceID() {
		localID, ok := r.localServiceID(ch, *k.ServiceID)
		if !ok {
			return res, errors.Errorf("%d on channel %s: %w", *k.ServiceID, ch.name, errors.ErrUnknownServiceID)
		}
		res.ServiceID = &localID
	}
	return res, nil
}

// offStreamKeyは、ログインストリーム上のメッセージのキーを変換します。
//
// チャネルが認識しないサービスIDはそのまま送信します。
func (r *router) offStreamKey(ch *channel, k message.Key) message.Key {
	res := k
	if k.HasServiceID() {
		if localID, ok := r.localServiceID(ch, *k.ServiceID); ok {
			res.ServiceID = &localID
		}
	}
	return res
}

func (r *router) localServiceID(ch *channel, sessionID uint16) (uint16, bool) {
	rec, ok := r.registry.lookupByID(sessionID)
	if !ok {
		return 0, false
	}
	localID, ok := ch.serviceIDs[rec.name]
	return localID, ok
}

func (r *router) fanOut(build func(ch *channel) (message.Msg, bool)) error {
	var sent int
	for _, ch := range r.channels {
		if ch.login != LoginStateAccepted || !ch.alive() {
			continue
		}
		msg, ok := build(ch)
		if !ok {
			continue
		}
		r.send(ch, msg)
		sent++
	}
	if sent == 0 {
		return errors.Errorf("no channel is logged in: %w", errors.ErrStreamNotOpen)
	}
	return nil
}
