package session

import (
	"github.com/aptpod/mdrouter-go/errors"
	"github.com/aptpod/mdrouter-go/message"
)

func (r *router) registerItem(it *item) {
	r.items[it.handle] = it
	r.metrics.itemAdded(it.status)
	r.dispatchOrWait(it)
}

func (r *router) setItemStatus(it *item, s itemStatus) {
	r.metrics.itemTransition(it.status, s)
	it.status = s
}

// removeItemは、アイテムを削除します。sendWireがtrueの場合、チャネル上のストリームをクローズします。
func (r *router) removeItem(it *item, sendWire bool) {
	if r.items[it.handle] != it {
		return
	}
	r.detach(it, sendWire)
	delete(r.items, it.handle)
	r.metrics.itemRemoved(it.status)
}

// reevaluateは、未サービスのアイテムを再度ルーティングします。
func (r *router) reevaluate() {
	if r.closed {
		return
	}
	for _, it := range r.sortedItems() {
		if it.status != itemStatusUnserviced || r.items[it.handle] != it {
			continue
		}
		r.dispatchOrWait(it)
	}
}

// resolveは、アイテムのセレクターを候補となるサービス名の一覧へ解決します。
//
// terminalが空でない場合、再評価しても解決できないエラーです。
func (r *router) resolve(it *item) (names []string, terminal string) {
	sel := it.sel
	var n int
	if sel.serviceName != "" {
		n++
	}
	if sel.serviceID != nil {
		n++
	}
	if sel.groupName != "" {
		n++
	}
	switch {
	case n == 0:
		return nil, textNoService
	case n > 1:
		return nil, textAmbiguousService
	}

	switch {
	case sel.groupName != "":
		g, ok := r.groups.lookup(sel.groupName)
		if !ok {
			return nil, textUnknownServiceList
		}
		return g.members, ""
	case sel.serviceID != nil:
		id := *sel.serviceID
		if id == 0 {
			return nil, textInvalidServiceID
		}
		if rec, ok := r.registry.lookupByID(id); ok {
			return []string{rec.name}, ""
		}
		if name, ok := r.registry.groupNameByID(id); ok {
			if g, ok := r.groups.lookup(name); ok {
				return g.members, ""
			}
		}
		for name, v := range r.registry.ids {
			if v == id {
				return []string{name}, ""
			}
		}
		return nil, ""
	default:
		if _, ok := r.registry.lookupByName(sel.serviceName); !ok {
			if g, ok := r.groups.lookup(sel.serviceName); ok {
				return g.members, ""
			}
		}
		return []string{sel.serviceName}, ""
	}
}

// selectContributionは、アイテムをサービングできるコントリビューションを選択します。
//
// 見つからない場合は未サービス理由を返却します。
func (r *router) selectContribution(it *item, names []string) (*contribution, string) {
	const (
		rankNoService = iota
		rankCapability
		rankQoS
		rankAccepting
	)
	rank := rankNoService
	var fallback *contribution
	for _, name := range names {
		rec, ok := r.registry.lookupByName(name)
		if !ok {
			continue
		}
		var cands []*contribution
		for _, c := range rec.contributors {
			if !c.ch.usable() {
				continue
			}
			if it.pinned != nil && c.ch != it.pinned {
				continue
			}
			if !c.info.HasCapability(it.req.DomainType) {
				rank = max(rank, rankCapability)
				continue
			}
			if !c.info.MatchesQoS(it.req.QoS) {
				rank = max(rank, rankQoS)
				continue
			}
			if !c.acceptingRequests() {
				rank = max(rank, rankAccepting)
				continue
			}
			cands = append(cands, c)
		}
		for _, c := range cands {
			if c.ch != it.failed {
				return c, ""
			}
		}
		if fallback == nil && len(cands) > 0 {
			fallback = cands[0]
		}
	}
	// 失敗したチャネルしか残っていない場合はそのチャネルへ再送します。
	if fallback != nil {
		return fallback, ""
	}
	switch rank {
	case rankCapability:
		return nil, textCapabilityNotSupported
	case rankQoS:
		return nil, textNoMatchingQoS
	case rankAccepting:
		return nil, textNotAcceptingRequests
	default:
		return nil, textNoMatchingService
	}
}

// dispatchOrWaitは、アイテムをチャネルへ送信するか、未サービスとして待機させます。
func (r *router) dispatchOrWait(it *item) {
	names, terminal := r.resolve(it)
	if terminal != "" {
		r.emitItemStatus(it, message.State{
			StreamState: message.StreamStateClosed,
			DataState:   message.DataStateSuspect,
			Code:        message.StatusCodeNotFound,
			Text:        terminal,
		}, nil)
		r.removeItem(it, false)
		return
	}
	c, reason := r.selectContribution(it, names)
	if c == nil {
		if it.pinned != nil {
			// 固定されたチャネルの再接続を待ちます。
			r.setItemStatus(it, itemStatusUnserviced)
			return
		}
		r.unserviced(it, reason)
		return
	}
	r.dispatch(it, c)
}

// unservicedは、未サービス理由を通知します。同じ理由は繰り返し通知しません。
func (r *router) unserviced(it *item, reason string) {
	r.setItemStatus(it, itemStatusUnserviced)
	if it.lastReason == reason {
		return
	}
	it.lastReason = reason
	r.metrics.unserviced.Inc()
	r.emitItemStatus(it, message.State{
		StreamState: message.StreamStateOpen,
		DataState:   message.DataStateSuspect,
		Text:        reason,
	}, nil)
}

// dispatchは、アイテムのリクエストをチャネルへ送信します。
//
// 同一チャネル上に同じリクエストのストリームがある場合は、優先度カウントを加算して再発行します。
func (r *router) dispatch(it *item, c *contribution) {
	ch := c.ch
	wreq := it.req.Clone()
	localID := c.localID
	wreq.ServiceID = &localID
	wreq.ServiceName = ""
	wreq.ServiceListName = ""
	wreq.Batch = nil

	var ws *wireStream
	key := newStreamKey(wreq, localID)
	if !it.private() {
		ws = ch.streams[key]
	}
	if ws == nil {
		ws = &wireStream{
			id:             ch.streamIDs.Next(),
			key:            key,
			private:        it.private(),
			localServiceID: localID,
		}
		if !ws.private {
			ch.streams[key] = ws
		}
		ch.streamsByID[ws.id] = ws
	}
	ws.items = append(ws.items, it)
	wreq.StreamID = ws.id
	wreq.Priority = ws.priority()
	ws.req = wreq

	it.ch = ch
	it.stream = ws
	it.serviceName = c.name
	if it.pinned == ch {
		it.pinned = nil
	}
	r.setItemStatus(it, itemStatusPending)
	r.send(ch, wreq.Clone())

	it.attempt++
	attempt := it.attempt
	stopTimer(&it.timer)
	it.timer = r.afterFunc(r.conf.RequestTimeout, func() {
		r.onItemTimeout(it, attempt)
	})
}

func (r *router) onItemTimeout(it *item, attempt uint64) {
	if r.closed || r.items[it.handle] != it || it.attempt != attempt || it.status != itemStatusPending {
		return
	}
	r.logger.Warnf(r.channelCtx(it.ch), "Request timeout on handle %d", it.handle)
	r.recover(it, it.ch, message.State{
		StreamState: message.StreamStateOpen,
		DataState:   message.DataStateSuspect,
		Code:        message.StatusCodeTimeout,
		Text:        textRequestTimeout,
	})
}

// detachは、アイテムをチャネル上のストリームから切り離します。
//
// ストリームに他のアイテムが残る場合は優先度カウントを減算して再発行し、残らない場合はクローズします。
func (r *router) detach(it *item, sendWire bool) {
	stopTimer(&it.timer)
	ws, ch := it.stream, it.ch
	it.stream, it.ch = nil, nil
	if ws == nil || ch == nil {
		return
	}
	ws.remove(it)
	if len(ws.items) == 0 {
		r.forgetStream(ch, ws)
		if sendWire && ch.alive() {
			r.send(ch, &message.CloseMsg{Header: message.Header{StreamID: ws.id, DomainType: ws.req.DomainType}})
		}
		return
	}
	if sendWire && ch.alive() {
		req := ws.req.Clone()
		req.Priority = ws.priority()
		ws.req = req
		r.send(ch, req.Clone())
	}
}

func (r *router) forgetStream(ch *channel, ws *wireStream) {
	delete(ch.streamsByID, ws.id)
	if cur, ok := ch.streams[ws.key]; ok && cur == ws {
		delete(ch.streams, ws.key)
	}
	for k := range ch.posts {
		if k.streamID == ws.id {
			delete(ch.posts, k)
		}
	}
}

// dropStreamは、チャネル上のストリームを破棄し、切り離したアイテムを返却します。
func (r *router) dropStream(ch *channel, ws *wireStream) []*item {
	r.forgetStream(ch, ws)
	items := append([]*item(nil), ws.items...)
	for _, it := range items {
		stopTimer(&it.timer)
		it.stream, it.ch = nil, nil
	}
	ws.items = nil
	return items
}

// channelLostは、チャネルのダウンにより切り離されたアイテムを処理します。
func (r *router) channelLost(it *item, ch *channel, text string) {
	if r.items[it.handle] != it {
		return
	}
	st := message.State{
		StreamState: message.StreamStateOpen,
		DataState:   message.DataStateSuspect,
		Text:        text,
	}
	if it.private() || r.conf.EnhancedItemRecovery {
		r.recover(it, ch, st)
		return
	}
	it.pinned = ch
	it.failed = ch
	r.setItemStatus(it, itemStatusUnserviced)
	it.lastReason = text
	r.emitItemStatus(it, st, ch)
}

// recoverは、アイテムを回復させます。
//
// プライベートストリームはフェイルオーバーせず、ClosedRecoverを通知して削除します。
// それ以外は失敗したチャネル以外を優先して再送信します。
func (r *router) recover(it *item, failed *channel, st message.State) {
	r.detach(it, true)
	r.metrics.failovers.Inc()
	if it.private() {
		r.setItemStatus(it, itemStatusClosedRecover)
		r.emitItemStatus(it, message.State{
			StreamState: message.StreamStateClosedRecover,
			DataState:   message.DataStateSuspect,
			Code:        st.Code,
			Text:        st.Text,
		}, failed)
		r.removeItem(it, false)
		return
	}
	r.setItemStatus(it, itemStatusUnserviced)
	it.failed = failed
	it.lastReason = st.Text
	r.emitItemStatus(it, message.State{
		StreamState: message.StreamStateOpen,
		DataState:   message.DataStateSuspect,
		Code:        st.Code,
		Text:        st.Text,
	}, failed)
	r.dispatchOrWait(it)
}

// onChannelItemMsgは、アイテムストリームのメッセージをアイテムへ配送します。
func (r *router) onChannelItemMsg(ch *channel, msg message.Msg) {
	ws, ok := ch.streamsByID[msg.GetStreamID()]
	if !ok {
		r.logger.Debugf(r.channelCtx(ch), "Drop %T on unknown stream %d", msg, msg.GetStreamID())
		return
	}
	switch m := msg.(type) {
	case *message.RefreshMsg:
		r.onItemState(ch, ws, m.State, m, m.ItemGroup)
	case *message.StatusMsg:
		if m.State == nil {
			r.forward(ch, ws, m, m.ItemGroup)
			return
		}
		r.onItemState(ch, ws, *m.State, m, m.ItemGroup)
	case *message.AckMsg:
		k := postKey{streamID: ws.id, postID: m.AckID}
		if h, ok := ch.posts[k]; ok {
			delete(ch.posts, k)
			if it, ok := r.items[h]; ok && it.stream == ws {
				r.emit(it.handler, it.handle, it.closure, r.translate(it, m), ch)
				return
			}
		}
		r.forward(ch, ws, m, nil)
	default:
		r.forward(ch, ws, msg, nil)
	}
}

func (r *router) forward(ch *channel, ws *wireStream, msg message.Msg, group []byte) {
	items := append([]*item(nil), ws.items...)
	for _, it := range items {
		if len(group) > 0 {
			it.group = append([]byte(nil), group...)
		}
		r.emit(it.handler, it.handle, it.closure, r.translate(it, msg), ch)
	}
}

func (r *router) onItemState(ch *channel, ws *wireStream, st message.State, msg message.Msg, group []byte) {
	switch st.StreamState {
	case message.StreamStateClosedRecover:
		items := r.dropStream(ch, ws)
		for _, it := range items {
			r.recover(it, ch, st)
		}
	case message.StreamStateClosed, message.StreamStateClosedRedirected:
		items := r.dropStream(ch, ws)
		for _, it := range items {
			r.emit(it.handler, it.handle, it.closure, r.translate(it, msg), ch)
			r.removeItem(it, false)
		}
	default:
		refresh, isRefresh := msg.(*message.RefreshMsg)
		items := append([]*item(nil), ws.items...)
		for _, it := range items {
			if len(group) > 0 {
				it.group = append([]byte(nil), group...)
			}
			if isRefresh {
				stopTimer(&it.timer)
				it.failed = nil
				it.lastReason = ""
				r.setItemStatus(it, itemStatusOpen)
			}
			r.emit(it.handler, it.handle, it.closure, r.translate(it, msg), ch)
		}
		if isRefresh && refresh.Complete && st.StreamState == message.StreamStateNonStreaming {
			for _, it := range r.dropStream(ch, ws) {
				r.removeItem(it, false)
			}
		}
	}
}

// itemKeyは、アイテムへ配送するメッセージのキーを返却します。
//
// サービスはセッションレベルのIDと名前で表します。
func (r *router) itemKey(it *item, name string) message.Key {
	k := message.Key{
		Name:       name,
		Filter:     it.req.Filter,
		Identifier: it.req.Identifier,
	}
	if k.Name == "" {
		k.Name = it.req.Name
	}
	switch {
	case it.sel.groupName != "":
		id := r.registry.groupID(it.sel.groupName)
		k.ServiceID = &id
		k.ServiceName = it.sel.groupName
	case it.sel.serviceID != nil:
		id := *it.sel.serviceID
		k.ServiceID = &id
		if rec, ok := r.registry.lookupByID(id); ok {
			k.ServiceName = rec.name
		} else if name, ok := r.registry.groupNameByID(id); ok {
			k.ServiceName = name
		}
	default:
		k.ServiceName = it.sel.serviceName
		if _, ok := r.groups.lookup(it.sel.serviceName); ok {
			if _, isService := r.registry.ids[it.sel.serviceName]; !isService {
				id := r.registry.groupID(it.sel.serviceName)
				k.ServiceID = &id
				return k
			}
		}
		if id, ok := r.registry.ids[it.sel.serviceName]; ok {
			k.ServiceID = &id
		}
	}
	return k
}

func (r *router) emitItemStatus(it *item, st message.State, ch *channel) {
	r.emit(it.handler, it.handle, it.closure, &message.StatusMsg{
		Header:        message.Header{StreamID: int32(it.handle), DomainType: it.req.DomainType},
		Key:           r.itemKey(it, ""),
		State:         &st,
		PrivateStream: it.private(),
		ItemGroup:     it.group,
	}, ch)
}

// translateは、チャネルから受信したメッセージをアイテム向けに複製し、ストリームIDとサービスを変換します。
func (r *router) translate(it *item, msg message.Msg) message.Msg {
	switch m := msg.(type) {
	case *message.RefreshMsg:
		c := *m
		c.StreamID = int32(it.handle)
		c.Key = r.itemKey(it, m.Name)
		return &c
	case *message.UpdateMsg:
		c := *m
		c.StreamID = int32(it.handle)
		c.Key = r.itemKey(it, m.Name)
		return &c
	case *message.StatusMsg:
		c := *m
		c.StreamID = int32(it.handle)
		c.Key = r.itemKey(it, m.Name)
		return &c
	case *message.GenericMsg:
		c := *m
		c.StreamID = int32(it.handle)
		c.Key = r.itemKey(it, m.Name)
		return &c
	case *message.AckMsg:
		c := *m
		c.StreamID = int32(it.handle)
		c.Key = r.itemKey(it, m.Name)
		return &c
	case *message.PostMsg:
		c := *m
		c.StreamID = int32(it.handle)
		c.Key = r.itemKey(it, m.Name)
		return &c
	default:
		return msg
	}
}

// reissueItemは、アイテムのリクエストを変更します。
//
// アイテム名、サービス、ドメイン、プライベート指定は変更できません。
func (r *router) reissueItem(it *item, req *message.RequestMsg) error {
	if req.IsBatch() || req.Name != it.req.Name || req.DomainType != it.req.DomainType ||
		req.PrivateStream != it.req.PrivateStream || req.ServiceName != it.req.ServiceName ||
		req.ServiceListName != it.req.ServiceListName || !sameServiceID(req.ServiceID, it.req.ServiceID) {
		return errors.Errorf("handle %d: %w", it.handle, errors.ErrInvalidReissue)
	}
	it.req = req.Clone()
	if !it.bound() {
		if it.status == itemStatusUnserviced {
			r.dispatchOrWait(it)
		}
		return nil
	}
	ws, ch := it.stream, it.ch
	wreq := it.req.Clone()
	wreq.ServiceID = &ws.localServiceID
	wreq.ServiceName = ""
	key := newStreamKey(wreq, ws.localServiceID)
	if key != ws.key && ws.private {
		ws.key = key
	} else if key != ws.key {
		// リクエストの内容が変わった場合は別のストリームとして送信し直します。
		r.detach(it, true)
		r.setItemStatus(it, itemStatusUnserviced)
		r.dispatchOrWait(it)
		return nil
	}
	wreq.StreamID = ws.id
	wreq.Priority = ws.priority()
	ws.req = wreq
	r.send(ch, wreq.Clone())
	return nil
}

func sameServiceID(a, b *uint16) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
