package session

import (
	"bytes"
	"sort"

	"github.com/AlekSi/pointer"

	"github.com/aptpod/mdrouter-go/errors"
	"github.com/aptpod/mdrouter-go/message"
)

func (r *router) requestDirectory(ch *channel) {
	ch.dirReady = false
	r.send(ch, &message.RequestMsg{
		Header:    message.Header{StreamID: directoryStreamID, DomainType: message.DomainSource},
		Key:       message.Key{Filter: pointer.ToUint32(uint32(message.FilterMaskAll))},
		Streaming: true,
	})
	gen := ch.gen
	stopTimer(&ch.dirTimer)
	ch.dirTimer = r.afterFunc(r.conf.DirectoryRequestTimeout, func() {
		if ch.gen != gen || ch.dirReady || !ch.alive() {
			return
		}
		r.failChannel(ch, errors.Errorf("directory request timed out after %v", r.conf.DirectoryRequestTimeout))
	})
}

func (r *router) onChannelDirectoryMsg(ch *channel, msg message.Msg) {
	switch m := msg.(type) {
	case *message.RefreshMsg:
		if m.State.StreamState.IsClosed() {
			r.failChannel(ch, errors.Errorf("directory stream closed: %v", m.State))
			return
		}
		dir, _ := m.Payload.(*message.DirectoryMap)
		stopTimer(&ch.dirTimer)
		r.applyDirectory(ch, dir, !ch.dirReady || m.ClearCache)
		ch.dirReady = true
		r.reevaluate()
	case *message.UpdateMsg:
		if !ch.dirReady {
			r.logger.Debugf(r.channelCtx(ch), "Ignore directory update before refresh")
			return
		}
		dir, _ := m.Payload.(*message.DirectoryMap)
		r.applyDirectory(ch, dir, false)
		r.reevaluate()
	case *message.StatusMsg:
		if m.State != nil && m.State.StreamState.IsClosed() {
			r.failChannel(ch, errors.Errorf("directory stream closed: %v", *m.State))
		}
	default:
		r.logger.Debugf(r.channelCtx(ch), "Ignore %T on directory stream", msg)
	}
}

type itemTrigger struct {
	c      *contribution
	state  *message.State
	groups []*message.ServiceGroupState
	lost   bool
	text   string
}

// applyDirectoryは、チャネルのソースディレクトリをサービステーブルへ反映し、
// 統合した差分をディレクトリストリームへ配送した後、影響するアイテムを処理します。
func (r *router) applyDirectory(ch *channel, dir *message.DirectoryMap, full bool) {
	var (
		deltas   []*message.ServiceEntry
		names    = make(map[uint16]string)
		triggers []itemTrigger
		seen     = make(map[uint16]struct{})
	)
	addDelta := func(d *message.ServiceEntry, name string) {
		if d == nil {
			return
		}
		deltas = append(deltas, d)
		names[d.ServiceID] = name
	}
	if dir != nil {
		for _, e := range dir.Entries {
			seen[e.ServiceID] = struct{}{}
			switch e.Action {
			case message.MapActionDelete:
				c, ok := ch.services[e.ServiceID]
				if !ok {
					continue
				}
				r.removeContribution(ch, c)
				addDelta(r.registry.remove(c), c.name)
				triggers = append(triggers, itemTrigger{c: c, lost: true, text: textServiceDeleted})
			default:
				c, ok := ch.services[e.ServiceID]
				if !ok {
					if e.Info == nil || e.Info.Name == "" {
						r.logger.Warnf(r.channelCtx(ch), "Ignore service %d without name", e.ServiceID)
						continue
					}
					if old, ok := ch.serviceIDs[e.Info.Name]; ok {
						oc := ch.services[old]
						r.removeContribution(ch, oc)
						addDelta(r.registry.remove(oc), oc.name)
						triggers = append(triggers, itemTrigger{c: oc, lost: true, text: textServiceDeleted})
					}
					c = &contribution{
						ch:      ch,
						localID: e.ServiceID,
						name:    e.Info.Name,
						info:    e.Info,
						state:   e.State,
						groups:  e.Groups,
					}
					ch.services[c.localID] = c
					ch.serviceIDs[c.name] = c.localID
					addDelta(r.registry.add(c), c.name)
					continue
				}
				if e.Info != nil {
					info := *e.Info
					info.Name = c.name
					c.info = &info
				}
				if e.State != nil {
					c.state = e.State
				}
				if len(e.Groups) > 0 {
					c.groups = e.Groups
				}
				addDelta(r.registry.update(c, e.Groups), c.name)
				if e.State != nil || len(e.Groups) > 0 {
					triggers = append(triggers, itemTrigger{c: c, state: stateOf(e.State), groups: e.Groups})
				}
			}
		}
	}
	if full {
		ids := make([]int, 0, len(ch.services))
		for id := range ch.services {
			if _, ok := seen[id]; !ok {
				ids = append(ids, int(id))
			}
		}
		sort.Ints(ids)
		for _, id := range ids {
			c := ch.services[uint16(id)]
			r.removeContribution(ch, c)
			addDelta(r.registry.remove(c), c.name)
			triggers = append(triggers, itemTrigger{c: c, lost: true, text: textServiceDeleted})
		}
	}
	r.publishDeltas(deltas, names)
	for _, t := range triggers {
		r.applyItemTrigger(ch, t)
	}
}

func stateOf(s *message.ServiceState) *message.State {
	if s == nil {
		return nil
	}
	return s.Status
}

func (r *router) removeContribution(ch *channel, c *contribution) {
	delete(ch.services, c.localID)
	if id, ok := ch.serviceIDs[c.name]; ok && id == c.localID {
		delete(ch.serviceIDs, c.name)
	}
}

// publishDeltasは、統合した差分を全ディレクトリストリームへ配送します。
func (r *router) publishDeltas(deltas []*message.ServiceEntry, names map[uint16]string) {
	if len(deltas) == 0 {
		return
	}
	for _, d := range deltas {
		r.metrics.directoryDeltas.WithLabelValues(d.Action.String()).Inc()
	}
	for _, s := range r.sortedDirStreams() {
		if msg := s.updateMsg(deltas, names); msg != nil {
			r.emit(s.handler, s.handle, s.closure, msg, nil)
		}
	}
}

// applyItemTriggerは、サービスの変化をそのサービスでサービング中のアイテムへ反映します。
func (r *router) applyItemTrigger(ch *channel, t itemTrigger) {
	items := r.itemsServedBy(ch, t.c.localID)
	if len(items) == 0 {
		return
	}
	if t.lost || !t.c.acceptingRequests() {
		text := t.text
		if text == "" {
			text = textServiceDown
		}
		for _, it := range items {
			if r.items[it.handle] != it || it.ch != ch {
				continue
			}
			r.recover(it, ch, message.State{
				StreamState: message.StreamStateOpen,
				DataState:   message.DataStateSuspect,
				Text:        text,
			})
		}
		return
	}
	if t.state != nil {
		for _, it := range items {
			if r.items[it.handle] != it || it.ch != ch {
				continue
			}
			r.applyItemState(it, ch, *t.state)
		}
	}
	for _, g := range t.groups {
		for _, it := range items {
			if r.items[it.handle] != it || it.ch != ch || !bytes.Equal(it.group, g.Group) {
				continue
			}
			if len(g.MergedToGroup) > 0 {
				it.group = append([]byte(nil), g.MergedToGroup...)
			}
			if g.Status != nil {
				r.applyItemState(it, ch, *g.Status)
			}
		}
	}
}

// applyItemStateは、サービスまたはアイテムグループの状態をアイテムへ適用します。
func (r *router) applyItemState(it *item, ch *channel, st message.State) {
	switch st.StreamState {
	case message.StreamStateClosedRecover:
		r.recover(it, ch, st)
	case message.StreamStateClosed, message.StreamStateClosedRedirected:
		r.emitItemStatus(it, st, ch)
		r.removeItem(it, true)
	default:
		r.emitItemStatus(it, st, ch)
	}
}

func (r *router) itemsServedBy(ch *channel, localID uint16) []*item {
	var res []*item
	for _, ws := range ch.sortedStreams() {
		if ws.localServiceID != localID {
			continue
		}
		res = append(res, ws.items...)
	}
	sortItems(res)
	return res
}
