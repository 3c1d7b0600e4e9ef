package session

import (
	"github.com/AlekSi/pointer"

	"github.com/aptpod/mdrouter-go/message"
)

// directoryStreamは、アプリケーションが開いたソースディレクトリのストリームです。
//
// ディレクトリストリームはチャネルへのリクエストを発生させません。
type directoryStream struct {
	handle  Handle
	closure any
	handler EventHandler
	req     *message.RequestMsg

	mask        message.FilterMask
	serviceName string
	serviceID   *uint16
}

func newDirectoryStream(h Handle, req *message.RequestMsg, handler EventHandler, closure any) *directoryStream {
	mask := message.FilterMaskAll
	if req.Filter != nil {
		mask = message.FilterMask(*req.Filter)
	}
	s := &directoryStream{
		handle:      h,
		closure:     closure,
		handler:     handler,
		req:         req,
		mask:        mask,
		serviceName: req.ServiceName,
	}
	if req.ServiceID != nil {
		s.serviceID = pointer.ToUint16(*req.ServiceID)
	}
	return s
}

func (s *directoryStream) selects(rec *serviceRecord) bool {
	return s.selectsID(rec.id, rec.name)
}

func (s *directoryStream) selectsID(id uint16, name string) bool {
	if s.serviceID != nil && *s.serviceID != id {
		return false
	}
	if s.serviceName != "" && s.serviceName != name {
		return false
	}
	return true
}

// maskEntryは、フィルターマスクに含まれないフィルターを取り除いたエントリを返却します。
//
// Updateで残るフィルターが無い場合はnilを返却します。
func maskEntry(e *message.ServiceEntry, mask message.FilterMask) *message.ServiceEntry {
	res := &message.ServiceEntry{
		ServiceID: e.ServiceID,
		Action:    e.Action,
	}
	if e.Action == message.MapActionDelete {
		return res
	}
	if mask.Has(message.FilterMaskInfo) {
		res.Info = e.Info
	}
	if mask.Has(message.FilterMaskState) {
		res.State = e.State
	}
	if mask.Has(message.FilterMaskGroup) {
		res.Groups = e.Groups
	}
	if e.Action == message.MapActionUpdate && res.Info == nil && res.State == nil && len(res.Groups) == 0 {
		return nil
	}
	return res
}

// snapshotは、セレクターとフィルターマスクで絞り込んだ統合ディレクトリを返却します。
func (r *serviceRegistry) snapshot(mask message.FilterMask, s *directoryStream) *message.DirectoryMap {
	res := &message.DirectoryMap{Entries: []*message.ServiceEntry{}}
	for _, rec := range r.records() {
		if s != nil && !s.selects(rec) {
			continue
		}
		e := maskEntry(&message.ServiceEntry{
			ServiceID: rec.id,
			Action:    message.MapActionAdd,
			Info:      rec.info,
			State:     rec.state,
			Groups:    rec.groups(),
		}, mask)
		res.Entries = append(res.Entries, e)
	}
	return res
}

func (s *directoryStream) refreshMsg(reg *serviceRegistry) *message.RefreshMsg {
	return &message.RefreshMsg{
		Header: message.Header{StreamID: int32(s.handle), DomainType: message.DomainSource},
		Key:    s.key(),
		State: message.State{
			StreamState: message.StreamStateOpen,
			DataState:   message.DataStateOk,
		},
		Solicited: true,
		Complete:  true,
		Payload:   reg.snapshot(s.mask, s),
	}
}

// updateMsgは、差分エントリのうちストリームが選択するものを含むUpdateMsgを返却します。
//
// 該当するエントリが無い場合はnilを返却します。
func (s *directoryStream) updateMsg(deltas []*message.ServiceEntry, names map[uint16]string) *message.UpdateMsg {
	var entries []*message.ServiceEntry
	for _, d := range deltas {
		if !s.selectsID(d.ServiceID, names[d.ServiceID]) {
			continue
		}
		if e := maskEntry(d, s.mask); e != nil {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil
	}
	return &message.UpdateMsg{
		Header:  message.Header{StreamID: int32(s.handle), DomainType: message.DomainSource},
		Key:     s.key(),
		Payload: &message.DirectoryMap{Entries: entries},
	}
}

func (s *directoryStream) key() message.Key {
	return message.Key{
		Name:        s.req.Name,
		ServiceID:   s.serviceID,
		ServiceName: s.serviceName,
		Filter:      pointer.ToUint32(uint32(s.mask)),
	}
}
