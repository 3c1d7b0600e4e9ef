package session

import (
	"reflect"
	"sort"

	"github.com/aptpod/mdrouter-go/message"
)

// contributionは、1つのチャネルが広告する1つのサービスです。
type contribution struct {
	ch      *channel
	localID uint16
	name    string
	info    *message.ServiceInfo
	state   *message.ServiceState
	groups  []*message.ServiceGroupState
}

// acceptingRequestsは、サービスが稼働しリクエストを受け付けているかどうかを返却します。
//
// STATEフィルターを受信していない場合は受け付けているものとみなします。
func (c *contribution) acceptingRequests() bool {
	if c.state == nil {
		return true
	}
	return c.state.IsUp() && c.state.IsAcceptingRequests()
}

// serviceRecordは、セッションレベルのサービスです。
type serviceRecord struct {
	id           uint16
	name         string
	contributors []*contribution

	info  *message.ServiceInfo
	state *message.ServiceState
}

func (r *serviceRecord) groups() []*message.ServiceGroupState {
	var res []*message.ServiceGroupState
	for _, c := range r.contributors {
		res = append(res, c.groups...)
	}
	return res
}

// mergeは、コントリビューターの属性を統合します。
//
// スカラー属性は最初のコントリビューター、リスト属性は順序を保った和集合、稼働状態は論理和です。
func (r *serviceRecord) merge() {
	if len(r.contributors) == 0 {
		r.info, r.state = nil, nil
		return
	}
	first := r.contributors[0]
	info := message.ServiceInfo{Name: r.name}
	if first.info != nil {
		info = *first.info
		info.Name = r.name
		info.Capabilities = nil
		info.DictionariesProvided = nil
		info.DictionariesUsed = nil
		info.QoS = nil
	}
	var (
		up, accepting bool
		status        *message.State
		hasState      bool
	)
	for _, c := range r.contributors {
		if c.info != nil {
			info.Capabilities = unionDomains(info.Capabilities, c.info.Capabilities)
			info.DictionariesProvided = unionStrings(info.DictionariesProvided, c.info.DictionariesProvided)
			info.DictionariesUsed = unionStrings(info.DictionariesUsed, c.info.DictionariesUsed)
			info.QoS = unionQoS(info.QoS, c.info.QoS)
		}
		if c.state != nil {
			if !hasState {
				status = c.state.Status
			}
			hasState = true
			up = up || c.state.IsUp()
			accepting = accepting || c.acceptingRequests()
		}
	}
	r.info = &info
	if !hasState {
		r.state = nil
		return
	}
	st := &message.ServiceState{
		ServiceState:      message.ServiceDown,
		AcceptingRequests: &accepting,
		Status:            status,
	}
	if up {
		st.ServiceState = message.ServiceUp
	}
	r.state = st
}

func unionDomains(dst, src []message.DomainType) []message.DomainType {
	for _, v := range src {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func unionStrings(dst, src []string) []string {
	for _, v := range src {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func unionQoS(dst, src []message.QoS) []message.QoS {
	for _, v := range src {
		found := false
		for _, d := range dst {
			if d.Equal(v) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

// serviceRegistryは、全チャネルのサービスを統合したセッションレベルのサービステーブルです。
type serviceRegistry struct {
	nextID   uint16
	ids      map[string]uint16
	groupIDs map[string]uint16

	byName map[string]*serviceRecord
	byID   map[uint16]*serviceRecord
}

func newServiceRegistry() *serviceRegistry {
	return &serviceRegistry{
		nextID:   serviceIDBase,
		ids:      make(map[string]uint16),
		groupIDs: make(map[string]uint16),
		byName:   make(map[string]*serviceRecord),
		byID:     make(map[uint16]*serviceRecord),
	}
}

func (r *serviceRegistry) allocateID() uint16 {
	id := r.nextID
	r.nextID++
	if r.nextID == 0 {
		r.nextID = 1
	}
	return id
}

// serviceIDは、サービス名に対応するセッションレベルのIDを返却します。
//
// 一度割り当てたIDはセッションが閉じられるまで変わりません。
func (r *serviceRegistry) serviceID(name string) uint16 {
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := r.allocateID()
	r.ids[name] = id
	return id
}

// groupIDは、サービスグループ名に対応するIDを返却します。
func (r *serviceRegistry) groupID(name string) uint16 {
	if id, ok := r.groupIDs[name]; ok {
		return id
	}
	id := r.allocateID()
	r.groupIDs[name] = id
	return id
}

// groupNameByIDは、IDに対応するサービスグループ名を返却します。
func (r *serviceRegistry) groupNameByID(id uint16) (string, bool) {
	for name, v := range r.groupIDs {
		if v == id {
			return name, true
		}
	}
	return "", false
}

func (r *serviceRegistry) lookupByName(name string) (*serviceRecord, bool) {
	rec, ok := r.byName[name]
	return rec, ok
}

func (r *serviceRegistry) lookupByID(id uint16) (*serviceRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

// addは、コントリビューションを追加し、統合結果の差分を返却します。
func (r *serviceRegistry) add(c *contribution) *message.ServiceEntry {
	rec, ok := r.byName[c.name]
	if !ok {
		rec = &serviceRecord{
			id:   r.serviceID(c.name),
			name: c.name,
		}
		rec.contributors = append(rec.contributors, c)
		rec.merge()
		r.byName[rec.name] = rec
		r.byID[rec.id] = rec
		return &message.ServiceEntry{
			ServiceID: rec.id,
			Action:    message.MapActionAdd,
			Info:      rec.info,
			State:     rec.state,
			Groups:    c.groups,
		}
	}
	for _, v := range rec.contributors {
		if v == c {
			return r.update(c, c.groups)
		}
	}
	oldInfo, oldState := rec.info, rec.state
	rec.contributors = append(rec.contributors, c)
	rec.merge()
	return diffEntry(rec, oldInfo, oldState, c.groups)
}

// updateは、コントリビューションの変更を統合し差分を返却します。
//
// 統合結果が変化しない場合はnilを返却します。
func (r *serviceRegistry) update(c *contribution, groups []*message.ServiceGroupState) *message.ServiceEntry {
	rec, ok := r.byName[c.name]
	if !ok {
		return nil
	}
	oldInfo, oldState := rec.info, rec.state
	rec.merge()
	return diffEntry(rec, oldInfo, oldState, groups)
}

// removeは、コントリビューションを取り除き差分を返却します。
//
// 最後のコントリビューターが取り除かれた場合、レコードを削除しDeleteを返却します。
func (r *serviceRegistry) remove(c *contribution) *message.ServiceEntry {
	rec, ok := r.byName[c.name]
	if !ok {
		return nil
	}
	found := false
	for i, v := range rec.contributors {
		if v == c {
			rec.contributors = append(rec.contributors[:i], rec.contributors[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	if len(rec.contributors) == 0 {
		delete(r.byName, rec.name)
		delete(r.byID, rec.id)
		return &message.ServiceEntry{
			ServiceID: rec.id,
			Action:    message.MapActionDelete,
		}
	}
	oldInfo, oldState := rec.info, rec.state
	rec.merge()
	return diffEntry(rec, oldInfo, oldState, nil)
}

func diffEntry(rec *serviceRecord, oldInfo *message.ServiceInfo, oldState *message.ServiceState, groups []*message.ServiceGroupState) *message.ServiceEntry {
	entry := &message.ServiceEntry{
		ServiceID: rec.id,
		Action:    message.MapActionUpdate,
		Groups:    groups,
	}
	if !reflect.DeepEqual(oldInfo, rec.info) {
		entry.Info = rec.info
	}
	if !reflect.DeepEqual(oldState, rec.state) {
		entry.State = rec.state
	}
	if entry.Info == nil && entry.State == nil && len(entry.Groups) == 0 {
		return nil
	}
	return entry
}

// recordsは、ID順のレコード一覧を返却します。
func (r *serviceRegistry) records() []*serviceRecord {
	res := make([]*serviceRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		res = append(res, rec)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].id < res[j].id })
	return res
}
