package message

import "fmt"

// FilterIDは、ソースディレクトリのFilterListエントリIDです。
type FilterID uint8

const (
	FilterIDInfo  FilterID = 1 // サービス情報
	FilterIDState FilterID = 2 // サービス状態
	FilterIDGroup FilterID = 3 // サービスグループ
	FilterIDLoad  FilterID = 4 // 負荷
	FilterIDData  FilterID = 5 // データ
	FilterIDLink  FilterID = 6 // リンク
)

// FilterMaskは、ソースディレクトリリクエストのフィルターマスクです。
type FilterMask uint32

const (
	FilterMaskInfo  FilterMask = 0x01 // サービス情報
	FilterMaskState FilterMask = 0x02 // サービス状態
	FilterMaskGroup FilterMask = 0x04 // サービスグループ
	FilterMaskLoad  FilterMask = 0x08 // 負荷
	FilterMaskData  FilterMask = 0x10 // データ
	FilterMaskLink  FilterMask = 0x20 // リンク

	// FilterMaskAllは、全フィルターを要求するマスクです。
	FilterMaskAll FilterMask = 0x3F
)

// Hasは、マスクにfが含まれるかどうかを返却します。
func (m FilterMask) Has(f FilterMask) bool {
	return m&f != 0
}

// MapActionは、Mapエントリのアクションです。
type MapAction uint8

const (
	MapActionUpdate MapAction = 1 // 更新
	MapActionAdd    MapAction = 2 // 追加
	MapActionDelete MapAction = 3 // 削除
)

func (a MapAction) String() string {
	switch a {
	case MapActionAdd:
		return "Add"
	case MapActionUpdate:
		return "Update"
	case MapActionDelete:
		return "Delete"
	default:
		return fmt.Sprint(uint8(a))
	}
}

// ServiceStatusは、サービスの稼働状態です。
type ServiceStatus uint8

const (
	ServiceDown ServiceStatus = 0 // 停止
	ServiceUp   ServiceStatus = 1 // 稼働
)

type (
	// DirectoryMapは、ソースディレクトリのペイロードです。
	//
	// サービスIDをキーとするMapを表します。
	DirectoryMap struct {
		Entries []*ServiceEntry
	}

	// ServiceEntryは、DirectoryMapのエントリです。
	//
	// Info、State、Groupsは、それぞれINFO、STATE、GROUPフィルターに対応し、nilの場合はフィルターを含みません。
	ServiceEntry struct {
		ServiceID uint16               // サービスID
		Action    MapAction            // アクション
		Info      *ServiceInfo         // INFOフィルター
		State     *ServiceState        // STATEフィルター
		Groups    []*ServiceGroupState // GROUPフィルター
	}

	// ServiceInfoは、INFOフィルターの内容です。
	ServiceInfo struct {
		Name                   string       // サービス名
		Vendor                 string       // ベンダー
		IsSource               bool         // オリジナルソースかどうか
		Capabilities           []DomainType // 提供するドメインタイプ
		DictionariesProvided   []string     // 提供するディクショナリ
		DictionariesUsed       []string     // 使用するディクショナリ
		QoS                    []QoS        // 提供するQoS
		SupportsQoSRange       bool         // QoSの範囲指定をサポートするか
		ItemList               string       // アイテムリスト名
		SupportsOutOfBandSnaps bool         // 帯域外スナップショットをサポートするか
		AcceptsConsumerStatus  bool         // コンシューマーステータスを受け付けるか
	}

	// ServiceStateは、STATEフィルターの内容です。
	ServiceState struct {
		ServiceState      ServiceStatus // サービス稼働状態
		AcceptingRequests *bool         // リクエストを受け付けているか（nilの場合は受け付けている）
		Status            *State        // サービス全体のアイテムへ適用する状態
	}

	// ServiceGroupStateは、GROUPフィルターの内容です。
	ServiceGroupState struct {
		Group         []byte // アイテムグループ
		MergedToGroup []byte // 統合先のアイテムグループ
		Status        *State // グループ内のアイテムへ適用する状態
	}
)

// IsAcceptingRequestsは、リクエストを受け付けているかどうかを返却します。
func (s *ServiceState) IsAcceptingRequests() bool {
	if s == nil {
		return false
	}
	return s.AcceptingRequests == nil || *s.AcceptingRequests
}

// IsUpは、サービスが稼働しているかどうかを返却します。
func (s *ServiceState) IsUp() bool {
	return s != nil && s.ServiceState == ServiceUp
}

// Findは、サービスIDに対応するエントリを返却します。
func (m *DirectoryMap) Find(serviceID uint16) (*ServiceEntry, bool) {
	if m == nil {
		return nil, false
	}
	for _, e := range m.Entries {
		if e.ServiceID == serviceID {
			return e, true
		}
	}
	return nil, false
}

// HasCapabilityは、ドメインタイプを提供するかどうかを返却します。
func (i *ServiceInfo) HasCapability(d DomainType) bool {
	if i == nil {
		return false
	}
	for _, c := range i.Capabilities {
		if c == d {
			return true
		}
	}
	return false
}

// QoSListは、提供するQoSを返却します。
//
// QoSが広告されていない場合はDefaultQoSのみを返却します。
func (i *ServiceInfo) QoSList() []QoS {
	if i == nil || len(i.QoS) == 0 {
		return []QoS{DefaultQoS}
	}
	return i.QoS
}

// MatchesQoSは、要求QoSを満たすQoSを提供するかどうかを返却します。
//
// reqがnilの場合は常にtrueを返却します。
func (i *ServiceInfo) MatchesQoS(req *QoSRequest) bool {
	if req == nil {
		return true
	}
	for _, q := range i.QoSList() {
		if req.Accepts(q) {
			return true
		}
	}
	return false
}
