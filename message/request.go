package message

// Priorityは、リクエストの優先度です。
//
// 同一チャネル上の同一リクエストがまとめられた場合、Countが加算されます。
type Priority struct {
	Class uint8  // 優先度クラス
	Count uint16 // 優先度カウント
}

type (
	// RequestMsgは、ストリームを開く、または再発行するためのリクエストです。
	RequestMsg struct {
		Header
		Key

		// ServiceListNameは、サービスリスト（サービスグループ）名です。
		//
		// ServiceIDおよびServiceNameと同時には指定できません。
		ServiceListName string

		QoS           *QoSRequest  // 要求QoS
		Priority      *Priority    // 優先度
		Streaming     bool         // ストリーミングかどうか（falseの場合スナップショット）
		Pause         bool         // 一時停止
		PrivateStream bool         // プライベートストリーム
		Batch         []string     // バッチリクエストのアイテム名一覧
		Attrib        *LoginAttrib // ログイン属性（ログインドメインのみ）
		Payload       any          // ペイロード
	}

	// CloseMsgは、ストリームを閉じるメッセージです。
	CloseMsg struct {
		Header
	}
)

// IsBatchは、バッチリクエストかどうかを返却します。
func (r *RequestMsg) IsBatch() bool {
	return len(r.Batch) > 0
}

// Cloneは、RequestMsgのシャローコピーを返却します。
//
// ポインタ型のフィールドは新しい値として複製します。
func (r *RequestMsg) Clone() *RequestMsg {
	res := *r
	if r.ServiceID != nil {
		id := *r.ServiceID
		res.ServiceID = &id
	}
	if r.Filter != nil {
		f := *r.Filter
		res.Filter = &f
	}
	if r.QoS != nil {
		q := *r.QoS
		res.QoS = &q
	}
	if r.Priority != nil {
		p := *r.Priority
		res.Priority = &p
	}
	if r.Attrib != nil {
		a := *r.Attrib
		res.Attrib = &a
	}
	if r.Batch != nil {
		res.Batch = append([]string(nil), r.Batch...)
	}
	return &res
}
