package message

// LoginAttribは、ログインリクエストおよびリフレッシュに含まれる属性です。
type LoginAttrib struct {
	ApplicationID           string // アプリケーションID
	ApplicationName         string // アプリケーション名
	Position                string // ポジション
	SingleOpen              bool   // シングルオープン
	AllowSuspectData        bool   // Suspectデータを許容するか
	ProvidePermissionExpr   bool   // パーミッション式を提供するか
	SupportBatchRequests    bool   // バッチリクエストをサポートするか
	SupportOMMPost          bool   // OMMポストをサポートするか
	SupportEnhancedRecovery bool   // 拡張アイテム回復をサポートするか
}

// NewLoginRequestは、ユーザー名を指定してログインリクエストを生成します。
func NewLoginRequest(userName string) *RequestMsg {
	return &RequestMsg{
		Header:    Header{DomainType: DomainLogin},
		Key:       Key{Name: userName},
		Streaming: true,
		Attrib: &LoginAttrib{
			SingleOpen:       true,
			AllowSuspectData: true,
		},
	}
}
