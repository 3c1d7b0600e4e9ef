package message

type (
	// RefreshMsgは、ストリームの全体像を通知するメッセージです。
	RefreshMsg struct {
		Header
		Key
		State         State        // 状態
		QoS           *QoS         // 提供QoS
		Solicited     bool         // 要求に対する応答かどうか
		Complete      bool         // 最終パートかどうか
		ClearCache    bool         // キャッシュクリア
		PrivateStream bool         // プライベートストリーム
		ItemGroup     []byte       // アイテムグループ
		Attrib        *LoginAttrib // ログイン属性（ログインドメインのみ）
		Payload       any          // ペイロード
	}

	// UpdateMsgは、ストリームの変化分を通知するメッセージです。
	UpdateMsg struct {
		Header
		Key
		SeqNum  uint32 // シーケンス番号
		Payload any    // ペイロード
	}

	// StatusMsgは、ストリームやデータの状態変化を通知するメッセージです。
	StatusMsg struct {
		Header
		Key
		State         *State // 状態
		PrivateStream bool   // プライベートストリーム
		ItemGroup     []byte // アイテムグループ
	}

	// GenericMsgは、双方向に送受信できる汎用メッセージです。
	GenericMsg struct {
		Header
		Key
		Complete bool // 最終パートかどうか
		Payload  any  // ペイロード
	}

	// PostMsgは、プロバイダーへ投稿するメッセージです。
	PostMsg struct {
		Header
		Key
		PostID     uint32 // ポストID
		SeqNum     uint32 // シーケンス番号
		SolicitAck bool   // Ackを要求するかどうか
		Complete   bool   // 最終パートかどうか
		Payload    any    // ペイロード
	}

	// AckMsgは、PostMsgに対する応答です。
	AckMsg struct {
		Header
		Key
		AckID    uint32   // 対応するポストID
		SeqNum   uint32   // シーケンス番号
		NackCode NackCode // Nackコード
		Text     string   // テキスト
	}
)

// NackCodeは、Nackの理由を表すコードです。
type NackCode uint8

const (
	NackCodeNone           NackCode = iota // Nackではない
	NackCodeAccessDenied                   // アクセス拒否
	NackCodeDeniedBySource                 // ソースによる拒否
	NackCodeSourceDown                     // ソースダウン
	NackCodeSourceUnknown                  // ソース不明
	NackCodeNoResources                    // リソース不足
	NackCodeNoResponse                     // 応答なし
	NackCodeGatewayDown                    // ゲートウェイダウン
	NackCodeSymbolUnknown                  // シンボル不明
	NackCodeNotOpen                        // オープンしていない
	NackCodeInvalidContent                 // 不正な内容
)
