package message

import "fmt"

// StreamStateは、ストリームの状態です。
type StreamState uint8

const (
	StreamStateUnspecified      StreamState = iota // 未指定
	StreamStateOpen                                // オープン
	StreamStateNonStreaming                        // ノンストリーミング
	StreamStateClosedRecover                       // クローズ（回復可能）
	StreamStateClosed                              // クローズ
	StreamStateClosedRedirected                    // リダイレクト
)

func (s StreamState) String() string {
	switch s {
	case StreamStateUnspecified:
		return "Unspecified"
	case StreamStateOpen:
		return "Open"
	case StreamStateNonStreaming:
		return "NonStreaming"
	case StreamStateClosedRecover:
		return "ClosedRecover"
	case StreamStateClosed:
		return "Closed"
	case StreamStateClosedRedirected:
		return "ClosedRedirected"
	default:
		return fmt.Sprint(uint8(s))
	}
}

// IsClosedは、ストリームが閉じられた状態かどうかを返却します。
func (s StreamState) IsClosed() bool {
	return s == StreamStateClosed || s == StreamStateClosedRecover || s == StreamStateClosedRedirected
}

// DataStateは、データの状態です。
type DataState uint8

const (
	DataStateNoChange DataState = iota // 変更なし
	DataStateOk                        // 正常
	DataStateSuspect                   // 疑わしい
)

func (s DataState) String() string {
	switch s {
	case DataStateNoChange:
		return "NoChange"
	case DataStateOk:
		return "Ok"
	case DataStateSuspect:
		return "Suspect"
	default:
		return fmt.Sprint(uint8(s))
	}
}

// StatusCodeは、状態の詳細を表すコードです。
type StatusCode uint8

const (
	StatusCodeNone                        StatusCode = iota // なし
	StatusCodeNotFound                                      // 見つからない
	StatusCodeTimeout                                       // タイムアウト
	StatusCodeNotAuthorized                                 // 認可されていない
	StatusCodeInvalidArgument                               // 不正な引数
	StatusCodeUsageError                                    // 使用方法の誤り
	StatusCodePreempted                                     // 横取りされた
	StatusCodeJustInTimeConflationStarted                   // JITコンフレーション開始
	StatusCodeTickByTickResumed                             // ティックバイティック再開
	StatusCodeFailoverStarted                               // フェイルオーバー開始
	StatusCodeFailoverCompleted                             // フェイルオーバー完了
	StatusCodeGapDetected                                   // ギャップ検出
	StatusCodeNoResources                                   // リソース不足
	StatusCodeTooManyItems                                  // アイテム過多
	StatusCodeAlreadyOpen                                   // すでにオープン
	StatusCodeSourceUnknown                                 // ソース不明
	StatusCodeNotOpen                                       // オープンしていない
)

// Stateは、ストリームの状態、データの状態、状態コード、テキストの組です。
type State struct {
	StreamState StreamState // ストリーム状態
	DataState   DataState   // データ状態
	Code        StatusCode  // 状態コード
	Text        string      // テキスト
}

func (s State) String() string {
	return fmt.Sprintf("%v / %v / %d / '%s'", s.StreamState, s.DataState, s.Code, s.Text)
}

// IsOkは、ストリームがオープンかつデータ状態が正常かどうかを返却します。
func (s State) IsOk() bool {
	return s.StreamState == StreamStateOpen && s.DataState == DataStateOk
}
