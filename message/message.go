package message

/*
Msg は、ルーターが扱うデコード済みメッセージを表すインターフェースです。

ワイヤ上のエンコーディングはルーターの関心外であり、ルーターはストリームID、ドメインタイプ、
サービス、QoS、アイテムグループなど、ルーティングに必要な属性のみを参照します。
*/
type Msg interface {
	isMsg()
	// GetStreamIDは、ストリームIDを返却します。
	GetStreamID() int32
	// GetDomainTypeは、ドメインタイプを返却します。
	GetDomainType() DomainType
}

// Headerは、全メッセージに共通するヘッダーです。
type Header struct {
	StreamID   int32      // ストリームID
	DomainType DomainType // ドメインタイプ
}

// GetStreamIDは、ストリームIDを返却します。
func (h Header) GetStreamID() int32 {
	return h.StreamID
}

// GetDomainTypeは、ドメインタイプを返却します。
func (h Header) GetDomainType() DomainType {
	return h.DomainType
}

/*
Key は、メッセージキーです。

ServiceIDとServiceNameはどちらか一方のみ指定します。
アプリケーションから受け取るメッセージではセッションレベルのサービスを、
チャネルへ送信するメッセージではプロバイダーローカルのサービスIDを表します。
*/
type Key struct {
	Name        string  // アイテム名
	ServiceID   *uint16 // サービスID
	ServiceName string  // サービス名
	Filter      *uint32 // フィルター（ソースディレクトリではフィルターマスク）
	Identifier  *int32  // 識別子
}

// HasServiceIDは、サービスIDが指定されているかどうかを返却します。
func (k Key) HasServiceID() bool {
	return k.ServiceID != nil
}

// HasServiceNameは、サービス名が指定されているかどうかを返却します。
func (k Key) HasServiceName() bool {
	return k.ServiceName != ""
}

func (RequestMsg) isMsg() {}
func (RefreshMsg) isMsg() {}
func (UpdateMsg) isMsg()  {}
func (StatusMsg) isMsg()  {}
func (GenericMsg) isMsg() {}
func (PostMsg) isMsg()    {}
func (AckMsg) isMsg()     {}
func (CloseMsg) isMsg()   {}
