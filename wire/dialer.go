package wire

import (
	"context"
)

// DialConfigは、チャネルへ接続する際の設定です。
type DialConfig struct {
	ChannelName string // チャネル名
	GroupName   string // チャネルが属するコネクショングループ名
	Address     string // ホスト:ポート（e.g. 127.0.0.1:14002）

	GuaranteedOutputBuffers int // 送信バッファ数
	NumInputBuffers         int // 受信バッファ数
}

// Dialerは、チャネルへ接続しTransportを返却するインターフェースです。
type Dialer interface {
	Dial(ctx context.Context, c DialConfig) (Transport, error)
}

// DialerFuncは、Dialerの関数実装です。
type DialerFunc func(ctx context.Context, c DialConfig) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, c DialConfig) (Transport, error) {
	return f(ctx, c)
}
