package session

import (
	"github.com/aptpod/mdrouter-go/message"
)

type (
	nopEventHandler        struct{}
	nopChannelEventHandler struct{}
)

func (h nopEventHandler) OnEvent(ev *Event)                      {}
func (h nopChannelEventHandler) OnChannelEvent(ev *ChannelEvent) {}

// Eventは、アプリケーションへ配送するメッセージイベントです。
type Event struct {
	// 登録時のハンドル
	Handle Handle

	// 登録時に指定したクロージャ
	Closure any

	// メッセージ
	//
	// サービスIDおよびサービス名は、セッションレベルの値に変換されています。
	Msg message.Msg

	// メッセージを受信したチャネル
	//
	// セッションが生成したメッセージの場合はnilです。
	Channel *ChannelInformation
}

// EventHandlerは、ストリームのイベントハンドラです。
type EventHandler interface {
	OnEvent(ev *Event)
}

// EventHandlerFuncは、EventHandlerの関数です。
type EventHandlerFunc func(ev *Event)

func (f EventHandlerFunc) OnEvent(ev *Event) {
	f(ev)
}

// ChannelEventは、チャネルの状態変化イベントです。
type ChannelEvent struct {
	// 状態が変化したチャネル
	Channel ChannelInformation
	// 変化前の状態
	OldState ChannelState
	// 変化後の状態
	NewState ChannelState
	// 切断の原因
	Err error
}

// ChannelEventHandlerは、チャネルの状態が変化したときのイベントハンドラです。
type ChannelEventHandler interface {
	OnChannelEvent(ev *ChannelEvent)
}

// ChannelEventHandlerFuncは、ChannelEventHandlerの関数です。
type ChannelEventHandlerFunc func(ev *ChannelEvent)

func (f ChannelEventHandlerFunc) OnChannelEvent(ev *ChannelEvent) {
	f(ev)
}
