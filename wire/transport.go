package wire

import (
	"github.com/aptpod/mdrouter-go/message"
)

// Transportは、1つのチャネルのデコード済みメッセージを読み書きするインターフェースです。
//
// メッセージのエンコーディングおよび接続の確立はTransportの実装側の責務です。
//
//go:generate mockgen -destination ./${GOPACKAGE}mock/${GOFILE} -package ${GOPACKAGE}mock -source ./${GOFILE}
type Transport interface {
	// Readは、チャネルからメッセージを読み出します。
	//
	// 相手側が切断した場合はEOFを、自身がクローズした場合はErrClosedを返却します。
	Read() (message.Msg, error)
	// Writeは、チャネルへメッセージを書き込みます。
	Write(msg message.Msg) error
	// Closeは、チャネルを切断します。
	Close() error
}
