/*
Package wire は、ルーターとチャネル（プロバイダーへの物理コネクション）の境界を定義するパッケージです。

ルーターはデコード済みのメッセージのみを扱います。
このパッケージは、メッセージを読み書きするTransport、Transportを確立するDialer、
テストやサンプルで使用するインメモリのPipeを提供します。
*/
package wire

import "github.com/aptpod/mdrouter-go/errors"

var (
	// EOFは、相手側がトランスポートを切断した場合に返されます。
	EOF = errors.New("EOF")

	// ErrClosedは、クローズ済みのトランスポートへ読み書きした場合に返されます。
	ErrClosed = errors.New("wire transport already closed")
)
