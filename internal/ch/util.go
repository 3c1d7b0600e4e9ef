package ch

import "context"

// TryWriteは、ブロックせずにvをcへ書き込みます。書き込めなかった場合はfalseを返却します。
func TryWrite[T any](v T, c chan<- T) bool {
	select {
	case c <- v:
		return true
	default:
		return false
	}
}

// ReadOrDoneOneは、cから1件読み込みます。コンテキストが終了した場合やcが閉じられた場合はfalseを返却します。
func ReadOrDoneOne[T any](ctx context.Context, c <-chan T) (T, bool) {
	var t T
	select {
	case <-ctx.Done():
		return t, false
	case v, ok := <-c:
		if !ok {
			return t, false
		}
		return v, true
	}
}
