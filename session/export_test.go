package session

const ServiceIDBase = serviceIDBase

// UnregisteredLenは、イベントの配送を抑止しているハンドルの数を返却します。
func UnregisteredLen(s *Session) int {
	var n int
	s.unregistered.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
