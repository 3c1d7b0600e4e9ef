package session

// ChannelStateは、チャネルのライフサイクル状態です。
type ChannelState uint8

const (
	// 接続中、またはログイン/ソースディレクトリの応答待ち
	ChannelStateInitializing ChannelState = iota
	// ログイン済みでアイテムをルーティング可能
	ChannelStateActive
	// 切断され再接続待ち
	ChannelStateDown
	// 閉じられた
	ChannelStateClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelStateInitializing:
		return "Initializing"
	case ChannelStateActive:
		return "Active"
	case ChannelStateDown:
		return "Down"
	case ChannelStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var channelTransitions = map[ChannelState][]ChannelState{
	ChannelStateInitializing: {ChannelStateActive, ChannelStateDown, ChannelStateClosed},
	ChannelStateActive:       {ChannelStateDown, ChannelStateClosed},
	ChannelStateDown:         {ChannelStateInitializing, ChannelStateClosed},
	ChannelStateClosed:       {},
}

func (s ChannelState) canTransitTo(to ChannelState) bool {
	for _, v := range channelTransitions[s] {
		if v == to {
			return true
		}
	}
	return false
}

// LoginStateは、チャネル毎のログイン状態です。
type LoginState uint8

const (
	LoginStateNotSent LoginState = iota
	LoginStatePending
	LoginStateAccepted
	LoginStateSuspect
	LoginStateClosed
)

func (s LoginState) String() string {
	switch s {
	case LoginStateNotSent:
		return "NotSent"
	case LoginStatePending:
		return "Pending"
	case LoginStateAccepted:
		return "Accepted"
	case LoginStateSuspect:
		return "Suspect"
	case LoginStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
