package message

import "fmt"

// Timelinessは、QoSの適時性です。
type Timeliness uint8

const (
	TimelinessUnspecified    Timeliness = iota // 未指定
	TimelinessRealtime                         // リアルタイム
	TimelinessDelayedUnknown                   // 遅延（遅延時間不明）
	TimelinessDelayed                          // 遅延（TimeInfoに遅延秒数）
)

// Rateは、QoSの配信レートです。
type Rate uint8

const (
	RateUnspecified   Rate = iota // 未指定
	RateTickByTick                // ティックバイティック
	RateJitConflated              // JITコンフレーション
	RateTimeConflated             // 時間コンフレーション（RateInfoにミリ秒）
)

// QoS（Quality of Service）は、サービスが提供するデータの適時性と配信レートを表します。
type QoS struct {
	Timeliness Timeliness // 適時性
	Rate       Rate       // 配信レート
	Dynamic    bool       // 動的に変化するかどうか
	TimeInfo   uint16     // 遅延秒数
	RateInfo   uint16     // コンフレーション間隔
}

// DefaultQoSは、QoSが広告されていないサービスのQoSです。
var DefaultQoS = QoS{Timeliness: TimelinessRealtime, Rate: RateTickByTick}

func (q QoS) String() string {
	var t, r string
	switch q.Timeliness {
	case TimelinessRealtime:
		t = "RealTime"
	case TimelinessDelayedUnknown:
		t = "InexactDelayed"
	case TimelinessDelayed:
		t = fmt.Sprintf("Timeliness: %d", q.TimeInfo)
	default:
		t = "Unspecified"
	}
	switch q.Rate {
	case RateTickByTick:
		r = "TickByTick"
	case RateJitConflated:
		r = "JustInTimeConflated"
	case RateTimeConflated:
		r = fmt.Sprintf("Rate: %d", q.RateInfo)
	default:
		r = "Unspecified"
	}
	return t + "/" + r
}

// timelinessRankは、値が小さいほど良い適時性を表す順位を返却します。
func (q QoS) timelinessRank() uint32 {
	switch q.Timeliness {
	case TimelinessRealtime:
		return 0
	case TimelinessDelayed:
		return 1 + uint32(q.TimeInfo)
	case TimelinessDelayedUnknown:
		return 1 << 17
	default:
		return 1 << 18
	}
}

// rateRankは、値が小さいほど良い配信レートを表す順位を返却します。
func (q QoS) rateRank() uint32 {
	switch q.Rate {
	case RateTickByTick:
		return 0
	case RateTimeConflated:
		return 1 + uint32(q.RateInfo)
	case RateJitConflated:
		return 1 << 17
	default:
		return 1 << 18
	}
}

// Equalは、QoSが等しいかどうかを返却します。
//
// Dynamicは比較対象に含めません。
func (q QoS) Equal(o QoS) bool {
	if q.Timeliness != o.Timeliness || q.Rate != o.Rate {
		return false
	}
	if q.Timeliness == TimelinessDelayed && q.TimeInfo != o.TimeInfo {
		return false
	}
	if q.Rate == RateTimeConflated && q.RateInfo != o.RateInfo {
		return false
	}
	return true
}

// IsBetterは、qがoより良いQoSかどうかを返却します。
//
// 適時性を優先して比較し、適時性が同じ場合は配信レートで比較します。
func (q QoS) IsBetter(o QoS) bool {
	if q.timelinessRank() != o.timelinessRank() {
		return q.timelinessRank() < o.timelinessRank()
	}
	return q.rateRank() < o.rateRank()
}

// IsInRangeは、qがbestからworstの範囲内にあるかどうかを返却します。
func (q QoS) IsInRange(best, worst QoS) bool {
	if q.Equal(best) || q.Equal(worst) {
		return true
	}
	return q.timelinessRank() >= best.timelinessRank() && q.timelinessRank() <= worst.timelinessRank() &&
		q.rateRank() >= best.rateRank() && q.rateRank() <= worst.rateRank()
}

// QoSRequestは、アプリケーションが要求するQoSです。
//
// Worstがnilの場合、Bestと一致するQoSのみを受け入れます。
type QoSRequest struct {
	Best  QoS  // 最良のQoS
	Worst *QoS // 許容する最悪のQoS
}

// Acceptsは、qが要求を満たすかどうかを返却します。
func (r QoSRequest) Accepts(q QoS) bool {
	if r.Worst == nil {
		return q.Equal(r.Best)
	}
	return q.IsInRange(r.Best, *r.Worst)
}
