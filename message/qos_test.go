package message_test

import (
	"testing"

	"github.com/AlekSi/pointer"
	"github.com/stretchr/testify/assert"

	. "github.com/aptpod/mdrouter-go/message"
)

var (
	realtimeTick = QoS{Timeliness: TimelinessRealtime, Rate: RateTickByTick}
	realtimeJit  = QoS{Timeliness: TimelinessRealtime, Rate: RateJitConflated}
	delayed5Tick = QoS{Timeliness: TimelinessDelayed, TimeInfo: 5, Rate: RateTickByTick}
	unknownTick  = QoS{Timeliness: TimelinessDelayedUnknown, Rate: RateTickByTick}
	conflated3s  = QoS{Timeliness: TimelinessRealtime, Rate: RateTimeConflated, RateInfo: 3000}
)

func TestQoS_Equal(t *testing.T) {
	assert.True(t, realtimeTick.Equal(QoS{Timeliness: TimelinessRealtime, Rate: RateTickByTick, Dynamic: true}))
	assert.False(t, realtimeTick.Equal(realtimeJit))
	assert.False(t, delayed5Tick.Equal(QoS{Timeliness: TimelinessDelayed, TimeInfo: 6, Rate: RateTickByTick}))
	assert.True(t, realtimeTick.Equal(QoS{Timeliness: TimelinessRealtime, Rate: RateTickByTick, TimeInfo: 99}))
}

func TestQoS_IsBetter(t *testing.T) {
	assert.True(t, realtimeTick.IsBetter(realtimeJit))
	assert.True(t, realtimeJit.IsBetter(delayed5Tick))
	assert.True(t, delayed5Tick.IsBetter(unknownTick))
	assert.True(t, conflated3s.IsBetter(realtimeJit))
	assert.False(t, realtimeTick.IsBetter(realtimeTick))
}

func TestQoSRequest_Accepts(t *testing.T) {
	tests := []struct {
		name string
		req  QoSRequest
		qos  QoS
		want bool
	}{
		{
			name: "exact match without worst",
			req:  QoSRequest{Best: realtimeTick},
			qos:  realtimeTick,
			want: true,
		},
		{
			name: "no match without worst",
			req:  QoSRequest{Best: realtimeTick},
			qos:  delayed5Tick,
			want: false,
		},
		{
			name: "in range",
			req:  QoSRequest{Best: realtimeTick, Worst: pointer.To(unknownTick)},
			qos:  delayed5Tick,
			want: true,
		},
		{
			name: "rate out of range",
			req:  QoSRequest{Best: realtimeTick, Worst: pointer.To(unknownTick)},
			qos:  realtimeJit,
			want: false,
		},
		{
			name: "equal to worst",
			req:  QoSRequest{Best: realtimeTick, Worst: pointer.To(realtimeJit)},
			qos:  realtimeJit,
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Accepts(tt.qos))
		})
	}
}

func TestQoS_String(t *testing.T) {
	assert.Equal(t, "RealTime/TickByTick", realtimeTick.String())
	assert.Equal(t, "Timeliness: 5/TickByTick", delayed5Tick.String())
	assert.Equal(t, "RealTime/Rate: 3000", conflated3s.String())
}
