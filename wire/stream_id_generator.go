package wire

import (
	"math"
	"sync/atomic"
)

// StreamIDGeneratorは、ストリームIDのジェネレータです。
//
// 0以下の値は返却しません。
type StreamIDGenerator struct {
	currentValue atomic.Int32
}

// NewStreamIDGeneratorは、ジェネレータを返却します。
//
// `Next` は initial + 1 から返却します。
func NewStreamIDGenerator(initial int32) *StreamIDGenerator {
	g := &StreamIDGenerator{}
	g.currentValue.Store(initial)
	return g
}

// Nextは、次の値を返却します。
func (g *StreamIDGenerator) Next() int32 {
	for {
		cur := g.currentValue.Load()
		next := cur + 1
		if cur == math.MaxInt32 || next <= 0 {
			next = 1
		}
		if g.currentValue.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// CurrentValueは、最後に返却した値を返却します。
func (g *StreamIDGenerator) CurrentValue() int32 {
	return g.currentValue.Load()
}
