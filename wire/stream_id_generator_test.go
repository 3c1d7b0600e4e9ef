package wire_test

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/aptpod/mdrouter-go/wire"
)

func TestStreamIDGenerator_Next(t *testing.T) {
	testee := NewStreamIDGenerator(0)
	assert.Equal(t, int32(1), testee.Next())
	assert.Equal(t, int32(2), testee.Next())
	assert.Equal(t, int32(2), testee.CurrentValue())
}

func TestStreamIDGenerator_Next_MaxInt32(t *testing.T) {
	testee := NewStreamIDGenerator(math.MaxInt32)
	assert.Equal(t, int32(1), testee.Next())
	assert.Equal(t, int32(2), testee.Next())
}

func TestStreamIDGenerator_Paralell(t *testing.T) {
	testee := NewStreamIDGenerator(math.MaxInt32 - 100)
	var mu sync.Mutex
	gots := map[int32]struct{}{}
	var wg sync.WaitGroup
	for j := 0; j < 2; j++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100000; i++ {
				got := testee.Next()
				mu.Lock()
				gots[got] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200000, len(gots))
	assert.NotContains(t, gots, int32(0))
	assert.Contains(t, gots, int32(1))
}
