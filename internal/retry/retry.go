package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
)

var (
	randFloat64         = rand.Float64
	defaultBaseInterval = 100 * time.Millisecond
	defaultMaxInterval  = 5 * time.Second

	// ErrMaxAttemptは、最大試行回数に達した場合のエラーです。
	ErrMaxAttempt = errors.New("reached max retry attempt")
)

// RetryはExponential Backoff and Jitter方式のリトライを行います。
//
// Jitterは 0.5 ~ 1.5のランダム値です。
type Retry struct {
	// 最大試行回数。0はリトライをし続けます。デフォルトは0です。
	MaxAttempt int

	// 基準リトライ間隔。デフォルトは100ミリ秒です。
	BaseInterval time.Duration

	// 最大基準リトライ間隔。デフォルトは5秒です。
	MaxBaseInterval time.Duration

	// 待機に使用するクロック。nilの場合は実時間のクロックを使用します。
	Clock clock.Clock
}

// RetryFuncは、リトライを実施する関数です。
type RetryFunc func() (end bool)

// Doは、fがtrueを返却するまでリトライします。
//
// コンテキストがキャンセルされた場合はコンテキストのエラーを、最大試行回数に達した場合はErrMaxAttemptを返却します。
func (r Retry) Do(ctx context.Context, f RetryFunc) error {
	baseInterval := r.BaseInterval
	if baseInterval == 0 {
		baseInterval = defaultBaseInterval
	}
	maxBaseInterval := r.MaxBaseInterval
	if maxBaseInterval == 0 {
		maxBaseInterval = defaultMaxInterval
	}
	clk := r.Clock
	if clk == nil {
		clk = clock.New()
	}
	var retryCount int
	for {
		if r.MaxAttempt != 0 && retryCount >= r.MaxAttempt {
			return ErrMaxAttempt
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if f() {
			return nil
		}
		timer := clk.Timer(nextSleep(retryCount, baseInterval, maxBaseInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		retryCount++
	}
}

func nextSleep(count int, base, max time.Duration) time.Duration {
	baseInterval := float64(base) * math.Pow(2, float64(count))
	if baseInterval > float64(max) {
		baseInterval = float64(max)
	}

	jitter := 0.5 + randFloat64()
	return time.Duration(baseInterval * jitter)
}

// Doは、デフォルト設定でリトライします。
func Do(ctx context.Context, f RetryFunc) error {
	return Retry{}.Do(ctx, f)
}
