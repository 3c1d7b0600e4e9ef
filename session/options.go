package session

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aptpod/mdrouter-go/log"
	"github.com/aptpod/mdrouter-go/message"
)

// Optionは、セッションのオプションです。
type Option func(conf *Config)

// WithLoggerは、ロガーを設定します。
func WithLogger(l log.Logger) Option {
	return func(conf *Config) {
		conf.Logger = l
	}
}

// WithClockは、タイマーに使用するクロックを設定します。
func WithClock(clk clock.Clock) Option {
	return func(conf *Config) {
		conf.Clock = clk
	}
}

// WithLoginRequestは、各チャネルへ送信するログインリクエストを設定します。
func WithLoginRequest(req *message.RequestMsg) Option {
	return func(conf *Config) {
		conf.LoginRequest = req
	}
}

// WithLoginEventHandlerは、論理ログインストリームのイベントハンドラを設定します。
func WithLoginEventHandler(h EventHandler) Option {
	return func(conf *Config) {
		conf.LoginEventHandler = h
	}
}

// WithChannelEventHandlerは、チャネルの状態が変化したときのイベントハンドラを設定します。
func WithChannelEventHandler(h ChannelEventHandler) Option {
	return func(conf *Config) {
		conf.ChannelEventHandler = h
	}
}

// WithServiceGroupsは、サービスグループ（サービスリスト）を設定します。
func WithServiceGroups(groups ...ServiceGroupConfig) Option {
	return func(conf *Config) {
		conf.ServiceGroups = groups
	}
}

// WithEnhancedItemRecoveryは、拡張アイテム回復の有効/無効を設定します。
func WithEnhancedItemRecovery(enabled bool) Option {
	return func(conf *Config) {
		conf.EnhancedItemRecovery = enabled
	}
}

// WithRequestTimeoutは、アイテムリクエストのタイムアウトを設定します。
func WithRequestTimeout(d time.Duration) Option {
	return func(conf *Config) {
		conf.RequestTimeout = d
	}
}

// WithLoginRequestTimeoutは、ログインリクエストのタイムアウトを設定します。
func WithLoginRequestTimeout(d time.Duration) Option {
	return func(conf *Config) {
		conf.LoginRequestTimeout = d
	}
}

// WithDirectoryRequestTimeoutは、ソースディレクトリリクエストのタイムアウトを設定します。
func WithDirectoryRequestTimeout(d time.Duration) Option {
	return func(conf *Config) {
		conf.DirectoryRequestTimeout = d
	}
}

// WithChannelAbandonTimeoutは、ダウンしたチャネルを放棄するまでの時間を設定します。
func WithChannelAbandonTimeout(d time.Duration) Option {
	return func(conf *Config) {
		conf.ChannelAbandonTimeout = d
	}
}

// WithReconnectは、再接続の有効/無効と間隔を設定します。
func WithReconnect(enabled bool, baseInterval, maxInterval time.Duration) Option {
	return func(conf *Config) {
		conf.Reconnect = enabled
		conf.ReconnectBaseInterval = baseInterval
		conf.ReconnectMaxInterval = maxInterval
	}
}

// WithMetricsRegistererは、メトリクスの登録先を設定します。
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(conf *Config) {
		conf.MetricsRegisterer = reg
	}
}
