package log

import (
	"context"
	"fmt"
	"math/rand"
)

// Loggerは、mdrouter-go内で使用するロガーインターフェースです。
type Logger interface {
	Infof(context.Context, string, ...interface{})
	Warnf(context.Context, string, ...interface{})
	Errorf(context.Context, string, ...interface{})
	Debugf(context.Context, string, ...interface{})
}

type trackKey struct{ name string }

var (
	trackSessionIDKey = &trackKey{"session-id"}
	trackChannelKey   = &trackKey{"channel"}
	trackMessageIDKey = &trackKey{"message-id"}
)

// WithTrackSessionIDは、セッションIDをコンテキストにセットします。
//
// ここで設定されたセッションIDは常にログ出力します。
func WithTrackSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, trackSessionIDKey, id)
}

// TrackSessionIDは、コンテキストにセットされたセッションIDを取得します。
func TrackSessionID(ctx context.Context) string {
	v, ok := ctx.Value(trackSessionIDKey).(string)
	if !ok {
		return ""
	}
	return v
}

// WithTrackChannelは、チャネル名をコンテキストにセットします。
//
// チャネルのI/Oループを開始するタイミングでセットします。
func WithTrackChannel(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, trackChannelKey, name)
}

// TrackChannelは、コンテキストにセットされたチャネル名を取得します。
func TrackChannel(ctx context.Context) string {
	v, ok := ctx.Value(trackChannelKey).(string)
	if !ok {
		return ""
	}
	return v
}

// WithTrackMessageIDは、新たにメッセージIDを採番しコンテキストにセットします。
//
// メッセージIDはチャネルからメッセージを受信したタイミングでセットします。
func WithTrackMessageID(ctx context.Context) context.Context {
	return context.WithValue(ctx, trackMessageIDKey, genTrackID())
}

// TrackMessageIDは、コンテキストにセットされたメッセージIDを取得します。
func TrackMessageID(ctx context.Context) string {
	v, ok := ctx.Value(trackMessageIDKey).(string)
	if !ok {
		return ""
	}
	return v
}

func genTrackID() string {
	return fmt.Sprintf("%04d-%04d-%04d", rand.Int31n(10000), rand.Int31n(10000), rand.Int31n(10000))
}

type trackField struct {
	key   string
	value string
}

func trackFields(ctx context.Context) []trackField {
	res := make([]trackField, 0, 3)
	if v := TrackSessionID(ctx); v != "" {
		res = append(res, trackField{"track-session-id", v})
	}
	if v := TrackChannel(ctx); v != "" {
		res = append(res, trackField{"track-channel", v})
	}
	if v := TrackMessageID(ctx); v != "" {
		res = append(res, trackField{"track-message-id", v})
	}
	return res
}
