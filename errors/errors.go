package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrRouterは、mdrouterライブラリで定義されている基底エラーです。
	ErrRouter = errors.New("mdrouter")
	// ErrSessionClosedは、クローズ済みのセッションを操作した場合のエラーです。
	ErrSessionClosed = fmt.Errorf("consumer session is closed: %w", ErrRouter)
	// ErrInvalidConfigは、設定が不正な場合のエラーです。
	ErrInvalidConfig = fmt.Errorf("invalid configuration: %w", ErrRouter)
	// ErrInvalidServiceGroupは、サービスグループ（サービスリスト）の設定が不正な場合のエラーです。
	ErrInvalidServiceGroup = fmt.Errorf("invalid service list: %w", ErrInvalidConfig)
	// ErrUnknownHandleは、存在しないハンドルを指定した場合のエラーです。
	ErrUnknownHandle = fmt.Errorf("unknown handle: %w", ErrRouter)
	// ErrStreamNotOpenは、チャネルにバインドされていないストリームへ送信した場合のエラーです。
	ErrStreamNotOpen = fmt.Errorf("stream is not open: %w", ErrRouter)
	// ErrUnknownServiceNameは、チャネルが認識しないサービス名を指定した場合のエラーです。
	ErrUnknownServiceName = fmt.Errorf("unknown service name: %w", ErrRouter)
	// ErrUnknownServiceIDは、チャネルが認識しないサービスIDを指定した場合のエラーです。
	ErrUnknownServiceID = fmt.Errorf("unknown service Id: %w", ErrRouter)
	// ErrInvalidReissueは、再発行で変更できない属性を変更しようとした場合のエラーです。
	ErrInvalidReissue = fmt.Errorf("invalid reissue: %w", ErrRouter)
	// ErrInvalidIOCtlは、チャネルのパラメーター変更要求が不正な場合のエラーです。
	ErrInvalidIOCtl = fmt.Errorf("invalid ioctl: %w", ErrRouter)
	// ErrLoginTimeoutは、ログインタイムアウトまでにどのチャネルもログインできなかった場合のエラーです。
	ErrLoginTimeout = fmt.Errorf("login timeout: %w", ErrRouter)
)

// LoginTimeoutErrorは、ログインタイムアウトの詳細を表すエラーです。
type LoginTimeoutError struct {
	Waited   time.Duration // 待機した時間
	Channels []string      // タイムアウトしたチャネル名
}

func (e LoginTimeoutError) Error() string {
	return fmt.Sprintf("login failed (timed out after waiting %d milliseconds) for %s",
		e.Waited.Milliseconds(), strings.Join(e.Channels, ", "))
}

func (e LoginTimeoutError) Is(err error) bool {
	return err == ErrLoginTimeout || err == ErrRouter
}

func AsLoginTimeoutError(err error) (*LoginTimeoutError, bool) {
	var res LoginTimeoutError
	ok := As(err, &res)
	return &res, ok
}

func New(text string) error {
	return errors.New(text)
}

func Errorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
