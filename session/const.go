package session

import "time"

// Handleは、セッションへ登録したストリームを識別するハンドルです。
type Handle int64

const (
	// LoginHandleは、論理ログインストリームのハンドルです。
	LoginHandle Handle = 1

	firstHandle Handle = 2
)

const (
	loginStreamID     int32 = 1
	directoryStreamID int32 = 2

	// セッションレベルのサービスIDの採番開始値
	serviceIDBase uint16 = 32767
)

const (
	defaultRequestTimeout          = 15 * time.Second
	defaultLoginRequestTimeout     = 45 * time.Second
	defaultDirectoryRequestTimeout = 45 * time.Second
	defaultChannelAbandonTimeout   = 0

	defaultGuaranteedOutputBuffers = 100
	defaultNumInputBuffers         = 100

	defaultReconnectBaseInterval = 500 * time.Millisecond
	defaultReconnectMaxInterval  = 5 * time.Second
)

// ステータステキスト
const (
	textLoginAccepted          = "Login accepted"
	textChannelUp              = "session channel up"
	textChannelDownReconnect   = "session channel down reconnecting"
	textChannelClosed          = "session channel closed"
	textChannelSuspect         = "session channel suspect"
	textNoMatchingService      = "No matching service present."
	textCapabilityNotSupported = "Capability not supported"
	textNoMatchingQoS          = "Service does not provide a matching QoS"
	textNotAcceptingRequests   = "Service is not accepting requests"
	textBatchClosed            = "Stream closed for batch"
	textSessionClosed          = "Consumer session is closed"
	textRequestTimeout         = "Request timeout"
	textChannelDown            = "Channel is down"
	textServiceDown            = "Service is down"
	textServiceDeleted         = "Service was deleted"
	textChannelAbandoned       = "Channel was abandoned"
	textInvalidServiceID       = "Service Id 0 is reserved"
	textUnknownServiceList     = "Unknown service list"
	textAmbiguousService       = "Service name, service Id and service list are mutually exclusive"
	textNoService              = "No service specified"
)
