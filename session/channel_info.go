package session

import (
	"github.com/aptpod/mdrouter-go/errors"
)

// ChannelInformationは、チャネルの情報です。
type ChannelInformation struct {
	Name       string       // チャネル名
	GroupName  string       // コネクショングループ名
	Address    string       // アドレス
	State      ChannelState // チャネルの状態
	LoginState LoginState   // ログインの状態

	GuaranteedOutputBuffers int
	NumInputBuffers         int
	HighWaterMark           int
	SysSendBufSize          int
	SysRecvBufSize          int
}

// IOCtlCodeは、ModifyChannelsで変更するパラメーターのコードです。
type IOCtlCode uint8

const (
	IOCtlGuaranteedOutputBuffers IOCtlCode = iota + 1
	IOCtlNumInputBuffers
	IOCtlHighWaterMark
	IOCtlSysSendBufSize
	IOCtlSysRecvBufSize
)

func (c IOCtlCode) String() string {
	switch c {
	case IOCtlGuaranteedOutputBuffers:
		return "GuaranteedOutputBuffers"
	case IOCtlNumInputBuffers:
		return "NumInputBuffers"
	case IOCtlHighWaterMark:
		return "HighWaterMark"
	case IOCtlSysSendBufSize:
		return "SysSendBufSize"
	case IOCtlSysRecvBufSize:
		return "SysRecvBufSize"
	default:
		return "Unknown"
	}
}

func (c *ChannelConfig) modify(code IOCtlCode, value int) error {
	if value < 0 {
		return errors.Errorf("%v must not be negative: %w", code, errors.ErrInvalidIOCtl)
	}
	switch code {
	case IOCtlGuaranteedOutputBuffers:
		if value == 0 {
			return errors.Errorf("%v must be positive: %w", code, errors.ErrInvalidIOCtl)
		}
		if value < c.GuaranteedOutputBuffers {
			return errors.Errorf("%v cannot be decreased: %w", code, errors.ErrInvalidIOCtl)
		}
		c.GuaranteedOutputBuffers = value
	case IOCtlNumInputBuffers:
		if value == 0 {
			return errors.Errorf("%v must be positive: %w", code, errors.ErrInvalidIOCtl)
		}
		c.NumInputBuffers = value
	case IOCtlHighWaterMark:
		c.HighWaterMark = value
	case IOCtlSysSendBufSize:
		c.SysSendBufSize = value
	case IOCtlSysRecvBufSize:
		c.SysRecvBufSize = value
	default:
		return errors.Errorf("unknown code %d: %w", code, errors.ErrInvalidIOCtl)
	}
	return nil
}
