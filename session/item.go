package session

import (
	"github.com/benbjohnson/clock"

	"github.com/aptpod/mdrouter-go/message"
)

type itemStatus uint8

const (
	itemStatusUnserviced itemStatus = iota
	itemStatusPending
	itemStatusOpen
	itemStatusClosedRecover
)

func (s itemStatus) String() string {
	switch s {
	case itemStatusUnserviced:
		return "unserviced"
	case itemStatusPending:
		return "pending"
	case itemStatusOpen:
		return "open"
	case itemStatusClosedRecover:
		return "closed_recover"
	default:
		return "unknown"
	}
}

// selectorは、アイテムが要求するサービスの指定方法です。
type selector struct {
	serviceName string
	serviceID   *uint16
	groupName   string
}

// itemは、アプリケーションが開いたアイテムストリームです。
type item struct {
	handle  Handle
	closure any
	handler EventHandler
	req     *message.RequestMsg
	sel     selector

	status itemStatus
	ch     *channel
	stream *wireStream
	// サービング中のサービス名
	serviceName string

	// プロバイダーが最後に通知したアイテムグループ
	group []byte
	// 拡張アイテム回復が無効の場合に留まるチャネル
	pinned *channel
	// 直前に失敗したチャネル
	failed *channel
	// 最後に通知した未サービス理由
	lastReason string

	timer *clock.Timer
	// タイマーの世代
	attempt uint64
}

func newItem(h Handle, req *message.RequestMsg, handler EventHandler, closure any) *item {
	it := &item{
		handle:  h,
		closure: closure,
		handler: handler,
		req:     req,
		status:  itemStatusUnserviced,
	}
	it.sel = selector{
		serviceName: req.ServiceName,
		groupName:   req.ServiceListName,
	}
	if req.ServiceID != nil {
		id := *req.ServiceID
		it.sel.serviceID = &id
	}
	return it
}

func (it *item) private() bool {
	return it.req.PrivateStream
}

func (it *item) bound() bool {
	return it.ch != nil && it.stream != nil
}
