package wire

import (
	"sync"
	"sync/atomic"

	"github.com/aptpod/mdrouter-go/message"
)

const defaultPipeBufferSize = 1024

// PipeTransportは、Pipeが返却するインメモリのTransportです。
type PipeTransport struct {
	rx        <-chan message.Msg
	rxCounter *atomic.Uint64

	tx        chan<- message.Msg
	txCounter *atomic.Uint64

	once           sync.Once
	closedCh       chan struct{}
	remoteClosedCh <-chan struct{}
}

var _ Transport = (*PipeTransport)(nil)

func (p *PipeTransport) Read() (message.Msg, error) {
	select {
	case <-p.closedCh:
		return nil, ErrClosed
	case msg := <-p.rx:
		p.rxCounter.Add(1)
		return msg, nil
	case <-p.remoteClosedCh:
		select {
		case msg := <-p.rx:
			p.rxCounter.Add(1)
			return msg, nil
		default:
		}
		return nil, EOF
	}
}

func (p *PipeTransport) Write(msg message.Msg) error {
	select {
	case <-p.remoteClosedCh:
		return ErrClosed
	case <-p.closedCh:
		return ErrClosed
	default:
	}
	select {
	case <-p.remoteClosedCh:
		return ErrClosed
	case <-p.closedCh:
		return ErrClosed
	case p.tx <- msg:
		p.txCounter.Add(1)
		return nil
	}
}

// RxMessageCounterValueは、受信メッセージ数を返却します。
func (p *PipeTransport) RxMessageCounterValue() uint64 {
	return p.rxCounter.Load()
}

// TxMessageCounterValueは、送信メッセージ数を返却します。
func (p *PipeTransport) TxMessageCounterValue() uint64 {
	return p.txCounter.Load()
}

func (p *PipeTransport) Close() error {
	p.once.Do(func() {
		close(p.closedCh)
	})
	return nil
}

// Pipeは、インメモリで接続された2つのTransportを返却します。
//
// 一方へ書き込んだメッセージはもう一方から読み出せます。各方向に1024メッセージのバッファを持ちます。
func Pipe() (*PipeTransport, *PipeTransport) {
	ch1 := make(chan message.Msg, defaultPipeBufferSize)
	ch2 := make(chan message.Msg, defaultPipeBufferSize)

	chClosed1 := make(chan struct{})
	chClosed2 := make(chan struct{})

	return &PipeTransport{
			rx:        ch2,
			tx:        ch1,
			rxCounter: &atomic.Uint64{},
			txCounter: &atomic.Uint64{},

			closedCh:       chClosed1,
			remoteClosedCh: chClosed2,
		}, &PipeTransport{
			rx:        ch1,
			tx:        ch2,
			rxCounter: &atomic.Uint64{},
			txCounter: &atomic.Uint64{},

			closedCh:       chClosed2,
			remoteClosedCh: chClosed1,
		}
}
