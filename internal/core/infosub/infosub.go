// Package infosub 定义订单簿变更的订阅者句柄。
// 注册表只持有订阅者的弱引用；订阅者由其所有者（连接、记录器）持有并负责 Close。
package infosub

import (
	"encoding/json"
	"errors"
	"sync/atomic"
)

// ErrClosed 订阅者已关闭
var ErrClosed = errors.New("订阅者已关闭")

var lastSeq atomic.Uint64

// NextSeq 分配进程内唯一的订阅者序号
func NextSeq() uint64 {
	return lastSeq.Add(1)
}

// Sink 订阅者的投递通道
// Send 不应阻塞调用方；投递失败由传输层自行处理。
type Sink interface {
	Send(payload json.RawMessage) error
}

// SinkFunc 函数形式的 Sink
type SinkFunc func(payload json.RawMessage) error

// Send 调用函数本身
func (f SinkFunc) Send(payload json.RawMessage) error {
	return f(payload)
}

// InfoSub 订阅者句柄
type InfoSub struct {
	seq    uint64
	sink   Sink
	closed atomic.Bool
}

// New 创建订阅者并分配序号
func New(sink Sink) *InfoSub {
	return NewWithSeq(NextSeq(), sink)
}

// NewWithSeq 使用指定序号创建订阅者
func NewWithSeq(seq uint64, sink Sink) *InfoSub {
	return &InfoSub{seq: seq, sink: sink}
}

// Seq 订阅者序号
func (s *InfoSub) Seq() uint64 {
	return s.seq
}

// Send 投递一条消息
func (s *InfoSub) Send(payload json.RawMessage) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.sink.Send(payload)
}

// Close 标记订阅者失效
// 注册表在下一次向其发布时清理该订阅者。
func (s *InfoSub) Close() {
	s.closed.Store(true)
}

// Closed 是否已失效
func (s *InfoSub) Closed() bool {
	return s.closed.Load()
}
