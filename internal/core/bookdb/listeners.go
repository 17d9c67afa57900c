package bookdb

import (
	"encoding/json"
	"errors"
	"sync"
	"weak"

	"go.uber.org/zap"

	"orderbookdb/internal/core/infosub"
	"orderbookdb/internal/core/model"
	"orderbookdb/internal/metrics"
)

// BookListeners 单个订单簿的订阅者集合
// 只持有订阅者的弱引用，不延长其生命周期；失效的订阅者在下一次发布时清理。
type BookListeners struct {
	key    model.BookKey
	logger *zap.Logger

	mu sync.Mutex
	// listeners 订阅者序号 -> 弱引用
	listeners map[uint64]weak.Pointer[infosub.InfoSub]
}

func newBookListeners(key model.BookKey, logger *zap.Logger) *BookListeners {
	return &BookListeners{
		key:       key,
		logger:    logger,
		listeners: make(map[uint64]weak.Pointer[infosub.InfoSub]),
	}
}

// Key 订单簿标识
func (l *BookListeners) Key() model.BookKey {
	return l.key
}

// AddSubscriber 添加订阅者；同一序号重复添加会覆盖
func (l *BookListeners) AddSubscriber(sub *infosub.InfoSub) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.listeners[sub.Seq()] = weak.Make(sub)
}

// RemoveSubscriber 按序号移除订阅者；不存在时忽略
func (l *BookListeners) RemoveSubscriber(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.listeners, seq)
}

// Len 当前登记的订阅者数量（含尚未清理的失效订阅者）
func (l *BookListeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.listeners)
}

// Publish 向全部存活订阅者投递 payload
// 已回收或已关闭的订阅者在遍历中移除，这是注册表唯一的清理时机。
// 其他投递错误只计入失败，订阅者保留。
// 返回: 投递成功数量与清理数量
func (l *BookListeners) Publish(payload json.RawMessage) (delivered, pruned int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for seq, ref := range l.listeners {
		sub := ref.Value()
		if sub == nil || sub.Closed() {
			delete(l.listeners, seq)
			pruned++
			continue
		}

		if err := sub.Send(payload); err != nil {
			if errors.Is(err, infosub.ErrClosed) {
				delete(l.listeners, seq)
				pruned++
				continue
			}
			metrics.Published.WithLabelValues("failed").Inc()
			l.logger.Debug("投递订单簿变更失败",
				zap.Stringer("book", l.key),
				zap.Uint64("sub_seq", seq),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}

	metrics.Published.WithLabelValues("delivered").Add(float64(delivered))
	metrics.Published.WithLabelValues("pruned").Add(float64(pruned))
	return delivered, pruned
}
