// Package bookdb 维护账本快照中的订单簿索引，并把交易引起的订单簿变更路由给订阅者。
//
// 锁分两层：
//   - DB.mu 保护索引状态（账本序号、原生资产列表、按发行方分桶）以及监听表的结构；
//   - BookListeners.mu 只保护单个订单簿的订阅者集合。
//
// 加锁顺序：持有 BookListeners.mu 时不得再获取 DB.mu。
package bookdb

import (
	"sync"

	"go.uber.org/zap"

	"orderbookdb/internal/core/ledger"
	"orderbookdb/internal/core/model"
	"orderbookdb/internal/metrics"
	"orderbookdb/internal/util/timeutil"
)

// DB 订单簿索引与订阅者注册表
type DB struct {
	logger *zap.Logger

	mu sync.RWMutex
	// seq 索引对应的账本序号，0 表示尚未构建
	seq uint32
	// nativeBooks 输入侧为原生资产的订单簿，按发现顺序
	nativeBooks []*model.Book
	// issuerBooks 按输入侧发行方分桶，桶内按发现顺序
	issuerBooks map[model.AccountID][]*model.Book
	// listeners 按订单簿标识索引的订阅者集合，条目创建后不删除
	listeners map[model.BookKey]*BookListeners
}

// New 创建空索引
func New(logger *zap.Logger) *DB {
	return &DB{
		logger:      logger.Named("bookdb"),
		issuerBooks: make(map[model.AccountID][]*model.Book),
		listeners:   make(map[model.BookKey]*BookListeners),
	}
}

// Invalidate 使索引失效，下一次 Setup 必定重新扫描
// 不清空容器，重建时整体替换。
func (d *DB) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq = 0
}

// Setup 基于账本快照构建索引
// 快照序号与当前序号相同则直接返回。
// 扫描全程持有写锁，读者不会看到构建到一半的索引。
// 返回: 是否执行了扫描
func (d *DB) Setup(snap ledger.Snapshot) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	seq := snap.LedgerSeq()
	if seq == d.seq {
		metrics.SetupCount.WithLabelValues("skipped").Inc()
		return false
	}
	d.seq = seq

	start := timeutil.NowNano()
	d.logger.Debug("开始扫描账本构建订单簿索引", zap.Uint32("ledger_seq", seq))

	d.nativeBooks = nil
	clear(d.issuerBooks)
	d.scan(snap)

	elapsed := timeutil.SinceNano(start)
	issued := 0
	for _, books := range d.issuerBooks {
		issued += len(books)
	}

	metrics.SetupCount.WithLabelValues("rebuilt").Inc()
	metrics.SetupDuration.Observe(elapsed.Seconds())
	metrics.Books.WithLabelValues("native").Set(float64(len(d.nativeBooks)))
	metrics.Books.WithLabelValues("issued").Set(float64(issued))
	metrics.LedgerSeq.Set(float64(seq))

	d.logger.Info("订单簿索引构建完成",
		zap.Uint32("ledger_seq", seq),
		zap.Int("native_books", len(d.nativeBooks)),
		zap.Int("issued_books", issued),
		zap.Int("issuers", len(d.issuerBooks)),
		zap.Duration("elapsed", elapsed),
	)
	return true
}

// scan 遍历账本目录链表，收集各订单簿目录根页
// 调用方持有写锁。
func (d *DB) scan(snap ledger.Snapshot) {
	seen := make(map[model.Hash256]struct{})

	for index := snap.FirstIndex(); !index.IsZero(); index = snap.NextIndex(index) {
		entry, err := snap.Entry(index)
		if err != nil {
			d.malformedEntry(index, err)
			continue
		}

		root, err := entry.IsBookRoot(index)
		if err != nil {
			d.malformedEntry(index, err)
			continue
		}
		if !root {
			continue
		}

		key, err := entry.Fields.DirectoryBook()
		if err != nil {
			d.malformedEntry(index, err)
			continue
		}

		base := key.Base()
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}

		book := model.NewBookWithBase(key, base)
		if key.IsNativeIn() {
			d.nativeBooks = append(d.nativeBooks, book)
		} else {
			d.issuerBooks[key.IssuerIn] = append(d.issuerBooks[key.IssuerIn], book)
		}
	}
}

func (d *DB) malformedEntry(index model.Hash256, err error) {
	metrics.Malformed.WithLabelValues("ledger_entry").Inc()
	d.logger.Warn("跳过异常账本条目", zap.Stringer("index", index), zap.Error(err))
}

// LedgerSeq 索引对应的账本序号，0 表示未构建或已失效
func (d *DB) LedgerSeq() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.seq
}

// NativeBooks 输入侧为原生资产的订单簿
// 返回切片的副本；其中的 *Book 不可变，可直接共享。
func (d *DB) NativeBooks() []*model.Book {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return append([]*model.Book{}, d.nativeBooks...)
}

// Books 输入侧发行方为 issuerIn 的全部订单簿
// 未找到时返回空切片而不是 nil。
func (d *DB) Books(issuerIn model.AccountID) []*model.Book {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return append([]*model.Book{}, d.issuerBooks[issuerIn]...)
}

// BooksFor 输入侧发行方为 issuerIn 且输出货币为 currencyOut 的订单簿
// 结果按发现顺序追加到 out 并返回。
func (d *DB) BooksFor(issuerIn model.AccountID, currencyOut model.Currency, out []*model.Book) []*model.Book {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, book := range d.issuerBooks[issuerIn] {
		if book.Key.CurrencyOut == currencyOut {
			out = append(out, book)
		}
	}
	return out
}

// MakeBookListeners 获取订单簿的订阅者集合，不存在则创建
// 同一标识并发调用只会创建一个条目。
func (d *DB) MakeBookListeners(key model.BookKey) *BookListeners {
	d.mu.Lock()
	defer d.mu.Unlock()

	if l, ok := d.listeners[key]; ok {
		return l
	}
	l := newBookListeners(key, d.logger)
	d.listeners[key] = l
	metrics.ListenerEntries.Set(float64(len(d.listeners)))
	return l
}

// GetBookListeners 获取订单簿的订阅者集合，不存在返回 nil
// 不会创建条目；只有订阅请求才创建条目。
func (d *DB) GetBookListeners(key model.BookKey) *BookListeners {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.listeners[key]
}
