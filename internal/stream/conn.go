package stream

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orderbookdb/internal/core/bookdb"
	"orderbookdb/internal/core/infosub"
	"orderbookdb/internal/core/model"
)

// conn 单个 WebSocket 连接
// 读循环处理请求，写循环独占底层连接的写操作。
type conn struct {
	ws     *websocket.Conn
	db     *bookdb.DB
	cfg    connConfig
	logger *zap.Logger

	// sub 连接持有的订阅者句柄；注册表只保存其弱引用
	sub *infosub.InfoSub

	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu    sync.Mutex
	books map[model.BookKey]struct{}

	dropped atomic.Uint64

	// onClose 连接关闭后回调，可为空
	onClose func(*conn)
}

type connConfig struct {
	sendBuffer   int
	writeTimeout time.Duration
	pingInterval time.Duration
}

func newConn(ws *websocket.Conn, db *bookdb.DB, cfg connConfig, logger *zap.Logger) *conn {
	c := &conn{
		ws:     ws,
		db:     db,
		cfg:    cfg,
		send:   make(chan []byte, cfg.sendBuffer),
		done:   make(chan struct{}),
		books:  make(map[model.BookKey]struct{}),
		logger: logger,
	}
	c.sub = infosub.New(c)
	c.logger = logger.With(zap.Uint64("sub_seq", c.sub.Seq()))
	return c
}

// Send 实现 infosub.Sink；队列满时丢弃
func (c *conn) Send(payload json.RawMessage) error {
	select {
	case <-c.done:
		return infosub.ErrClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		n := c.dropped.Add(1)
		return fmt.Errorf("发送队列已满，累计丢弃 %d 条", n)
	}
}

func (c *conn) reply(resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("编码回复失败", zap.Error(err))
		return
	}
	if err := c.Send(b); err != nil {
		c.logger.Warn("回复未能入队", zap.Error(err))
	}
}

// serve 运行读写循环，直到连接断开
func (c *conn) serve() {
	go c.writeLoop()
	c.readLoop()
	c.close()
}

func (c *conn) readLoop() {
	readTimeout := 2 * c.cfg.pingInterval
	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("连接异常断开", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(failure(nil, fmt.Errorf("请求格式错误: %w", err)))
			continue
		}
		c.reply(c.handle(&req))
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Info("写入失败，关闭连接", zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.writeTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Info("发送 ping 失败，关闭连接", zap.Error(err))
				c.close()
				return
			}
		}
	}
}

func (c *conn) handle(req *Request) Response {
	switch req.Command {
	case cmdSubscribe:
		if len(req.Books) == 0 {
			return failure(req.ID, ErrNoBooks)
		}
		return success(req.ID, SubscribeResult{Books: c.subscribe(req.Books)})
	case cmdUnsubscribe:
		if len(req.Books) == 0 {
			return failure(req.ID, ErrNoBooks)
		}
		return success(req.ID, SubscribeResult{Books: c.unsubscribe(req.Books)})
	case cmdBooks:
		return success(req.ID, c.lookup(req))
	default:
		return failure(req.ID, fmt.Errorf("%q: %w", req.Command, ErrUnknownCommand))
	}
}

// subscribe 返回连接当前订阅的订单簿数
func (c *conn) subscribe(specs []BookSpec) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, spec := range specs {
		key := spec.Key()
		c.db.MakeBookListeners(key).AddSubscriber(c.sub)
		c.books[key] = struct{}{}
		c.logger.Debug("订阅订单簿", zap.Stringer("book", key))
	}
	return len(c.books)
}

func (c *conn) unsubscribe(specs []BookSpec) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, spec := range specs {
		key := spec.Key()
		if l := c.db.GetBookListeners(key); l != nil {
			l.RemoveSubscriber(c.sub.Seq())
		}
		delete(c.books, key)
	}
	return len(c.books)
}

func (c *conn) lookup(req *Request) BooksResult {
	var books []*model.Book
	switch {
	case req.Issuer == nil || req.Issuer.IsZero():
		books = c.db.NativeBooks()
		if req.Currency != nil {
			books = slices.DeleteFunc(books, func(b *model.Book) bool {
				return b.Key.CurrencyOut != *req.Currency
			})
		}
	case req.Currency != nil:
		books = c.db.BooksFor(*req.Issuer, *req.Currency, nil)
	default:
		books = c.db.Books(*req.Issuer)
	}

	res := BooksResult{LedgerSeq: c.db.LedgerSeq(), Books: make([]BookInfo, 0, len(books))}
	for _, b := range books {
		res.Books = append(res.Books, specOf(b))
	}
	return res
}

// close 关闭连接并注销全部订阅
// 未能及时注销的弱引用在下一次发布时清理。
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.sub.Close()
		close(c.done)
		_ = c.ws.Close()

		c.mu.Lock()
		for key := range c.books {
			if l := c.db.GetBookListeners(key); l != nil {
				l.RemoveSubscriber(c.sub.Seq())
			}
		}
		n := len(c.books)
		clear(c.books)
		c.mu.Unlock()

		c.logger.Info("连接已关闭",
			zap.Int("books", n),
			zap.Uint64("dropped", c.dropped.Load()),
		)
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}
