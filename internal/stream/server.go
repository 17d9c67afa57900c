package stream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orderbookdb/internal/config"
	"orderbookdb/internal/core/bookdb"
)

// Server WebSocket 推送服务
type Server struct {
	cfg      config.StreamConfig
	db       *bookdb.DB
	logger   *zap.Logger
	upgrader websocket.Upgrader
	srv      *http.Server

	mu sync.Mutex
	// conns 活跃连接；升级后的连接不受 http.Server.Shutdown 管理
	conns  map[*conn]struct{}
	closed bool
}

// NewServer 创建推送服务
func NewServer(cfg config.StreamConfig, db *bookdb.DB, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		db:     db,
		logger: logger.Named("stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleWS)
	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler HTTP 处理器，测试中可挂到 httptest.Server
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run 启动服务，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("推送服务启动", zap.Stringer("addr", ln.Addr()), zap.String("path", s.cfg.Path))
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.closeConns()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	n := s.closeConns()
	if err != nil {
		return err
	}
	s.logger.Info("推送服务已关闭", zap.Int("conns", n))
	return nil
}

// closeConns 关闭全部活跃连接，之后到达的连接立即关闭
// 返回: 关闭的连接数
func (s *Server) closeConns() int {
	s.mu.Lock()
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	// conn.close 回调 untrack，不能持锁调用
	for _, c := range conns {
		c.close()
	}
	return len(conns)
}

// track 登记连接；服务已关闭时返回 false
func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, c)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket 握手失败", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	c := newConn(ws, s.db, connConfig{
		sendBuffer:   s.cfg.SendBuffer,
		writeTimeout: s.cfg.WriteTimeout(),
		pingInterval: s.cfg.PingInterval(),
	}, s.logger.With(zap.String("remote", r.RemoteAddr)))
	c.onClose = s.untrack

	if !s.track(c) {
		c.close()
		return
	}
	c.logger.Info("客户端已连接")
	go c.serve()
}
