// Package main 是订单簿索引服务的入口点。
// 服务消费账本交易流，维护订单簿索引，并把交易推送给订阅了受影响订单簿的客户端。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"orderbookdb/internal/config"
	"orderbookdb/internal/core/bookdb"
	"orderbookdb/internal/core/ledger"
	"orderbookdb/internal/feed"
	"orderbookdb/internal/metrics"
	"orderbookdb/internal/output/jsonl"
	"orderbookdb/internal/stream"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("服务异常退出", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("服务已退出")
}

func run(cfg *config.Config, logger *zap.Logger) (err error) {
	// 捕获 SIGINT/SIGTERM，触发优雅退出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := ledger.Open(cfg.Ledger.Dir, logger)
	if err != nil {
		return fmt.Errorf("打开账本存储失败: %w", err)
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	db := bookdb.New(logger)
	if err := initialSetup(store, db); err != nil {
		return err
	}

	recorders, err := startRecorders(cfg, db, logger)
	defer func() {
		for _, r := range recorders {
			err = multierr.Append(err, r.Close())
		}
	}()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	server := stream.NewServer(cfg.Stream, db, logger)
	g.Go(func() error {
		return server.Run(ctx)
	})

	if cfg.Feed.Enabled {
		consumer := feed.NewConsumer(cfg.Feed, feed.NewHandler(store, db, logger), logger)
		defer func() { err = multierr.Append(err, consumer.Close()) }()
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	} else {
		logger.Warn("交易流未启用，索引只反映启动时的账本状态")
	}

	if cfg.Metrics.Enabled {
		handler, err := metricsHandler()
		if err != nil {
			return err
		}
		g.Go(func() error {
			return serveMetrics(ctx, cfg.Metrics, handler, logger)
		})
	}

	logger.Info("服务已启动",
		zap.String("app", cfg.App.Name),
		zap.Uint32("ledger_seq", db.LedgerSeq()),
		zap.Int("recorders", len(recorders)),
	)

	<-ctx.Done()
	logger.Info("开始优雅关闭")
	return g.Wait()
}

// initialSetup 用存储中的已有状态建立首个索引
func initialSetup(store *ledger.Store, db *bookdb.DB) error {
	snap, err := store.Snapshot()
	if err != nil {
		return fmt.Errorf("获取账本快照失败: %w", err)
	}
	defer snap.Close()

	db.Setup(snap)
	return nil
}

// startRecorders 为每个配置的订单簿挂接落盘记录器
// 出错时返回已创建的记录器，由调用方关闭。
func startRecorders(cfg *config.Config, db *bookdb.DB, logger *zap.Logger) ([]*jsonl.Recorder, error) {
	recorders := make([]*jsonl.Recorder, 0, len(cfg.Recorders))
	for _, rc := range cfg.Recorders {
		key, err := rc.Key()
		if err != nil {
			return recorders, fmt.Errorf("recorder %s: %w", rc.Name, err)
		}
		rec, err := jsonl.NewRecorder(rc.Name, key, cfg.Output.Dir, cfg.Output.BufferSize, logger)
		if err != nil {
			return recorders, fmt.Errorf("创建 recorder %s 失败: %w", rc.Name, err)
		}
		recorders = append(recorders, rec)
		db.MakeBookListeners(key).AddSubscriber(rec.Sub())
	}
	return recorders, nil
}

func metricsHandler() (http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("注册指标失败: %w", err)
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), nil
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, handler http.Handler, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, handler)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("指标服务启动", zap.String("addr", cfg.ListenAddr), zap.String("path", cfg.Path))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
