package jsonl

import (
	"encoding/json"
	"path/filepath"

	"go.uber.org/zap"

	"orderbookdb/internal/core/infosub"
	"orderbookdb/internal/core/model"
	"orderbookdb/internal/util/timeutil"
)

// Record 落盘的一条订单簿变更
type Record struct {
	// Recorder 记录器名称
	Recorder string `json:"recorder"`
	// Book 订单簿
	Book string `json:"book"`
	// ReceivedAtNs 收到时间（Unix 纳秒）
	ReceivedAtNs int64 `json:"received_at_ns"`
	// Payload 原始推送内容
	Payload json.RawMessage `json:"payload"`
}

// Recorder 把单个订单簿的变更写入 JSONL 文件
// 实现 infosub.Sink；作为订阅者挂在注册表上时由 Recorder 持有 InfoSub。
type Recorder struct {
	name   string
	key    model.BookKey
	w      *Writer
	sub    *infosub.InfoSub
	logger *zap.Logger
	now    func() int64
}

// NewRecorder 创建记录器，输出到 dir/<name>.jsonl
func NewRecorder(name string, key model.BookKey, dir string, bufferSize int, logger *zap.Logger) (*Recorder, error) {
	logger = logger.Named("recorder").With(zap.String("recorder", name))
	w, err := NewWriter(filepath.Join(dir, name+".jsonl"), bufferSize, logger)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		name:   name,
		key:    key,
		w:      w,
		logger: logger,
		now:    timeutil.NowNano,
	}
	r.sub = infosub.New(r)
	return r, nil
}

// Name 记录器名称
func (r *Recorder) Name() string {
	return r.name
}

// Key 记录的订单簿
func (r *Recorder) Key() model.BookKey {
	return r.key
}

// Sub 注册到订单簿监听表的订阅者句柄
func (r *Recorder) Sub() *infosub.InfoSub {
	return r.sub
}

// Send 投递一条变更；缓冲区满时丢弃，不阻塞发布方
func (r *Recorder) Send(payload json.RawMessage) error {
	rec := Record{
		Recorder:     r.name,
		Book:         r.key.String(),
		ReceivedAtNs: r.now(),
		Payload:      append(json.RawMessage(nil), payload...),
	}
	return r.w.TryWrite(rec)
}

// Flush 刷新文件缓冲
func (r *Recorder) Flush() error {
	return r.w.Flush()
}

// Close 注销订阅者并关闭文件
func (r *Recorder) Close() error {
	r.sub.Close()
	err := r.w.Close()
	written, dropped := r.w.Stats()
	r.logger.Info("记录器已关闭", zap.Uint64("written", written), zap.Uint64("dropped", dropped))
	return err
}
