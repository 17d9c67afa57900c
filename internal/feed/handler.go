// Package feed 消费账本交易流：维护账本状态、在账本关闭时重建订单簿索引，
// 并把成功交易关联到受影响的订单簿。
package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"orderbookdb/internal/core/bookdb"
	"orderbookdb/internal/core/ledger"
	"orderbookdb/internal/core/meta"
)

// 消息类型
const (
	TypeTransaction  = "transaction"
	TypeLedgerClosed = "ledgerClosed"
)

// ErrBadMessage 消息无法解析
var ErrBadMessage = errors.New("交易流消息格式错误")

// Message 交易流消息
type Message struct {
	// Type transaction | ledgerClosed
	Type string `json:"type"`
	// LedgerIndex 所属账本序号
	LedgerIndex uint32 `json:"ledger_index"`
	// EngineResult 交易执行结果；缺省时取 meta.TransactionResult
	EngineResult meta.TxResult `json:"engine_result,omitempty"`
	// Meta 交易元数据
	Meta *meta.TxMeta `json:"meta,omitempty"`
	// Transaction 交易原文，仅透传
	Transaction json.RawMessage `json:"transaction,omitempty"`
}

// Handler 处理单条交易流消息
// 非并发安全：消息必须按账本顺序逐条处理。
type Handler struct {
	store  *ledger.Store
	db     *bookdb.DB
	logger *zap.Logger
}

// NewHandler 创建消息处理器
func NewHandler(store *ledger.Store, db *bookdb.DB, logger *zap.Logger) *Handler {
	return &Handler{store: store, db: db, logger: logger.Named("feed")}
}

// Handle 处理一条原始消息
// 格式错误返回 ErrBadMessage，调用方记录后跳过；存储错误原样返回。
func (h *Handler) Handle(raw []byte) error {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMessage, err)
	}

	switch msg.Type {
	case TypeTransaction:
		return h.transaction(&msg, raw)
	case TypeLedgerClosed:
		return h.ledgerClosed(msg.LedgerIndex)
	default:
		h.logger.Debug("忽略未知消息类型", zap.String("type", msg.Type))
		return nil
	}
}

func (h *Handler) transaction(msg *Message, raw []byte) error {
	if msg.Meta == nil {
		return fmt.Errorf("%w: 交易缺少 meta", ErrBadMessage)
	}

	if err := h.store.Apply(msg.Meta.StateChanges()); err != nil {
		return fmt.Errorf("应用账本变更失败: %w", err)
	}

	result := msg.EngineResult
	if result == "" {
		result = msg.Meta.TransactionResult
	}
	n := h.db.ProcessTxn(result, msg.Meta.AffectedNodes, json.RawMessage(raw))
	if n > 0 {
		h.logger.Debug("交易已推送",
			zap.Uint32("ledger_index", msg.LedgerIndex),
			zap.String("result", string(result)),
			zap.Int("books", n),
		)
	}
	return nil
}

func (h *Handler) ledgerClosed(seq uint32) error {
	if err := h.store.SetLedgerSeq(seq); err != nil {
		return err
	}

	snap, err := h.store.Snapshot()
	if err != nil {
		return fmt.Errorf("获取账本快照失败: %w", err)
	}
	defer snap.Close()

	h.db.Setup(snap)
	return nil
}
