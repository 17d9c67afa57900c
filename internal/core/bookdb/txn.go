package bookdb

import (
	"encoding/json"

	"go.uber.org/zap"

	"orderbookdb/internal/core/ledger"
	"orderbookdb/internal/core/meta"
	"orderbookdb/internal/core/model"
	"orderbookdb/internal/metrics"
)

// ProcessTxn 根据交易元数据找出受影响的订单簿，并把 payload 发布给其订阅者
// 仅处理成功应用的交易。单条变更记录字段异常只记录日志，不影响后续记录。
// 不会创建监听表条目。
// 返回: 发布次数
func (d *DB) ProcessTxn(result meta.TxResult, nodes []meta.AffectedNode, payload json.RawMessage) int {
	if !result.Success() {
		metrics.Transactions.WithLabelValues("skipped").Inc()
		return 0
	}
	metrics.Transactions.WithLabelValues("success").Inc()

	published := 0
	for i := range nodes {
		node := &nodes[i]

		key, ok, err := bookKeyOf(node)
		if err != nil {
			metrics.Malformed.WithLabelValues("change_record").Inc()
			d.logger.Info("变更记录缺少订单簿字段",
				zap.Int("node", i),
				zap.Stringer("kind", node.Kind),
				zap.Stringer("index", node.LedgerIndex),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}

		// 先释放 DB.mu 再发布，避免持有两层锁
		listeners := d.GetBookListeners(key)
		if listeners == nil {
			continue
		}
		listeners.Publish(payload)
		published++
	}
	return published
}

// bookKeyOf 从单条变更记录推导订单簿标识
// 非挂单记录返回 ok=false。
func bookKeyOf(node *meta.AffectedNode) (key model.BookKey, ok bool, err error) {
	if node.LedgerEntryType != ledger.EntryOffer {
		return model.BookKey{}, false, nil
	}

	fields, err := node.Selected()
	if err != nil {
		return model.BookKey{}, false, err
	}
	pays, gets, err := fields.Amounts()
	if err != nil {
		return model.BookKey{}, false, err
	}
	return model.NewBookKey(pays, gets), true, nil
}
