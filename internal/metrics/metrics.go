// Package metrics 定义订单簿索引的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const namespace = "orderbookdb"

// SetupCount 索引构建次数，result=rebuilt|skipped
var SetupCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "index",
	Name:      "setup_total",
}, []string{"result"})

// SetupDuration 全量扫描耗时（秒）
var SetupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "index",
	Name:      "setup_duration_seconds",
	Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
})

// Books 当前索引中的订单簿数量，side=native|issued
var Books = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "index",
	Name:      "books",
}, []string{"side"})

// LedgerSeq 索引对应的账本序号
var LedgerSeq = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "index",
	Name:      "ledger_seq",
})

// Malformed 跳过的异常条目，kind=ledger_entry|change_record
var Malformed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "index",
	Name:      "malformed_total",
}, []string{"kind"})

// ListenerEntries 订单簿监听表条目数
var ListenerEntries = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "listeners",
	Name:      "entries",
})

// Published 投递结果，result=delivered|pruned|failed
var Published = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "listeners",
	Name:      "published_total",
}, []string{"result"})

// Transactions 处理的交易数，result=success|skipped
var Transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "correlator",
	Name:      "transactions_total",
}, []string{"result"})

// Collectors 全部指标
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SetupCount,
		SetupDuration,
		Books,
		LedgerSeq,
		Malformed,
		ListenerEntries,
		Published,
		Transactions,
	}
}

// Register 向注册器注册全部指标
func Register(reg prometheus.Registerer) error {
	var err error
	for _, c := range Collectors() {
		err = multierr.Append(err, reg.Register(c))
	}
	return err
}
