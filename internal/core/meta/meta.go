// Package meta 定义交易执行结果与元数据（AffectedNodes）结构。
// JSON 形式与账本公开的元数据一致: CreatedNode / ModifiedNode / DeletedNode 包装，
// 原生金额为 drops 字符串，发行资产金额为 {currency, issuer, value} 对象。
package meta

import (
	"encoding/json"
	"errors"
	"fmt"

	"orderbookdb/internal/core/ledger"
	"orderbookdb/internal/core/model"
)

// ErrUnknownNodeKind 元数据节点包装名未知
var ErrUnknownNodeKind = errors.New("未知的元数据节点类型")

// TxResult 交易执行结果代码
type TxResult string

// ResultSuccess 成功应用
const ResultSuccess TxResult = "tesSUCCESS"

// Success 是否成功应用
func (r TxResult) Success() bool {
	return r == ResultSuccess
}

// NodeKind 变更记录类型
type NodeKind uint8

const (
	// NodeCreated 新建条目
	NodeCreated NodeKind = iota + 1
	// NodeModified 修改条目
	NodeModified
	// NodeDeleted 删除条目
	NodeDeleted
)

var nodeKindNames = map[NodeKind]string{
	NodeCreated:  "CreatedNode",
	NodeModified: "ModifiedNode",
	NodeDeleted:  "DeletedNode",
}

func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NodeKind(%d)", uint8(k))
}

// AffectedNode 单条变更记录
type AffectedNode struct {
	// Kind 变更类型
	Kind NodeKind
	// LedgerEntryType 条目类型
	LedgerEntryType ledger.EntryType
	// LedgerIndex 条目索引
	LedgerIndex model.Hash256
	// NewFields 新建条目的字段
	NewFields *model.Fields
	// PreviousFields 修改前发生变化的字段
	PreviousFields *model.Fields
	// FinalFields 修改或删除后的字段
	FinalFields *model.Fields
}

// Selected 选择用于识别订单簿的字段子集
// Modified 读取 PreviousFields，Created 读取 NewFields，Deleted 读取 FinalFields。
// 只有这些子集对相应类型保证存在；修改类型取事件发生前的状态。
func (n *AffectedNode) Selected() (*model.Fields, error) {
	var f *model.Fields
	var name string
	switch n.Kind {
	case NodeModified:
		f, name = n.PreviousFields, "PreviousFields"
	case NodeCreated:
		f, name = n.NewFields, "NewFields"
	case NodeDeleted:
		f, name = n.FinalFields, "FinalFields"
	default:
		return nil, fmt.Errorf("%s: %w", n.Kind, ErrUnknownNodeKind)
	}
	if f == nil {
		return nil, fmt.Errorf("%s.%s: %w", n.Kind, name, model.ErrFieldMissing)
	}
	return f, nil
}

// StateChange 转换为账本状态变更
// Created / Modified 写入最终状态，Deleted 删除条目。
func (n *AffectedNode) StateChange() (ledger.Change, bool) {
	ch := ledger.Change{Index: n.LedgerIndex, Type: n.LedgerEntryType}
	switch n.Kind {
	case NodeCreated:
		ch.Fields = n.NewFields
	case NodeModified:
		ch.Fields = n.FinalFields
		if ch.Fields == nil {
			return ledger.Change{}, false
		}
	case NodeDeleted:
		ch.Delete = true
		return ch, true
	default:
		return ledger.Change{}, false
	}
	// 订单簿目录的四元组中取默认值的字段被省略，写入前补齐
	if n.LedgerEntryType == ledger.EntryDirectoryNode && ch.Fields.HasExchangeRate() {
		ch.Fields = ch.Fields.WithDirectoryDefaults()
	}
	return ch, true
}

type nodeBody struct {
	LedgerEntryType ledger.EntryType `json:"LedgerEntryType"`
	LedgerIndex     model.Hash256    `json:"LedgerIndex"`
	NewFields       *model.Fields    `json:"NewFields,omitempty"`
	PreviousFields  *model.Fields    `json:"PreviousFields,omitempty"`
	FinalFields     *model.Fields    `json:"FinalFields,omitempty"`
}

// MarshalJSON 输出 {"<Kind>": {...}} 包装形式
func (n AffectedNode) MarshalJSON() ([]byte, error) {
	name, ok := nodeKindNames[n.Kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w", n.Kind, ErrUnknownNodeKind)
	}
	return json.Marshal(map[string]nodeBody{name: {
		LedgerEntryType: n.LedgerEntryType,
		LedgerIndex:     n.LedgerIndex,
		NewFields:       n.NewFields,
		PreviousFields:  n.PreviousFields,
		FinalFields:     n.FinalFields,
	}})
}

// UnmarshalJSON 解析 {"<Kind>": {...}} 包装形式
func (n *AffectedNode) UnmarshalJSON(data []byte) error {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("元数据节点: %w", err)
	}
	if len(wrapper) != 1 {
		return fmt.Errorf("元数据节点包含 %d 个包装键: %w", len(wrapper), ErrUnknownNodeKind)
	}

	for name, raw := range wrapper {
		kind := kindByName(name)
		if kind == 0 {
			return fmt.Errorf("%q: %w", name, ErrUnknownNodeKind)
		}
		var body nodeBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*n = AffectedNode{
			Kind:            kind,
			LedgerEntryType: body.LedgerEntryType,
			LedgerIndex:     body.LedgerIndex,
			NewFields:       body.NewFields,
			PreviousFields:  body.PreviousFields,
			FinalFields:     body.FinalFields,
		}
	}
	return nil
}

func kindByName(name string) NodeKind {
	for k, n := range nodeKindNames {
		if n == name {
			return k
		}
	}
	return 0
}

// TxMeta 交易元数据
type TxMeta struct {
	// TransactionResult 执行结果
	TransactionResult TxResult `json:"TransactionResult"`
	// TransactionIndex 交易在账本中的位置
	TransactionIndex uint32 `json:"TransactionIndex"`
	// AffectedNodes 按顺序排列的变更记录
	AffectedNodes []AffectedNode `json:"AffectedNodes"`
}

// StateChanges 汇总交易对账本状态的变更
// 元数据记录的是实际发生的变更，与执行结果代码无关（tec 类结果同样会修改状态）。
func (m *TxMeta) StateChanges() []ledger.Change {
	changes := make([]ledger.Change, 0, len(m.AffectedNodes))
	for i := range m.AffectedNodes {
		if ch, ok := m.AffectedNodes[i].StateChange(); ok {
			changes = append(changes, ch)
		}
	}
	return changes
}
