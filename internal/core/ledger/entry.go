// Package ledger 定义账本快照接口，并基于 pebble 实现账本状态存储。
// 订单簿索引只通过 Snapshot 接口遍历账本，不关心底层存储形式。
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"orderbookdb/internal/core/model"
)

// ErrEntryNotFound 索引处没有账本条目
var ErrEntryNotFound = errors.New("账本条目不存在")

// EntryType 账本条目类型
type EntryType uint16

const (
	// EntryAccountRoot 账户根条目
	EntryAccountRoot EntryType = 0x61
	// EntryDirectoryNode 目录页条目
	EntryDirectoryNode EntryType = 0x64
	// EntryOffer 挂单条目
	EntryOffer EntryType = 0x6f
)

var entryTypeNames = map[EntryType]string{
	EntryAccountRoot:   "AccountRoot",
	EntryDirectoryNode: "DirectoryNode",
	EntryOffer:         "Offer",
}

// String 返回账本中使用的类型名
func (t EntryType) String() string {
	if name, ok := entryTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EntryType(0x%04x)", uint16(t))
}

// ParseEntryType 解析类型名
// 未知类型名不报错，返回 0 值类型，调用方按"非挂单"处理。
func ParseEntryType(name string) EntryType {
	for t, n := range entryTypeNames {
		if n == name {
			return t
		}
	}
	return 0
}

func (t EntryType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *EntryType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("LedgerEntryType: %w", err)
	}
	*t = ParseEntryType(name)
	return nil
}

// Entry 账本状态条目
type Entry struct {
	// Type 条目类型
	Type EntryType `json:"LedgerEntryType"`
	// Index 条目索引
	Index model.Hash256 `json:"index"`
	// Fields 字段集合
	Fields model.Fields `json:"fields"`
}

// IsBookRoot 是否为某个订单簿目录的根页
// 条件: 目录页、携带兑换率、RootIndex 等于遍历到的索引。
// 订单簿目录可能跨多页，只有根页携带订单簿标识字段。
func (e *Entry) IsBookRoot(index model.Hash256) (bool, error) {
	if e.Type != EntryDirectoryNode || !e.Fields.HasExchangeRate() {
		return false, nil
	}
	root, err := e.Fields.Root()
	if err != nil {
		return false, err
	}
	return root == index, nil
}

// Snapshot 不可变的账本状态视图
type Snapshot interface {
	// LedgerSeq 快照对应的账本序号
	LedgerSeq() uint32
	// FirstIndex 第一个条目索引；空账本返回零值
	FirstIndex() model.Hash256
	// NextIndex 下一个条目索引；返回零值表示遍历结束
	NextIndex(index model.Hash256) model.Hash256
	// Entry 读取条目；不存在时返回 ErrEntryNotFound
	Entry(index model.Hash256) (*Entry, error)
}
