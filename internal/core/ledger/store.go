package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"orderbookdb/internal/core/model"
)

// 键空间
// 'S' + index(32) -> Entry JSON
// "Mseq"         -> 当前账本序号（大端 uint32）
const entryPrefix = 'S'

var (
	seqKey     = []byte("Mseq")
	entryLower = []byte{entryPrefix}
	entryUpper = []byte{entryPrefix + 1}
)

// WriteOptions 写入选项；状态可由交易流重建，不需要每批 fsync
var WriteOptions = pebble.NoSync

func entryKey(index model.Hash256) []byte {
	key := make([]byte, 0, 1+len(index))
	key = append(key, entryPrefix)
	return append(key, index[:]...)
}

func indexOf(key []byte) model.Hash256 {
	var h model.Hash256
	copy(h[:], key[1:])
	return h
}

// Change 单个账本条目的状态变更
type Change struct {
	// Index 条目索引
	Index model.Hash256
	// Type 条目类型
	Type EntryType
	// Fields 变更后的字段；Delete 为 true 时忽略
	Fields *model.Fields
	// Delete 是否删除条目
	Delete bool
}

// Store 基于 pebble 的账本状态存储
// 写入来自交易元数据，读取通过 Snapshot 隔离。
type Store struct {
	db     *pebble.DB
	logger *zap.Logger
}

// Open 打开（或创建）账本状态存储
// 参数 dir: pebble 数据目录
func Open(dir string, logger *zap.Logger) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("打开账本存储失败: %w", err)
	}
	return &Store{db: db, logger: logger.Named("ledger")}, nil
}

// Close 关闭存储
func (s *Store) Close() error {
	return s.db.Close()
}

// Apply 批量写入条目变更
func (s *Store) Apply(changes []Change) error {
	if len(changes) == 0 {
		return nil
	}

	b := s.db.NewBatch()
	defer b.Close()

	for _, ch := range changes {
		key := entryKey(ch.Index)
		if ch.Delete {
			if err := b.Delete(key, nil); err != nil {
				return fmt.Errorf("删除条目 %s 失败: %w", ch.Index, err)
			}
			continue
		}

		entry := Entry{Type: ch.Type, Index: ch.Index}
		if ch.Fields != nil {
			entry.Fields = *ch.Fields
		}
		val, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("编码条目 %s 失败: %w", ch.Index, err)
		}
		if err := b.Set(key, val, nil); err != nil {
			return fmt.Errorf("写入条目 %s 失败: %w", ch.Index, err)
		}
	}

	if err := b.Commit(WriteOptions); err != nil {
		return fmt.Errorf("提交账本变更失败: %w", err)
	}
	return nil
}

// SetLedgerSeq 记录当前已关闭的账本序号
func (s *Store) SetLedgerSeq(seq uint32) error {
	val := binary.BigEndian.AppendUint32(nil, seq)
	if err := s.db.Set(seqKey, val, WriteOptions); err != nil {
		return fmt.Errorf("写入账本序号失败: %w", err)
	}
	return nil
}

// LedgerSeq 读取当前账本序号；未记录时返回 0
func (s *Store) LedgerSeq() (uint32, error) {
	return readSeq(s.db)
}

func readSeq(r pebble.Reader) (uint32, error) {
	val, closer, err := r.Get(seqKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取账本序号失败: %w", err)
	}
	defer closer.Close()

	if len(val) != 4 {
		return 0, fmt.Errorf("账本序号长度错误: %d", len(val))
	}
	return binary.BigEndian.Uint32(val), nil
}

// Snapshot 获取当前状态的只读快照
// 调用方用完后必须 Close。
func (s *Store) Snapshot() (*PebbleSnapshot, error) {
	snap := s.db.NewSnapshot()
	seq, err := readSeq(snap)
	if err != nil {
		_ = snap.Close()
		return nil, err
	}
	return &PebbleSnapshot{snap: snap, seq: seq, logger: s.logger}, nil
}

// PebbleSnapshot pebble 快照上的 Snapshot 实现
// 内部复用一个迭代器，顺序遍历时 NextIndex 只需一次 Next。
// 非并发安全：一个快照只应由一个遍历者使用。
type PebbleSnapshot struct {
	snap   *pebble.Snapshot
	seq    uint32
	iter   *pebble.Iterator
	logger *zap.Logger
}

var _ Snapshot = (*PebbleSnapshot)(nil)

// LedgerSeq 快照对应的账本序号
func (p *PebbleSnapshot) LedgerSeq() uint32 {
	return p.seq
}

func (p *PebbleSnapshot) iterator() *pebble.Iterator {
	if p.iter != nil {
		return p.iter
	}
	it, err := p.snap.NewIter(&pebble.IterOptions{
		LowerBound: entryLower,
		UpperBound: entryUpper,
	})
	if err != nil {
		p.logger.Error("创建快照迭代器失败", zap.Error(err))
		return nil
	}
	p.iter = it
	return it
}

// FirstIndex 第一个条目索引
func (p *PebbleSnapshot) FirstIndex() model.Hash256 {
	it := p.iterator()
	if it == nil || !it.First() {
		return model.Hash256{}
	}
	return indexOf(it.Key())
}

// NextIndex 严格大于 index 的下一个条目索引
func (p *PebbleSnapshot) NextIndex(index model.Hash256) model.Hash256 {
	it := p.iterator()
	if it == nil {
		return model.Hash256{}
	}

	key := entryKey(index)
	if !it.Valid() || !bytes.Equal(it.Key(), key) {
		if !it.SeekGE(key) {
			return model.Hash256{}
		}
	}
	if bytes.Equal(it.Key(), key) && !it.Next() {
		return model.Hash256{}
	}
	return indexOf(it.Key())
}

// Entry 读取条目
func (p *PebbleSnapshot) Entry(index model.Hash256) (*Entry, error) {
	val, closer, err := p.snap.Get(entryKey(index))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", index, ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("读取条目 %s 失败: %w", index, err)
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, fmt.Errorf("解码条目 %s 失败: %w", index, err)
	}
	return &e, nil
}

// Close 释放迭代器与快照
func (p *PebbleSnapshot) Close() error {
	var err error
	if p.iter != nil {
		err = p.iter.Close()
		p.iter = nil
	}
	if cerr := p.snap.Close(); err == nil {
		err = cerr
	}
	return err
}
