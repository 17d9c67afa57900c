package model

import (
	"errors"
	"fmt"
)

// ErrFieldMissing 账本条目或变更记录缺少必需字段
var ErrFieldMissing = errors.New("字段缺失")

// Fields 账本条目字段集合
// 同时用于账本状态条目和交易元数据中的 NewFields / PreviousFields / FinalFields。
// 所有字段均可缺失，读取时通过访问器检查。
type Fields struct {
	// Account 挂单所属账户
	Account *AccountID `json:"Account,omitempty"`
	// Sequence 挂单序列号
	Sequence *uint32 `json:"Sequence,omitempty"`
	// TakerPays 吃单方支付的金额（订单簿输入侧）
	TakerPays *Amount `json:"TakerPays,omitempty"`
	// TakerGets 吃单方获得的金额（订单簿输出侧）
	TakerGets *Amount `json:"TakerGets,omitempty"`
	// BookDirectory 挂单所在的目录页
	BookDirectory *Hash256 `json:"BookDirectory,omitempty"`

	// RootIndex 目录根页索引；根页的 RootIndex 等于自身索引
	RootIndex *Hash256 `json:"RootIndex,omitempty"`
	// ExchangeRate 目录兑换率，仅订单簿目录携带
	ExchangeRate *Rate `json:"ExchangeRate,omitempty"`
	// TakerPaysCurrency 目录所属订单簿的输入货币
	TakerPaysCurrency *Currency `json:"TakerPaysCurrency,omitempty"`
	// TakerPaysIssuer 目录所属订单簿的输入发行方
	TakerPaysIssuer *AccountID `json:"TakerPaysIssuer,omitempty"`
	// TakerGetsCurrency 目录所属订单簿的输出货币
	TakerGetsCurrency *Currency `json:"TakerGetsCurrency,omitempty"`
	// TakerGetsIssuer 目录所属订单簿的输出发行方
	TakerGetsIssuer *AccountID `json:"TakerGetsIssuer,omitempty"`
	// IndexNext 目录链表的下一页
	IndexNext *uint64 `json:"IndexNext,omitempty"`
	// IndexPrevious 目录链表的上一页
	IndexPrevious *uint64 `json:"IndexPrevious,omitempty"`
}

func missing(name string) error {
	return fmt.Errorf("%s: %w", name, ErrFieldMissing)
}

// Amounts 读取挂单的 TakerPays 与 TakerGets
func (f *Fields) Amounts() (pays, gets Amount, err error) {
	if f == nil {
		return Amount{}, Amount{}, missing("Fields")
	}
	if f.TakerPays == nil {
		return Amount{}, Amount{}, missing("TakerPays")
	}
	if f.TakerGets == nil {
		return Amount{}, Amount{}, missing("TakerGets")
	}
	return *f.TakerPays, *f.TakerGets, nil
}

// DirectoryBook 读取目录根页上的订单簿四元组
func (f *Fields) DirectoryBook() (BookKey, error) {
	if f == nil {
		return BookKey{}, missing("Fields")
	}
	switch {
	case f.TakerPaysCurrency == nil:
		return BookKey{}, missing("TakerPaysCurrency")
	case f.TakerPaysIssuer == nil:
		return BookKey{}, missing("TakerPaysIssuer")
	case f.TakerGetsCurrency == nil:
		return BookKey{}, missing("TakerGetsCurrency")
	case f.TakerGetsIssuer == nil:
		return BookKey{}, missing("TakerGetsIssuer")
	}
	return BookKey{
		CurrencyIn:  *f.TakerPaysCurrency,
		IssuerIn:    *f.TakerPaysIssuer,
		CurrencyOut: *f.TakerGetsCurrency,
		IssuerOut:   *f.TakerGetsIssuer,
	}, nil
}

// Root 读取目录根页索引
func (f *Fields) Root() (Hash256, error) {
	if f == nil || f.RootIndex == nil {
		return Hash256{}, missing("RootIndex")
	}
	return *f.RootIndex, nil
}

// HasExchangeRate 是否携带兑换率字段
func (f *Fields) HasExchangeRate() bool {
	return f != nil && f.ExchangeRate != nil
}

// SetDirectoryBook 写入目录根页的订单簿字段
func (f *Fields) SetDirectoryBook(k BookKey) {
	f.TakerPaysCurrency = &k.CurrencyIn
	f.TakerPaysIssuer = &k.IssuerIn
	f.TakerGetsCurrency = &k.CurrencyOut
	f.TakerGetsIssuer = &k.IssuerOut
}

// WithDirectoryDefaults 返回补齐订单簿字段默认值的副本
// 元数据省略取默认值的字段：原生资产一侧的货币与发行方全零，不会出现在 NewFields 中。
func (f *Fields) WithDirectoryDefaults() *Fields {
	out := *f
	if out.TakerPaysCurrency == nil {
		out.TakerPaysCurrency = &Currency{}
	}
	if out.TakerPaysIssuer == nil {
		out.TakerPaysIssuer = &AccountID{}
	}
	if out.TakerGetsCurrency == nil {
		out.TakerGetsCurrency = &Currency{}
	}
	if out.TakerGetsIssuer == nil {
		out.TakerGetsIssuer = &AccountID{}
	}
	return &out
}
