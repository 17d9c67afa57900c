// Package model 定义订单簿索引使用的核心数据结构。
// 包含账本标识符、金额、订单簿标识以及账本字段集合。
package model

import (
	"crypto/sha512"
	"encoding/binary"
)

// bookDirSpace 订单簿目录的命名空间键
const bookDirSpace uint16 = 'B'

// BookKey 订单簿标识（四元组）
// In 侧对应挂单的 TakerPays，Out 侧对应 TakerGets。
// 四元组完全相同即为同一订单簿；可直接作为 map 的 key。
type BookKey struct {
	// CurrencyIn 输入侧货币，零值表示原生资产
	CurrencyIn Currency
	// IssuerIn 输入侧发行方
	IssuerIn AccountID
	// CurrencyOut 输出侧货币
	CurrencyOut Currency
	// IssuerOut 输出侧发行方
	IssuerOut AccountID
}

// NewBookKey 由挂单的 TakerPays / TakerGets 构造订单簿标识
func NewBookKey(pays, gets Amount) BookKey {
	return BookKey{
		CurrencyIn:  pays.Currency,
		IssuerIn:    pays.Issuer,
		CurrencyOut: gets.Currency,
		IssuerOut:   gets.Issuer,
	}
}

// IsNativeIn 输入侧是否为原生资产
func (k BookKey) IsNativeIn() bool {
	return k.CurrencyIn.IsNative()
}

// Base 计算订单簿目录基准索引
// 公式: SHA512Half(space || CurrencyIn || CurrencyOut || IssuerIn || IssuerOut)，
// 低 64 位（quality 槽位）清零。仅用作账本目录查找键，不是订单簿标识。
func (k BookKey) Base() Hash256 {
	buf := make([]byte, 0, 2+20*4)
	buf = binary.BigEndian.AppendUint16(buf, bookDirSpace)
	buf = append(buf, k.CurrencyIn[:]...)
	buf = append(buf, k.CurrencyOut[:]...)
	buf = append(buf, k.IssuerIn[:]...)
	buf = append(buf, k.IssuerOut[:]...)

	sum := sha512.Sum512(buf)
	var base Hash256
	copy(base[:24], sum[:24])
	return base
}

// String 返回 "USD/rXXX -> XRP" 形式
func (k BookKey) String() string {
	return side(k.CurrencyIn, k.IssuerIn) + " -> " + side(k.CurrencyOut, k.IssuerOut)
}

func side(c Currency, issuer AccountID) string {
	if c.IsNative() {
		return c.String()
	}
	return c.String() + "/" + issuer.String()
}

// Book 订单簿
// 构造后不可变，可在多个 goroutine 间共享只读访问。
type Book struct {
	// Key 订单簿标识
	Key BookKey
	// Base 目录基准索引
	Base Hash256
}

// NewBook 创建订单簿
func NewBook(key BookKey) *Book {
	return &Book{Key: key, Base: key.Base()}
}

// NewBookWithBase 使用已计算的基准索引创建订单簿
func NewBookWithBase(key BookKey, base Hash256) *Book {
	return &Book{Key: key, Base: base}
}
