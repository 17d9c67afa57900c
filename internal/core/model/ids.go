package model

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrBadIdentifier 标识符文本格式错误
var ErrBadIdentifier = errors.New("标识符格式错误")

// Hash256 256 位账本索引
// 零值表示目录遍历的终止位置。
type Hash256 [32]byte

// IsZero 是否为零值
func (h Hash256) IsZero() bool {
	return h == Hash256{}
}

// String 返回 64 位大写十六进制
func (h Hash256) String() string {
	return strings.ToUpper(hex.EncodeToString(h[:]))
}

// ParseHash256 解析 64 位十六进制字符串
func ParseHash256(s string) (Hash256, error) {
	var h Hash256
	if err := decodeHexInto(h[:], s); err != nil {
		return Hash256{}, fmt.Errorf("Hash256 %q: %w", s, err)
	}
	return h, nil
}

func (h Hash256) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash256) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("Hash256: %w", err)
	}
	v, err := ParseHash256(s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Currency 160 位货币代码
// 零值表示原生资产（XRP）。标准三字符代码存放于第 12-14 字节，其余为零。
type Currency [20]byte

// NativeCurrency 原生资产货币代码
var NativeCurrency = Currency{}

// NativeCode 原生资产的文本代码
const NativeCode = "XRP"

// IsNative 是否为原生资产
func (c Currency) IsNative() bool {
	return c == NativeCurrency
}

// ParseCurrency 解析货币代码
// 支持 "XRP"、三字符标准代码（如 USD）以及 40 位十六进制。
func ParseCurrency(s string) (Currency, error) {
	var c Currency
	switch {
	case s == "" || s == NativeCode:
		return NativeCurrency, nil
	case len(s) == 3:
		if !isStandardCode(s) {
			return Currency{}, fmt.Errorf("货币代码 %q: %w", s, ErrBadIdentifier)
		}
		copy(c[12:15], s)
		return c, nil
	case len(s) == 40:
		if err := decodeHexInto(c[:], s); err != nil {
			return Currency{}, fmt.Errorf("货币代码 %q: %w", s, err)
		}
		return c, nil
	}
	return Currency{}, fmt.Errorf("货币代码 %q: %w", s, ErrBadIdentifier)
}

// MustCurrency 解析货币代码，失败时 panic
// 仅用于常量和测试数据。
func MustCurrency(s string) Currency {
	c, err := ParseCurrency(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String 返回货币代码文本
// 标准代码返回三字符形式，其余返回十六进制。
func (c Currency) String() string {
	if c.IsNative() {
		return NativeCode
	}
	if isZeroBytes(c[:12]) && isZeroBytes(c[15:]) {
		code := string(c[12:15])
		if isStandardCode(code) {
			return code
		}
	}
	return strings.ToUpper(hex.EncodeToString(c[:]))
}

func (c Currency) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Currency) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("Currency: %w", err)
	}
	v, err := ParseCurrency(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// AccountID 160 位账户标识
// 零值是"无发行方"哨兵，用于原生资产。
type AccountID [20]byte

// NoAccount 无发行方哨兵
var NoAccount = AccountID{}

// IsZero 是否为无发行方哨兵
func (a AccountID) IsZero() bool {
	return a == NoAccount
}

// ParseAccountID 解析账户标识
// 支持 r 开头的账本地址以及 40 位十六进制。
func ParseAccountID(s string) (AccountID, error) {
	if s == "" {
		return NoAccount, nil
	}
	if len(s) == 40 {
		var a AccountID
		if err := decodeHexInto(a[:], s); err == nil {
			return a, nil
		}
	}
	return DecodeAddress(s)
}

// MustAccountID 解析账户标识，失败时 panic
func MustAccountID(s string) AccountID {
	a, err := ParseAccountID(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String 返回账本地址形式
func (a AccountID) String() string {
	return EncodeAddress(a)
}

func (a AccountID) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *AccountID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("AccountID: %w", err)
	}
	v, err := ParseAccountID(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func decodeHexInto(dst []byte, s string) error {
	if len(s) != hex.EncodedLen(len(dst)) {
		return ErrBadIdentifier
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return ErrBadIdentifier
	}
	return nil
}

func isStandardCode(s string) bool {
	if len(s) != 3 || s == NativeCode {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < 0x21 || ch > 0x7e {
			return false
		}
	}
	return true
}

func isZeroBytes(b []byte) bool {
	return len(bytes.Trim(b, "\x00")) == 0
}
