package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount 账本金额
// 原生资产金额以 drops 计，Currency 与 Issuer 均为零值。
type Amount struct {
	// Currency 货币代码
	Currency Currency
	// Issuer 发行方，原生资产为 NoAccount
	Issuer AccountID
	// Value 数值
	Value decimal.Decimal
}

// NativeAmount 创建原生资产金额（drops）
func NativeAmount(drops int64) Amount {
	return Amount{Value: decimal.NewFromInt(drops)}
}

// IssuedAmount 创建发行资产金额
func IssuedAmount(currency Currency, issuer AccountID, value decimal.Decimal) Amount {
	return Amount{Currency: currency, Issuer: issuer, Value: value}
}

// IsNative 是否为原生资产金额
func (a Amount) IsNative() bool {
	return a.Currency.IsNative()
}

// String 返回可读形式，如 "50/USD/rXXX" 或 "400000000"
func (a Amount) String() string {
	if a.IsNative() {
		return a.Value.String()
	}
	return a.Value.String() + "/" + a.Currency.String() + "/" + a.Issuer.String()
}

type issuedAmountJSON struct {
	Currency Currency        `json:"currency"`
	Issuer   AccountID       `json:"issuer"`
	Value    decimal.Decimal `json:"value"`
}

// MarshalJSON 原生金额输出为 drops 字符串，发行资产输出为对象
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.IsNative() {
		return json.Marshal(a.Value.String())
	}
	return json.Marshal(issuedAmountJSON{Currency: a.Currency, Issuer: a.Issuer, Value: a.Value})
}

// UnmarshalJSON 接受 drops 字符串或 {currency, issuer, value} 对象
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("原生金额: %w", err)
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("原生金额 %q: %w", s, err)
		}
		*a = Amount{Value: v}
		return nil
	}

	var obj issuedAmountJSON
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("发行资产金额: %w", err)
	}
	*a = Amount{Currency: obj.Currency, Issuer: obj.Issuer, Value: obj.Value}
	return nil
}

// Rate 目录页的兑换率（quality）字段
type Rate uint64

func (r Rate) String() string {
	return fmt.Sprintf("%016X", uint64(r))
}

func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ExchangeRate: %w", err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 64)
	if err != nil {
		return fmt.Errorf("ExchangeRate %q: %w", s, err)
	}
	*r = Rate(v)
	return nil
}
