package model

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// addressAlphabet 账本地址使用的 base58 字母表
var addressAlphabet = base58.NewAlphabet("rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz")

// addressVersion 账户地址版本字节
const addressVersion byte = 0x00

// EncodeAddress 将账户标识编码为 r 开头的账本地址
// 格式: base58(version || account || sha256d(version || account)[:4])
func EncodeAddress(a AccountID) string {
	payload := make([]byte, 0, 1+len(a)+4)
	payload = append(payload, addressVersion)
	payload = append(payload, a[:]...)
	payload = append(payload, checksum(payload)...)
	return base58.EncodeAlphabet(payload, addressAlphabet)
}

// DecodeAddress 解析 r 开头的账本地址
// 校验版本字节与校验和。
func DecodeAddress(s string) (AccountID, error) {
	if s == "" {
		return AccountID{}, fmt.Errorf("账户地址为空: %w", ErrBadIdentifier)
	}

	decoded, err := base58.DecodeAlphabet(s, addressAlphabet)
	if err != nil {
		return AccountID{}, fmt.Errorf("账户地址 %q 含非法字符: %w", s, ErrBadIdentifier)
	}
	if len(decoded) != 1+20+4 || decoded[0] != addressVersion {
		return AccountID{}, fmt.Errorf("账户地址 %q 长度或版本错误: %w", s, ErrBadIdentifier)
	}
	body, sum := decoded[:21], decoded[21:]
	if !bytes.Equal(checksum(body), sum) {
		return AccountID{}, fmt.Errorf("账户地址 %q 校验和错误: %w", s, ErrBadIdentifier)
	}

	var a AccountID
	copy(a[:], body[1:])
	return a, nil
}

func checksum(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:4]
}
