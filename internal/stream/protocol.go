// Package stream 通过 WebSocket 向客户端推送订单簿变更。
//
// 客户端请求（JSON 文本帧）:
//
//	{"id": 1, "command": "subscribe", "books": [{"taker_pays": {"currency": "XRP"}, "taker_gets": {"currency": "USD", "issuer": "r..."}}]}
//	{"id": 2, "command": "unsubscribe", "books": [...]}
//	{"id": 3, "command": "books", "issuer": "r...", "currency": "USD"}
//
// 服务端对每个请求回复一条 {"id", "status", "result" | "error"}，
// 订阅后的订单簿变更以交易流原文推送。
package stream

import (
	"encoding/json"
	"errors"

	"orderbookdb/internal/core/model"
)

const (
	cmdSubscribe   = "subscribe"
	cmdUnsubscribe = "unsubscribe"
	cmdBooks       = "books"
)

var (
	// ErrUnknownCommand 未知命令
	ErrUnknownCommand = errors.New("未知命令")
	// ErrNoBooks 订阅请求未指定订单簿
	ErrNoBooks = errors.New("未指定订单簿")
)

// Asset 订单簿一侧的资产
type Asset struct {
	Currency model.Currency  `json:"currency"`
	Issuer   model.AccountID `json:"issuer,omitzero"`
}

// BookSpec 请求中的订单簿
type BookSpec struct {
	TakerPays Asset `json:"taker_pays"`
	TakerGets Asset `json:"taker_gets"`
}

// Key 订单簿标识
func (b BookSpec) Key() model.BookKey {
	return model.BookKey{
		CurrencyIn:  b.TakerPays.Currency,
		IssuerIn:    b.TakerPays.Issuer,
		CurrencyOut: b.TakerGets.Currency,
		IssuerOut:   b.TakerGets.Issuer,
	}
}

func specOf(book *model.Book) BookInfo {
	k := book.Key
	return BookInfo{
		BookSpec: BookSpec{
			TakerPays: Asset{Currency: k.CurrencyIn, Issuer: k.IssuerIn},
			TakerGets: Asset{Currency: k.CurrencyOut, Issuer: k.IssuerOut},
		},
		Base: book.Base,
	}
}

// BookInfo books 命令返回的订单簿
type BookInfo struct {
	BookSpec
	// Base 目录基准索引
	Base model.Hash256 `json:"base"`
}

// Request 客户端请求
type Request struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Command string          `json:"command"`
	Books   []BookSpec      `json:"books,omitempty"`
	// Issuer books 命令的输入侧发行方；留空查询原生资产订单簿
	Issuer *model.AccountID `json:"issuer,omitempty"`
	// Currency books 命令的输出货币过滤
	Currency *model.Currency `json:"currency,omitempty"`
}

// Response 服务端回复
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Status string          `json:"status"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BooksResult books 命令结果
type BooksResult struct {
	LedgerSeq uint32     `json:"ledger_seq"`
	Books     []BookInfo `json:"books"`
}

// SubscribeResult subscribe / unsubscribe 命令结果
type SubscribeResult struct {
	Books int `json:"books"`
}

func success(id json.RawMessage, result any) Response {
	return Response{ID: id, Status: "success", Result: result}
}

func failure(id json.RawMessage, err error) Response {
	return Response{ID: id, Status: "error", Error: err.Error()}
}
