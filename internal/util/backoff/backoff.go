// Package backoff 实现指数退避。
// 交易流读取失败时用于计算重试间隔，避免对 broker 形成重试风暴。
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Backoff 指数退避计算器
// 非并发安全，每个重试循环持有一个实例。
type Backoff struct {
	base time.Duration
	max  time.Duration
	// jitter 抖动比例（0-1），例如 0.2 表示 ±20%
	jitter  float64
	attempt int
}

// New 创建退避计算器
// 参数 base: 首次等待时间
// 参数 max: 等待时间上限（抖动前）
// 参数 jitter: 抖动比例
func New(base, max time.Duration, jitter float64) *Backoff {
	return &Backoff{base: base, max: max, jitter: jitter}
}

// NewDefault 基础间隔 500ms，最大间隔 30s，抖动 ±20%
func NewDefault() *Backoff {
	return New(500*time.Millisecond, 30*time.Second, 0.2)
}

// Next 下次重试的等待时间: min(base*2^attempt, max) * (1±jitter)
func (b *Backoff) Next() time.Duration {
	// 到达上限即停止翻倍
	delay := b.base
	for i := 0; i < b.attempt && delay < b.max; i++ {
		delay *= 2
	}
	if delay > b.max {
		delay = b.max
	}

	if b.jitter > 0 {
		factor := 1.0 + (rand.Float64()*2-1)*b.jitter
		delay = time.Duration(float64(delay) * factor)
	}

	b.attempt++
	return delay
}

// Wait 等待下一个退避间隔
// ctx 取消时立即返回 ctx.Err()。
func (b *Backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reset 成功后调用，下一次从 base 重新开始
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt 连续失败次数
func (b *Backoff) Attempt() int {
	return b.attempt
}
