// Package backoff 退避算法测试
package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// **Feature: orderbookdb, Property 12: Exponential Backoff Bounds**

// TestBackoff_Monotonic 无抖动时延迟单调不减且不超过上限
func TestBackoff_Monotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("延迟单调不减且不超过上限", prop.ForAll(
		func(baseMs int, maxMs int, steps int) bool {
			base := time.Duration(baseMs) * time.Millisecond
			max := time.Duration(maxMs) * time.Millisecond
			b := New(base, max, 0)

			prev := time.Duration(0)
			for i := 0; i < steps; i++ {
				delay := b.Next()
				if delay < prev || delay > max {
					return false
				}
				prev = delay
			}
			return prev == max || steps < 40
		},
		gen.IntRange(1, 2000),
		gen.IntRange(2000, 60000),
		gen.IntRange(1, 100),
	))

	properties.Property("抖动后延迟在 max*(1±jitter) 之内", prop.ForAll(
		func(baseMs int, maxMs int, jitterPercent int) bool {
			max := time.Duration(maxMs) * time.Millisecond
			jitter := float64(jitterPercent) / 100.0
			b := New(time.Duration(baseMs)*time.Millisecond, max, jitter)

			upper := float64(max) * (1 + jitter)
			for i := 0; i < 20; i++ {
				if float64(b.Next()) > upper {
					return false
				}
			}
			return true
		},
		gen.IntRange(100, 2000),
		gen.IntRange(1000, 60000),
		gen.IntRange(0, 50),
	))

	properties.Property("重置后从 base 开始", prop.ForAll(
		func(attempts int) bool {
			b := New(time.Second, 30*time.Second, 0)
			for i := 0; i < attempts; i++ {
				b.Next()
			}
			b.Reset()
			return b.Attempt() == 0 && b.Next() == time.Second
		},
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}

// TestBackoff_SpecificValues 无抖动时的具体序列
func TestBackoff_SpecificValues(t *testing.T) {
	b := New(time.Second, 30*time.Second, 0)

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // 32s 截断为 30s
		30 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("attempt %d: got %v, want %v", i, got, w)
		}
	}
}

// TestBackoff_NoOverflow 长时间失败不会溢出
func TestBackoff_NoOverflow(t *testing.T) {
	b := New(time.Second, time.Minute, 0)
	for i := 0; i < 200; i++ {
		if d := b.Next(); d <= 0 || d > time.Minute {
			t.Fatalf("attempt %d: delay = %v", i, d)
		}
	}
}

// TestBackoff_WaitCancelled 取消时立即返回
func TestBackoff_WaitCancelled(t *testing.T) {
	b := New(time.Hour, time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := b.Wait(ctx); err != context.Canceled {
		t.Fatalf("Wait err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("取消后 Wait 应立即返回")
	}
}

// TestBackoff_Wait 等待一个间隔
func TestBackoff_Wait(t *testing.T) {
	b := New(5*time.Millisecond, 5*time.Millisecond, 0)
	if err := b.Wait(context.Background()); err != nil {
		t.Fatalf("Wait err = %v", err)
	}
	if b.Attempt() != 1 {
		t.Errorf("Attempt() = %d, want 1", b.Attempt())
	}
}
