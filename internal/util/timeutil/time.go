// Package timeutil 提供进程内单调的纳秒时间戳。
package timeutil

import (
	"time"
)

var (
	// baseTime 基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// NowNano 获取当前时间的纳秒时间戳
// 由启动时的 Unix 时间加单调时钟偏移得到，系统时间跳变不影响先后顺序。
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}

// SinceNano 从指定纳秒时间戳到现在的时长
func SinceNano(startNs int64) time.Duration {
	return time.Duration(NowNano() - startNs)
}
