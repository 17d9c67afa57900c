// Package config 负责加载和验证 YAML 配置文件。
// 提供账本存储、订阅推送、交易流消费、指标与记录器的配置项。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orderbookdb/internal/core/model"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Ledger 账本状态存储配置
	Ledger LedgerConfig `yaml:"ledger"`
	// Stream 订阅推送服务配置
	Stream StreamConfig `yaml:"stream"`
	// Feed 交易流消费配置
	Feed FeedConfig `yaml:"feed"`
	// Metrics 指标服务配置
	Metrics MetricsConfig `yaml:"metrics"`
	// Recorders 启动时订阅并落盘的订单簿
	Recorders []RecorderConfig `yaml:"recorders"`
	// Output 记录器输出配置
	Output OutputConfig `yaml:"output"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// LedgerConfig 账本状态存储配置
type LedgerConfig struct {
	// Dir pebble 数据目录
	Dir string `yaml:"dir"`
}

// StreamConfig WebSocket 订阅服务配置
type StreamConfig struct {
	// ListenAddr 监听地址
	ListenAddr string `yaml:"listen_addr"`
	// Path WebSocket 路径
	Path string `yaml:"path"`
	// SendBuffer 每个连接的发送队列长度，满时丢弃
	SendBuffer int `yaml:"send_buffer"`
	// WriteTimeoutMs 单次写超时（毫秒）
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
}

// WriteTimeout 单次写超时
func (s StreamConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMs) * time.Millisecond
}

// PingInterval 心跳间隔
func (s StreamConfig) PingInterval() time.Duration {
	return time.Duration(s.PingIntervalMs) * time.Millisecond
}

// FeedConfig Kafka 交易流配置
type FeedConfig struct {
	// Enabled 是否消费交易流
	Enabled bool `yaml:"enabled"`
	// Brokers Kafka broker 地址列表
	Brokers []string `yaml:"brokers"`
	// Topic 交易流主题
	Topic string `yaml:"topic"`
	// GroupID 消费组
	GroupID string `yaml:"group_id"`
	// MinBytes 单次拉取最小字节数
	MinBytes int `yaml:"min_bytes"`
	// MaxBytes 单次拉取最大字节数
	MaxBytes int `yaml:"max_bytes"`
	// BackoffBaseMs 读取失败的初始退避（毫秒）
	BackoffBaseMs int `yaml:"backoff_base_ms"`
	// BackoffMaxMs 读取失败的最大退避（毫秒）
	BackoffMaxMs int `yaml:"backoff_max_ms"`
}

// MetricsConfig Prometheus 指标服务配置
type MetricsConfig struct {
	// Enabled 是否启动指标服务
	Enabled bool `yaml:"enabled"`
	// ListenAddr 监听地址
	ListenAddr string `yaml:"listen_addr"`
	// Path 指标路径
	Path string `yaml:"path"`
}

// AssetConfig 订单簿一侧的资产
type AssetConfig struct {
	// Currency 货币代码，XRP 或留空表示原生资产
	Currency string `yaml:"currency"`
	// Issuer 发行方地址，原生资产留空
	Issuer string `yaml:"issuer"`
}

// RecorderConfig 记录器配置
type RecorderConfig struct {
	// Name 记录器名称，同时作为输出文件名
	Name string `yaml:"name"`
	// TakerPays 订单簿输入侧
	TakerPays AssetConfig `yaml:"taker_pays"`
	// TakerGets 订单簿输出侧
	TakerGets AssetConfig `yaml:"taker_gets"`
}

// Key 解析为订单簿标识
func (r RecorderConfig) Key() (model.BookKey, error) {
	inCur, inIss, err := r.TakerPays.parse()
	if err != nil {
		return model.BookKey{}, fmt.Errorf("taker_pays: %w", err)
	}
	outCur, outIss, err := r.TakerGets.parse()
	if err != nil {
		return model.BookKey{}, fmt.Errorf("taker_gets: %w", err)
	}
	return model.BookKey{CurrencyIn: inCur, IssuerIn: inIss, CurrencyOut: outCur, IssuerOut: outIss}, nil
}

func (a AssetConfig) parse() (model.Currency, model.AccountID, error) {
	cur, err := model.ParseCurrency(a.Currency)
	if err != nil {
		return model.Currency{}, model.AccountID{}, err
	}
	iss, err := model.ParseAccountID(a.Issuer)
	if err != nil {
		return model.Currency{}, model.AccountID{}, err
	}
	if cur.IsNative() != iss.IsZero() {
		return model.Currency{}, model.AccountID{}, fmt.Errorf("货币 %q 与发行方 %q 不匹配: %w", a.Currency, a.Issuer, model.ErrBadIdentifier)
	}
	return cur, iss, nil
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "orderbookdb"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Ledger.Dir == "" {
		c.Ledger.Dir = "./data/ledger"
	}

	if c.Stream.ListenAddr == "" {
		c.Stream.ListenAddr = ":8080"
	}
	if c.Stream.Path == "" {
		c.Stream.Path = "/ws"
	}
	if c.Stream.SendBuffer == 0 {
		c.Stream.SendBuffer = 256
	}
	if c.Stream.WriteTimeoutMs == 0 {
		c.Stream.WriteTimeoutMs = 10000 // 10 秒
	}
	if c.Stream.PingIntervalMs == 0 {
		c.Stream.PingIntervalMs = 30000 // 30 秒
	}

	if c.Feed.GroupID == "" {
		c.Feed.GroupID = c.App.Name
	}
	if c.Feed.MinBytes == 0 {
		c.Feed.MinBytes = 1
	}
	if c.Feed.MaxBytes == 0 {
		c.Feed.MaxBytes = 10 << 20 // 10 MiB
	}
	if c.Feed.BackoffBaseMs == 0 {
		c.Feed.BackoffBaseMs = 500
	}
	if c.Feed.BackoffMaxMs == 0 {
		c.Feed.BackoffMaxMs = 30000 // 30 秒
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9100"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围，一次返回全部问题
func (c *Config) Validate() error {
	var errs []string

	if c.Ledger.Dir == "" {
		errs = append(errs, "ledger.dir: 账本存储目录不能为空")
	}

	if c.Stream.ListenAddr == "" {
		errs = append(errs, "stream.listen_addr: 监听地址不能为空")
	}
	if !strings.HasPrefix(c.Stream.Path, "/") {
		errs = append(errs, fmt.Sprintf("stream.path: 路径必须以 / 开头，当前值: '%s'", c.Stream.Path))
	}
	if c.Stream.SendBuffer <= 0 {
		errs = append(errs, "stream.send_buffer: 发送队列长度必须为正数")
	}
	if c.Stream.WriteTimeoutMs <= 0 {
		errs = append(errs, "stream.write_timeout_ms: 写超时必须为正数")
	}
	if c.Stream.PingIntervalMs <= 0 {
		errs = append(errs, "stream.ping_interval_ms: 心跳间隔必须为正数")
	}

	if c.Feed.Enabled {
		if len(c.Feed.Brokers) == 0 {
			errs = append(errs, "feed.brokers: 启用交易流时至少需要一个 broker")
		}
		for i, b := range c.Feed.Brokers {
			if b == "" {
				errs = append(errs, fmt.Sprintf("feed.brokers[%d]: broker 地址不能为空", i))
			}
		}
		if c.Feed.Topic == "" {
			errs = append(errs, "feed.topic: 启用交易流时主题不能为空")
		}
	}
	if c.Feed.MinBytes <= 0 || c.Feed.MaxBytes < c.Feed.MinBytes {
		errs = append(errs, fmt.Sprintf("feed.min_bytes/max_bytes: 需满足 0 < min_bytes <= max_bytes，当前值: %d/%d", c.Feed.MinBytes, c.Feed.MaxBytes))
	}
	if c.Feed.BackoffBaseMs <= 0 || c.Feed.BackoffMaxMs < c.Feed.BackoffBaseMs {
		errs = append(errs, fmt.Sprintf("feed.backoff_base_ms/backoff_max_ms: 需满足 0 < base <= max，当前值: %d/%d", c.Feed.BackoffBaseMs, c.Feed.BackoffMaxMs))
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errs = append(errs, "metrics.listen_addr: 启用指标服务时监听地址不能为空")
	}

	names := make(map[string]bool, len(c.Recorders))
	for i, r := range c.Recorders {
		if r.Name == "" {
			errs = append(errs, fmt.Sprintf("recorders[%d].name: 名称不能为空", i))
		} else if names[r.Name] {
			errs = append(errs, fmt.Sprintf("recorders[%d].name: 名称 '%s' 重复", i, r.Name))
		}
		names[r.Name] = true

		if _, err := r.Key(); err != nil {
			errs = append(errs, fmt.Sprintf("recorders[%d]: %v", i, err))
		}
	}

	if c.Output.BufferSize <= 0 {
		errs = append(errs, "output.buffer_size: 缓冲区大小必须为正数")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
