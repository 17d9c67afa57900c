// Package config 配置模块测试
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"orderbookdb/internal/core/model"
)

// **Feature: orderbookdb, Property 10: Config Validation Correctness**

// TestConfigValidation_StreamParams 测试推送服务参数验证
// 属性: send_buffer、write_timeout_ms、ping_interval_ms 必须为正数
func TestConfigValidation_StreamParams(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("发送队列长度非正数应验证失败", prop.ForAll(
		func(n int) bool {
			cfg := createValidConfig()
			cfg.Stream.SendBuffer = n
			return cfg.Validate() != nil
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("写超时非正数应验证失败", prop.ForAll(
		func(ms int) bool {
			cfg := createValidConfig()
			cfg.Stream.WriteTimeoutMs = ms
			return cfg.Validate() != nil
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("有效推送参数应通过验证", prop.ForAll(
		func(buf, writeMs, pingMs int) bool {
			cfg := createValidConfig()
			cfg.Stream.SendBuffer = buf
			cfg.Stream.WriteTimeoutMs = writeMs
			cfg.Stream.PingIntervalMs = pingMs
			return cfg.Validate() == nil
		},
		gen.IntRange(1, 100000),
		gen.IntRange(1, 60000),
		gen.IntRange(1, 600000),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_FeedParams 测试交易流参数验证
func TestConfigValidation_FeedParams(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// 属性: 最大退避小于初始退避应验证失败
	properties.Property("退避区间颠倒应验证失败", prop.ForAll(
		func(base, delta int) bool {
			cfg := createValidConfig()
			cfg.Feed.BackoffBaseMs = base
			cfg.Feed.BackoffMaxMs = base - delta
			return cfg.Validate() != nil
		},
		gen.IntRange(1, 10000),
		gen.IntRange(1, 10000),
	))

	// 属性: 0 < min_bytes <= max_bytes 应验证通过
	properties.Property("有效拉取区间应通过验证", prop.ForAll(
		func(minBytes, extra int) bool {
			cfg := createValidConfig()
			cfg.Feed.MinBytes = minBytes
			cfg.Feed.MaxBytes = minBytes + extra
			return cfg.Validate() == nil
		},
		gen.IntRange(1, 1<<20),
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_FeedRequiredWhenEnabled 启用交易流时必须配置 broker 与主题
func TestConfigValidation_FeedRequiredWhenEnabled(t *testing.T) {
	cfg := createValidConfig()
	cfg.Feed.Brokers = nil
	cfg.Feed.Topic = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("缺少 broker 与主题应验证失败")
	} else {
		if !strings.Contains(err.Error(), "feed.brokers") || !strings.Contains(err.Error(), "feed.topic") {
			t.Errorf("错误信息应列出全部问题: %v", err)
		}
	}

	cfg.Feed.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("未启用交易流时不应校验 broker: %v", err)
	}
}

// TestConfigValidation_Recorders 测试记录器配置验证
func TestConfigValidation_Recorders(t *testing.T) {
	tests := []struct {
		name    string
		rec     RecorderConfig
		wantErr bool
	}{
		{
			name: "原生资产换发行资产",
			rec: RecorderConfig{
				Name:      "xrp-usd",
				TakerPays: AssetConfig{Currency: "XRP"},
				TakerGets: AssetConfig{Currency: "USD", Issuer: "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"},
			},
		},
		{
			name: "名称为空",
			rec: RecorderConfig{
				TakerPays: AssetConfig{Currency: "XRP"},
				TakerGets: AssetConfig{Currency: "USD", Issuer: "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"},
			},
			wantErr: true,
		},
		{
			name: "发行资产缺少发行方",
			rec: RecorderConfig{
				Name:      "bad",
				TakerPays: AssetConfig{Currency: "USD"},
				TakerGets: AssetConfig{Currency: "XRP"},
			},
			wantErr: true,
		},
		{
			name: "原生资产带发行方",
			rec: RecorderConfig{
				Name:      "bad",
				TakerPays: AssetConfig{Currency: "XRP", Issuer: "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"},
				TakerGets: AssetConfig{Currency: "USD", Issuer: "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"},
			},
			wantErr: true,
		},
		{
			name: "地址校验和错误",
			rec: RecorderConfig{
				Name:      "bad",
				TakerPays: AssetConfig{Currency: "XRP"},
				TakerGets: AssetConfig{Currency: "USD", Issuer: "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTi"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createValidConfig()
			cfg.Recorders = []RecorderConfig{tt.rec}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	cfg := createValidConfig()
	cfg.Recorders = append(cfg.Recorders, cfg.Recorders[0])
	if err := cfg.Validate(); err == nil {
		t.Error("记录器名称重复应验证失败")
	}
}

// TestRecorderConfig_Key 测试记录器订单簿标识解析
func TestRecorderConfig_Key(t *testing.T) {
	rec := createValidConfig().Recorders[0]
	key, err := rec.Key()
	if err != nil {
		t.Fatalf("Key() err = %v", err)
	}

	if !key.IsNativeIn() {
		t.Error("输入侧应为原生资产")
	}
	if key.CurrencyOut != model.MustCurrency("USD") {
		t.Errorf("CurrencyOut = %s, want USD", key.CurrencyOut)
	}
	if key.IssuerOut != model.MustAccountID("rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh") {
		t.Errorf("IssuerOut = %s", key.IssuerOut)
	}
}

// TestConfigValidation_LogLevel 测试日志级别验证
func TestConfigValidation_LogLevel(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("未知日志级别应验证失败", prop.ForAll(
		func(level string) bool {
			cfg := createValidConfig()
			cfg.App.LogLevel = level
			return cfg.Validate() != nil
		},
		gen.AlphaString().SuchThat(func(s string) bool {
			switch strings.ToLower(s) {
			case "debug", "info", "warn", "error":
				return false
			}
			return true
		}),
	))

	properties.Property("日志级别大小写不敏感", prop.ForAll(
		func(level string, upper bool) bool {
			if upper {
				level = strings.ToUpper(level)
			}
			cfg := createValidConfig()
			cfg.App.LogLevel = level
			return cfg.Validate() == nil
		},
		gen.OneConstOf("debug", "info", "warn", "error"),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// createValidConfig 创建一个有效的配置用于测试
func createValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:     "test",
			LogLevel: "info",
		},
		Ledger: LedgerConfig{
			Dir: "./data/ledger",
		},
		Stream: StreamConfig{
			ListenAddr:     ":8080",
			Path:           "/ws",
			SendBuffer:     256,
			WriteTimeoutMs: 10000,
			PingIntervalMs: 30000,
		},
		Feed: FeedConfig{
			Enabled:       true,
			Brokers:       []string{"localhost:9092"},
			Topic:         "ledger.stream",
			GroupID:       "orderbookdb",
			MinBytes:      1,
			MaxBytes:      10 << 20,
			BackoffBaseMs: 500,
			BackoffMaxMs:  30000,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9100",
			Path:       "/metrics",
		},
		Recorders: []RecorderConfig{
			{
				Name:      "xrp-usd",
				TakerPays: AssetConfig{Currency: "XRP"},
				TakerGets: AssetConfig{Currency: "USD", Issuer: "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"},
			},
		},
		Output: OutputConfig{
			Dir:        "./output",
			BufferSize: 1000,
		},
	}
}

// TestLoad_ValidFile 测试从有效文件加载配置
func TestLoad_ValidFile(t *testing.T) {
	content := `
app:
  name: test-bookdb
  log_level: debug

ledger:
  dir: /var/lib/orderbookdb

stream:
  listen_addr: ":8081"
  path: /books

feed:
  enabled: true
  brokers:
    - kafka-1:9092
    - kafka-2:9092
  topic: ledger.stream

recorders:
  - name: usd-xrp
    taker_pays:
      currency: USD
      issuer: rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh
    taker_gets:
      currency: XRP
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.App.Name != "test-bookdb" {
		t.Errorf("App.Name = %s, want test-bookdb", cfg.App.Name)
	}
	if cfg.Ledger.Dir != "/var/lib/orderbookdb" {
		t.Errorf("Ledger.Dir = %s", cfg.Ledger.Dir)
	}
	if cfg.Stream.Path != "/books" {
		t.Errorf("Stream.Path = %s, want /books", cfg.Stream.Path)
	}
	if len(cfg.Feed.Brokers) != 2 {
		t.Errorf("len(Feed.Brokers) = %d, want 2", len(cfg.Feed.Brokers))
	}
	if len(cfg.Recorders) != 1 {
		t.Fatalf("len(Recorders) = %d, want 1", len(cfg.Recorders))
	}
	key, err := cfg.Recorders[0].Key()
	if err != nil {
		t.Fatalf("Recorders[0].Key() err = %v", err)
	}
	if key.IsNativeIn() || !key.CurrencyOut.IsNative() {
		t.Errorf("Recorders[0] 方向错误: %s", key)
	}
}

// TestLoad_Defaults 测试默认值填充
func TestLoad_Defaults(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(tmpFile, []byte("app:\n  name: mini\n"), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.App.LogLevel != "info" {
		t.Errorf("App.LogLevel = %s, want info", cfg.App.LogLevel)
	}
	if cfg.Stream.SendBuffer != 256 {
		t.Errorf("Stream.SendBuffer = %d, want 256", cfg.Stream.SendBuffer)
	}
	if cfg.Stream.PingInterval().Seconds() != 30 {
		t.Errorf("Stream.PingInterval() = %v, want 30s", cfg.Stream.PingInterval())
	}
	if cfg.Feed.GroupID != "mini" {
		t.Errorf("Feed.GroupID = %s, want mini", cfg.Feed.GroupID)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %s, want /metrics", cfg.Metrics.Path)
	}
}

// TestLoad_InvalidFile 测试加载无效文件
func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("加载不存在的文件应返回错误")
	}
}

// TestLoad_InvalidYAML 测试加载无效 YAML
func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "invalid.yaml")
	if err := os.WriteFile(tmpFile, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	_, err := Load(tmpFile)
	if err == nil {
		t.Error("加载无效 YAML 应返回错误")
	}
}
