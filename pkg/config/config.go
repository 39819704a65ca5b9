// Package config 负责加载应用配置（YAML/JSON 文件 + 环境变量覆盖）
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/betbot/gogale/internal/engine"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`             // debug / info / warn / error
	File       string `yaml:"file" json:"file"`               // 日志文件路径（空则只输出到标准输出）
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"` // 单个日志文件大小上限
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// ServerConfig 控制面 HTTP 服务配置
type ServerConfig struct {
	Addr        string `yaml:"addr" json:"addr"`                 // 监听地址，例如 :8080
	Enabled     bool   `yaml:"enabled" json:"enabled"`           // 是否启动控制面
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"` // 指标/pprof 监听地址（空则不启动）
}

// BinanceConfig 交易所接入配置
type BinanceConfig struct {
	RESTBaseURL string `yaml:"rest_base_url" json:"rest_base_url"`
	WSEndpoint  string `yaml:"ws_endpoint" json:"ws_endpoint"`
	QuoteAsset  string `yaml:"quote_asset" json:"quote_asset"` // 余额查询使用的计价资产
}

// Config 应用配置
type Config struct {
	Log        LogConfig
	Server     ServerConfig
	Binance    BinanceConfig
	DataDir    string // 持久化根目录（归档、活动日志、密钥库）
	DryRun     bool   // 纸交易模式：不提交真实订单
	Martingale engine.MartingaleConfig
}

// configFile 配置文件结构（两层结构：文件格式 → 运行时配置）
// 时长字段为 Go duration 字符串，例如 "2m"、"30s"
type configFile struct {
	Log     LogConfig     `yaml:"log" json:"log"`
	Binance BinanceConfig `yaml:"binance" json:"binance"`
	DataDir string        `yaml:"data_dir" json:"data_dir"`
	DryRun  bool          `yaml:"dry_run" json:"dry_run"`

	// Enabled 用指针区分「未写」与「显式 false」
	Server struct {
		Addr        string `yaml:"addr" json:"addr"`
		Enabled     *bool  `yaml:"enabled" json:"enabled"`
		MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	} `yaml:"server" json:"server"`

	Martingale struct {
		Symbol           string  `yaml:"symbol" json:"symbol"`
		InitialStake     float64 `yaml:"initial_stake" json:"initial_stake"`
		GaleFactor       float64 `yaml:"gale_factor" json:"gale_factor"`
		MaxAttempts      int     `yaml:"max_attempts" json:"max_attempts"`
		MinProbability   int     `yaml:"min_probability" json:"min_probability"`
		VictoryCooldown  string  `yaml:"victory_cooldown" json:"victory_cooldown"`
		DefeatCooldown   string  `yaml:"defeat_cooldown" json:"defeat_cooldown"`
		ContractDuration string  `yaml:"contract_duration" json:"contract_duration"`
		MaxDailyLoss     float64 `yaml:"max_daily_loss" json:"max_daily_loss"`
		CapitalTotal     float64 `yaml:"capital_total" json:"capital_total"`
		MaxRiskPerCycle  float64 `yaml:"max_risk_per_cycle" json:"max_risk_per_cycle"`
		EvaluateInterval string  `yaml:"evaluate_interval" json:"evaluate_interval"`
		SettleInterval   string  `yaml:"settle_interval" json:"settle_interval"`
		HistoryCapacity  int     `yaml:"history_capacity" json:"history_capacity"`
	} `yaml:"martingale" json:"martingale"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			Enabled:     true,
			MetricsAddr: "127.0.0.1:6061",
		},
		Binance: BinanceConfig{
			RESTBaseURL: "https://api.binance.com",
			WSEndpoint:  "wss://stream.binance.com:9443/ws",
			QuoteAsset:  "USDT",
		},
		DataDir:    "data",
		Martingale: engine.DefaultMartingaleConfig(),
	}
}

// Load 从文件加载配置；path 为空时仅使用默认值 + 环境变量覆盖
// 支持 .yaml/.yml/.json，按扩展名选择解析器
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败 %s: %w", path, err)
		}
		var file configFile
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			if err := json.Unmarshal(b, &file); err != nil {
				return nil, fmt.Errorf("解析 JSON 配置失败 %s: %w", path, err)
			}
		default:
			if err := yaml.Unmarshal(b, &file); err != nil {
				return nil, fmt.Errorf("解析 YAML 配置失败 %s: %w", path, err)
			}
		}
		if err := applyFile(cfg, &file); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	cfg.Martingale.Defaults()
	if err := cfg.Martingale.Validate(); err != nil {
		return nil, fmt.Errorf("策略配置无效: %w", err)
	}
	return cfg, nil
}

// applyFile 把文件字段合并进配置（零值字段保持默认）
func applyFile(cfg *Config, file *configFile) error {
	if file.Log.Level != "" {
		cfg.Log.Level = file.Log.Level
	}
	if file.Log.File != "" {
		cfg.Log.File = file.Log.File
	}
	if file.Log.MaxSizeMB > 0 {
		cfg.Log.MaxSizeMB = file.Log.MaxSizeMB
	}
	if file.Log.MaxBackups > 0 {
		cfg.Log.MaxBackups = file.Log.MaxBackups
	}
	if file.Log.MaxAgeDays > 0 {
		cfg.Log.MaxAgeDays = file.Log.MaxAgeDays
	}

	if file.Server.Addr != "" {
		cfg.Server.Addr = file.Server.Addr
	}
	if file.Server.Enabled != nil {
		cfg.Server.Enabled = *file.Server.Enabled
	}
	if file.Server.MetricsAddr != "" {
		cfg.Server.MetricsAddr = file.Server.MetricsAddr
	}

	if file.Binance.RESTBaseURL != "" {
		cfg.Binance.RESTBaseURL = file.Binance.RESTBaseURL
	}
	if file.Binance.WSEndpoint != "" {
		cfg.Binance.WSEndpoint = file.Binance.WSEndpoint
	}
	if file.Binance.QuoteAsset != "" {
		cfg.Binance.QuoteAsset = file.Binance.QuoteAsset
	}

	if file.DataDir != "" {
		cfg.DataDir = file.DataDir
	}
	if file.DryRun {
		cfg.DryRun = true
	}

	m := &cfg.Martingale
	fm := &file.Martingale
	if fm.Symbol != "" {
		m.Symbol = fm.Symbol
	}
	if fm.InitialStake > 0 {
		m.InitialStake = fm.InitialStake
	}
	if fm.GaleFactor != 0 {
		m.GaleFactor = fm.GaleFactor
	}
	if fm.MaxAttempts != 0 {
		m.MaxAttempts = fm.MaxAttempts
	}
	if fm.MinProbability != 0 {
		m.MinProbability = fm.MinProbability
	}
	if fm.MaxDailyLoss > 0 {
		m.MaxDailyLoss = fm.MaxDailyLoss
	}
	if fm.CapitalTotal > 0 {
		m.CapitalTotal = fm.CapitalTotal
	}
	if fm.MaxRiskPerCycle != 0 {
		m.MaxRiskPerCycle = fm.MaxRiskPerCycle
	}
	if fm.HistoryCapacity > 0 {
		m.HistoryCapacity = fm.HistoryCapacity
	}

	var err error
	if m.VictoryCooldown, err = parseDuration(fm.VictoryCooldown, m.VictoryCooldown); err != nil {
		return fmt.Errorf("victory_cooldown: %w", err)
	}
	if m.DefeatCooldown, err = parseDuration(fm.DefeatCooldown, m.DefeatCooldown); err != nil {
		return fmt.Errorf("defeat_cooldown: %w", err)
	}
	if m.ContractDuration, err = parseDuration(fm.ContractDuration, m.ContractDuration); err != nil {
		return fmt.Errorf("contract_duration: %w", err)
	}
	if m.EvaluateInterval, err = parseDuration(fm.EvaluateInterval, m.EvaluateInterval); err != nil {
		return fmt.Errorf("evaluate_interval: %w", err)
	}
	if m.SettleInterval, err = parseDuration(fm.SettleInterval, m.SettleInterval); err != nil {
		return fmt.Errorf("settle_interval: %w", err)
	}
	return nil
}

// parseDuration 解析 duration 字符串；空串返回当前值
func parseDuration(s string, current time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return current, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("无效的时长 %q: %w", s, err)
	}
	return d, nil
}

// applyEnvOverrides 环境变量覆盖（优先级高于配置文件）
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SYMBOL"); v != "" {
		cfg.Martingale.Symbol = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.DryRun = v == "1" || strings.EqualFold(v, "true")
	}
}

// SecretStorePath 密钥库目录
func (c *Config) SecretStorePath() string {
	return filepath.Join(c.DataDir, "secrets")
}

// ActivityLogPath 活动日志 SQLite 文件路径
func (c *Config) ActivityLogPath() string {
	return filepath.Join(c.DataDir, "activity.db")
}

// ArchiveDir 会话统计归档目录
func (c *Config) ArchiveDir() string {
	return filepath.Join(c.DataDir, "archive")
}
