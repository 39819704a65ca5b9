package engine

import (
	"fmt"
	"time"
)

// MartingaleConfig 马丁格尔策略配置
// 金额单位均为计价资产（USDT）；百分比字段取值 0-100
type MartingaleConfig struct {
	Symbol           string  `yaml:"symbol" json:"symbol"`                         // 交易对，例如 SHIBUSDT
	InitialStake     float64 `yaml:"initial_stake" json:"initial_stake"`           // 首次下注金额
	GaleFactor       float64 `yaml:"gale_factor" json:"gale_factor"`               // 亏损后的加注倍数
	MaxAttempts      int     `yaml:"max_attempts" json:"max_attempts"`             // 单周期最大连续尝试次数（1-10）
	MinProbability   int     `yaml:"min_probability" json:"min_probability"`       // 开仓所需的最小信号强度（50-95）
	VictoryCooldown  time.Duration `yaml:"victory_cooldown" json:"victory_cooldown"`   // 胜利后的冷却时间
	DefeatCooldown   time.Duration `yaml:"defeat_cooldown" json:"defeat_cooldown"`     // 周期失败后的冷却时间
	ContractDuration time.Duration `yaml:"contract_duration" json:"contract_duration"` // 合约持续时间
	MaxDailyLoss     float64 `yaml:"max_daily_loss" json:"max_daily_loss"`         // 单日最大亏损（熔断阈值）
	CapitalTotal     float64 `yaml:"capital_total" json:"capital_total"`           // 总资金
	MaxRiskPerCycle  float64 `yaml:"max_risk_per_cycle" json:"max_risk_per_cycle"` // 单笔下注占总资金的最大百分比
	EvaluateInterval time.Duration `yaml:"evaluate_interval" json:"evaluate_interval"` // 信号评估间隔
	SettleInterval   time.Duration `yaml:"settle_interval" json:"settle_interval"`     // 结算检查间隔
	HistoryCapacity  int     `yaml:"history_capacity" json:"history_capacity"`     // 价格历史容量
}

// DefaultMartingaleConfig 返回默认策略配置
func DefaultMartingaleConfig() MartingaleConfig {
	return MartingaleConfig{
		Symbol:           "SHIBUSDT",
		InitialStake:     5.0,
		GaleFactor:       1.5,
		MaxAttempts:      3,
		MinProbability:   65,
		VictoryCooldown:  2 * time.Minute,
		DefeatCooldown:   10 * time.Minute,
		ContractDuration: 30 * time.Minute,
		MaxDailyLoss:     20.0,
		CapitalTotal:     100.0,
		MaxRiskPerCycle:  35.0,
		EvaluateInterval: 5 * time.Second,
		SettleInterval:   time.Second,
		HistoryCapacity:  50,
	}
}

// Defaults 填充未设置的字段
func (c *MartingaleConfig) Defaults() {
	def := DefaultMartingaleConfig()
	if c.Symbol == "" {
		c.Symbol = def.Symbol
	}
	if c.InitialStake <= 0 {
		c.InitialStake = def.InitialStake
	}
	if c.GaleFactor <= 0 {
		c.GaleFactor = def.GaleFactor
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.MinProbability <= 0 {
		c.MinProbability = def.MinProbability
	}
	if c.VictoryCooldown <= 0 {
		c.VictoryCooldown = def.VictoryCooldown
	}
	if c.DefeatCooldown <= 0 {
		c.DefeatCooldown = def.DefeatCooldown
	}
	if c.ContractDuration <= 0 {
		c.ContractDuration = def.ContractDuration
	}
	if c.MaxDailyLoss <= 0 {
		c.MaxDailyLoss = def.MaxDailyLoss
	}
	if c.CapitalTotal <= 0 {
		c.CapitalTotal = def.CapitalTotal
	}
	if c.MaxRiskPerCycle <= 0 {
		c.MaxRiskPerCycle = def.MaxRiskPerCycle
	}
	if c.EvaluateInterval <= 0 {
		c.EvaluateInterval = def.EvaluateInterval
	}
	if c.SettleInterval <= 0 {
		c.SettleInterval = def.SettleInterval
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = def.HistoryCapacity
	}
}

// Validate 校验配置合法性
func (c *MartingaleConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("交易对不能为空")
	}
	if c.InitialStake <= 0 {
		return fmt.Errorf("初始下注金额必须大于 0，当前值: %.2f", c.InitialStake)
	}
	if c.GaleFactor <= 1.0 {
		return fmt.Errorf("加注倍数必须大于 1.0，当前值: %.2f", c.GaleFactor)
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 10 {
		return fmt.Errorf("最大尝试次数必须在 1-10 之间，当前值: %d", c.MaxAttempts)
	}
	if c.MinProbability < 50 || c.MinProbability > 95 {
		return fmt.Errorf("最小信号强度必须在 50-95 之间，当前值: %d", c.MinProbability)
	}
	if c.MaxRiskPerCycle <= 0 || c.MaxRiskPerCycle > 100 {
		return fmt.Errorf("单笔风险比例必须在 (0, 100] 之间，当前值: %.2f", c.MaxRiskPerCycle)
	}
	if c.CapitalTotal <= 0 {
		return fmt.Errorf("总资金必须大于 0，当前值: %.2f", c.CapitalTotal)
	}
	if c.MaxDailyLoss <= 0 {
		return fmt.Errorf("单日最大亏损必须大于 0，当前值: %.2f", c.MaxDailyLoss)
	}
	if c.InitialStake > c.CapitalTotal {
		return fmt.Errorf("初始下注金额 %.2f 超过总资金 %.2f", c.InitialStake, c.CapitalTotal)
	}
	if c.ContractDuration < time.Minute {
		return fmt.Errorf("合约持续时间必须 ≥ 1 分钟，当前值: %v", c.ContractDuration)
	}
	return nil
}
