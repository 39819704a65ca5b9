package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gogale/internal/domain"
	"github.com/betbot/gogale/internal/feed"
)

// OrderGateway 下单网关抽象
// 返回交易所订单 ID 与成交数量；失败时引擎放弃本次开仓，等待下个评估 tick
type OrderGateway interface {
	OpenPosition(ctx context.Context, symbol string, side domain.Direction, stake decimal.Decimal, price float64) (orderID string, quantity float64, err error)
}

// HistoryLoader 历史价格加载器：启动时用 K 线预热价格历史，
// 让技术指标在首个 tick 前就有足够样本
type HistoryLoader interface {
	LoadHistory(ctx context.Context, symbol string, limit int) ([]feed.Sample, error)
}

// Preflight 启动前置校验：连通性、凭证、余额等
// 任何一项失败都会阻止会话进入运行态
type Preflight interface {
	ValidateAll(ctx context.Context) error
}

// ConfigPatch 运行时可调参数的部分更新
// nil 字段表示保持不变
type ConfigPatch struct {
	InitialStake    *float64       `json:"initial_stake,omitempty"`
	GaleFactor      *float64       `json:"gale_factor,omitempty"`
	MaxAttempts     *int           `json:"max_attempts,omitempty"`
	MinProbability  *int           `json:"min_probability,omitempty"`
	VictoryCooldown *time.Duration `json:"victory_cooldown,omitempty"`
	DefeatCooldown  *time.Duration `json:"defeat_cooldown,omitempty"`
	MaxDailyLoss    *float64       `json:"max_daily_loss,omitempty"`
	MaxRiskPerCycle *float64       `json:"max_risk_per_cycle,omitempty"`
}
