package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrDailyLossBreached 表示日亏损已触顶，必须紧急停止交易
var ErrDailyLossBreached = fmt.Errorf("daily loss limit breached")

// BalanceSource 余额查询抽象（外部协作方）
type BalanceSource interface {
	AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Governor 风险闸门：日亏损与周期风险上限
// 每次检查都实时查询余额，绝不跨 tick 缓存，避免用过期数据做风控判断
type Governor struct {
	balance      BalanceSource
	asset        string
	startBalance decimal.Decimal
	maxDailyLoss decimal.Decimal
}

// NewGovernor 创建风险闸门
// startBalance 为会话起始余额快照，日亏损 = startBalance − 当前余额
func NewGovernor(balance BalanceSource, asset string, startBalance, maxDailyLoss decimal.Decimal) *Governor {
	return &Governor{
		balance:      balance,
		asset:        asset,
		startBalance: startBalance,
		maxDailyLoss: maxDailyLoss,
	}
}

// CheckDailyLoss 实时计算日亏损
// 达到或超过上限时返回 ErrDailyLossBreached，dailyLoss 始终返回供记录
func (g *Governor) CheckDailyLoss(ctx context.Context) (dailyLoss decimal.Decimal, err error) {
	current, err := g.balance.AvailableBalance(ctx, g.asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("查询余额失败: %w", err)
	}

	dailyLoss = g.startBalance.Sub(current)
	if dailyLoss.GreaterThanOrEqual(g.maxDailyLoss) {
		return dailyLoss, ErrDailyLossBreached
	}
	return dailyLoss, nil
}

// MaxCycleStake 按总资金与单周期风险比例计算周期投注上限
func MaxCycleStake(capitalTotal decimal.Decimal, maxRiskPerCyclePct float64) decimal.Decimal {
	pct := decimal.NewFromFloat(maxRiskPerCyclePct).Div(decimal.NewFromInt(100))
	return capitalTotal.Mul(pct)
}
