package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gogale/internal/activitylog"
	"github.com/betbot/gogale/internal/domain"
	"github.com/betbot/gogale/internal/metrics"
	"github.com/betbot/gogale/internal/risk"
)

// evaluateOnce 单次评估：风控 → 冷却/合约守卫 → 信号 → 注金 → 余额 → 开仓
// 任何一步不满足都静默放弃，等待下个评估 tick
func (e *Engine) evaluateOnce(ctx context.Context) {
	// 风控先行：每个评估 tick 都实时查询余额
	e.mu.Lock()
	governor := e.governor
	e.mu.Unlock()
	if governor == nil {
		return
	}
	dailyLoss, err := governor.CheckDailyLoss(ctx)
	if err != nil {
		if errors.Is(err, risk.ErrDailyLossBreached) {
			metrics.EmergencyStops.Add(1)
			e.emergencyStop(dailyLoss)
			return
		}
		log.Warnf("⚠️ [%s] 风控余额查询失败: %v", e.cfg.Symbol, err)
		return
	}

	now := e.nowFn()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	if e.stats.InCooldown(now) {
		remaining := e.stats.RemainingCooldown(now)
		e.mu.Unlock()
		log.Debugf("❄️ [%s] 冷却中，剩余 %v", e.cfg.Symbol, remaining.Round(time.Second))
		return
	}
	if e.contract.IsPending() {
		e.mu.Unlock()
		return
	}
	attempt := 0
	cycleStake := decimal.Zero
	if e.cycle.IsActive() {
		attempt = e.cycle.Attempts
		cycleStake = e.cycle.TotalStake
	}
	cfg := e.cfg
	e.mu.Unlock()

	prices := e.feed.Prices()
	if len(prices) == 0 {
		return
	}

	sig := e.analyzer.GenerateSignal(prices)

	e.mu.Lock()
	e.lastSignal = sig
	e.mu.Unlock()

	if int(sig.Strength) < cfg.MinProbability {
		log.Debugf("📊 [%s] 信号强度 %.0f 低于阈值 %d，跳过", cfg.Symbol, sig.Strength, cfg.MinProbability)
		return
	}

	stake := computeStake(cfg, attempt, cycleStake)
	if !stake.IsPositive() {
		log.Warnf("⚠️ [%s] 周期已投注 %s，第 %d 次加注会超出风险上限，放弃开仓",
			cfg.Symbol, cycleStake.String(), attempt+1)
		return
	}

	available, err := e.balance.AvailableBalance(ctx, e.asset)
	if err != nil {
		log.Warnf("⚠️ [%s] 开仓前余额查询失败: %v", cfg.Symbol, err)
		return
	}
	if available.LessThan(stake) {
		log.Warnf("⚠️ [%s] 余额不足: 可用 %s < 所需 %s", cfg.Symbol, available.String(), stake.String())
		return
	}

	entryPrice, ok := e.feed.LatestPrice()
	if !ok {
		return
	}

	orderID, quantity, err := e.gateway.OpenPosition(ctx, cfg.Symbol, sig.Side, stake, entryPrice)
	if err != nil {
		metrics.OrderErrors.Add(1)
		log.Errorf("❌ [%s] 下单失败: %v", cfg.Symbol, err)
		e.logActivity(activitylog.EventContractError, activitylog.LevelError, map[string]any{
			"symbol": cfg.Symbol,
			"side":   string(sig.Side),
			"stake":  stake.String(),
			"error":  err.Error(),
		})
		return
	}

	e.openContract(cfg, sig, stake, entryPrice, quantity, orderID, attempt)
}

// openContract 订单确认后登记合约与周期状态
func (e *Engine) openContract(cfg MartingaleConfig, sig *domain.Signal, stake decimal.Decimal, entryPrice, quantity float64, orderID string, attempt int) {
	now := e.nowFn()

	e.mu.Lock()
	defer e.mu.Unlock()

	// 下单期间状态可能已变化（停止 / 熔断 / 并发开仓），此时放弃登记
	if !e.running || e.contract.IsPending() {
		log.Warnf("⚠️ [%s] 订单 %s 确认时会话状态已变化，不登记合约", cfg.Symbol, orderID)
		return
	}

	c := domain.NewContract(cfg.Symbol, sig.Side, entryPrice, stake, quantity, attempt+1,
		cfg.ContractDuration, now)

	if e.cycle.IsActive() {
		e.cycle.Append(c)
	} else {
		e.cycle = domain.NewCycle(cfg.Symbol, c, now)
	}
	e.contract = c
	e.stats.CurrentAttempt = c.Attempt
	e.stats.CurrentCycleStake = e.cycle.TotalStake

	metrics.ContractsOpened.Add(1)
	log.Infof("📈 [%s] 开仓 %s: 注金 %s, 入场价 %.8f, 第 %d/%d 次尝试, 到期 %s",
		cfg.Symbol, c.Side, stake.String(), entryPrice, c.Attempt, cfg.MaxAttempts,
		c.ExpiresAt.Format("15:04:05"))
	e.logActivity(activitylog.EventContractCreated, activitylog.LevelInfo, map[string]any{
		"symbol":      cfg.Symbol,
		"contract_id": c.ID,
		"side":        string(c.Side),
		"stake":       stake.String(),
		"entry_price": entryPrice,
		"attempt":     c.Attempt,
		"order_id":    orderID,
		"strength":    sig.Strength,
	})
}

// computeStake 计算第 attempt 次（从 0 计）尝试的注金：
// initialStake × galeFactor^attempt，并保证周期累计投注不超过风险上限
// （cycleStake + 注金 ≤ 总资金 × maxRiskPerCycle%）
// 上限只剩余零或负额度时返回 0，由调用方放弃开仓
func computeStake(cfg MartingaleConfig, attempt int, cycleStake decimal.Decimal) decimal.Decimal {
	stake := decimal.NewFromFloat(cfg.InitialStake)
	if attempt > 0 {
		factor := decimal.NewFromFloat(cfg.GaleFactor).Pow(decimal.NewFromInt(int64(attempt)))
		stake = stake.Mul(factor)
	}
	maxCycle := risk.MaxCycleStake(decimal.NewFromFloat(cfg.CapitalTotal), cfg.MaxRiskPerCycle)
	if cycleStake.Add(stake).GreaterThan(maxCycle) {
		stake = maxCycle.Sub(cycleStake)
		if stake.IsNegative() {
			return decimal.Zero
		}
	}
	return stake
}
