package engine

import (
	"github.com/shopspring/decimal"

	"github.com/betbot/gogale/internal/activitylog"
	"github.com/betbot/gogale/internal/domain"
	"github.com/betbot/gogale/internal/metrics"
)

// settleOnce 单次结算检查：合约到期后按最新价判定输赢
// 拿不到价格时本次跳过，下个结算 tick 重试（合约保持 PENDING）
func (e *Engine) settleOnce() {
	now := e.nowFn()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.contract.IsPending() || !e.contract.IsExpired(now) {
		return
	}

	finalPrice, ok := e.feed.LatestPrice()
	if !ok {
		metrics.SettlementRetries.Add(1)
		log.Warnf("🔁 [%s] 结算价格不可用，下个 tick 重试", e.cfg.Symbol)
		return
	}

	c := e.contract
	c.Settle(finalPrice)
	metrics.ContractsSettled.Add(1)

	log.Infof("⚖️ [%s] 合约结算: %s, 入场 %.8f → 到期 %.8f, 盈亏 %s",
		e.cfg.Symbol, c.Status, c.EntryPrice, finalPrice, c.Profit.String())
	e.logActivity(activitylog.EventContractDone, activitylog.LevelInfo, map[string]any{
		"symbol":      e.cfg.Symbol,
		"contract_id": c.ID,
		"status":      string(c.Status),
		"entry_price": c.EntryPrice,
		"final_price": finalPrice,
		"profit":      c.Profit.String(),
		"attempt":     c.Attempt,
	})

	if c.Status == domain.ContractStatusWin {
		e.handleWin(c)
	} else {
		e.handleLoss(c)
	}
}

// handleWin 赢单：结束周期、记录盈利、进入胜利冷却
// 调用方持锁
func (e *Engine) handleWin(c *domain.Contract) {
	now := e.nowFn()

	e.stats.RecordWin(c.Profit)

	netProfit := cycleNetProfit(e.cycle)
	e.cycle.Close(domain.CycleStatusWin, netProfit, now)
	e.stats.TotalCycles++
	e.stats.ResetCycle()
	e.stats.StartCooldown(e.cfg.VictoryCooldown, now)

	log.Infof("🏆 [%s] 周期获胜: 第 %d 次尝试翻盘, 周期净盈亏 %s, 冷却 %v",
		e.cfg.Symbol, c.Attempt, netProfit.String(), e.cfg.VictoryCooldown)
	e.logActivity(activitylog.EventCycleWin, activitylog.LevelSuccess, map[string]any{
		"symbol":     e.cfg.Symbol,
		"cycle_id":   e.cycle.ID,
		"attempts":   e.cycle.Attempts,
		"net_profit": netProfit.String(),
	})

	e.contract = nil
	e.cycle = nil
}

// handleLoss 输单：未用尽尝试则继续加注（无冷却），
// 用尽则结束周期并进入失败冷却
// 调用方持锁
func (e *Engine) handleLoss(c *domain.Contract) {
	now := e.nowFn()

	e.stats.RecordLoss(c.Stake)

	if e.cycle.Attempts < e.cfg.MaxAttempts {
		// 周期继续：下个评估 tick 立即允许加注
		e.contract = nil
		log.Warnf("📉 [%s] 第 %d/%d 次尝试失败，准备加注",
			e.cfg.Symbol, c.Attempt, e.cfg.MaxAttempts)
		return
	}

	netProfit := cycleNetProfit(e.cycle)
	e.cycle.Close(domain.CycleStatusLoss, netProfit, now)
	e.stats.TotalCycles++
	e.stats.ResetCycle()
	e.stats.StartCooldown(e.cfg.DefeatCooldown, now)

	log.Errorf("💥 [%s] 周期失败: %d 次尝试用尽, 周期净盈亏 %s, 冷却 %v",
		e.cfg.Symbol, e.cycle.Attempts, netProfit.String(), e.cfg.DefeatCooldown)
	e.logActivity(activitylog.EventCycleLoss, activitylog.LevelError, map[string]any{
		"symbol":     e.cfg.Symbol,
		"cycle_id":   e.cycle.ID,
		"attempts":   e.cycle.Attempts,
		"net_profit": netProfit.String(),
	})

	e.contract = nil
	e.cycle = nil
}

// cycleNetProfit 周期净盈亏 = 周期内所有已结算合约盈亏之和
func cycleNetProfit(cy *domain.Cycle) decimal.Decimal {
	net := decimal.Zero
	if cy == nil {
		return net
	}
	for _, c := range cy.Contracts {
		if c.Status != domain.ContractStatusPending {
			net = net.Add(c.Profit)
		}
	}
	return net
}
