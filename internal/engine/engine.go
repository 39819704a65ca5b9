// Package engine 实现马丁格尔决策引擎：
// 行情驱动信号评估、限时合约开仓与到期结算、
// 输后加注 / 赢后冷却 / 日亏损熔断的会话状态机
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gogale/internal/activitylog"
	"github.com/betbot/gogale/internal/domain"
	"github.com/betbot/gogale/internal/feed"
	"github.com/betbot/gogale/internal/risk"
	"github.com/betbot/gogale/internal/ta"
	"github.com/betbot/gogale/pkg/syncgroup"
)

var log = logrus.WithField("component", "engine")

// Engine 马丁格尔引擎
// 会话状态（统计、活跃合约、活跃周期）由单把互斥锁保护；
// 三个后台任务：行情消费、信号评估 tick、结算 tick
type Engine struct {
	cfg      MartingaleConfig
	feed     *feed.Feed
	analyzer *ta.Engine
	gateway  OrderGateway
	balance  risk.BalanceSource
	history  HistoryLoader        // 可选
	preflight Preflight           // 可选
	activity *activitylog.Logger // 可选
	asset    string               // 余额查询的计价资产

	mu               sync.Mutex
	running          bool
	emergencyStopped bool
	stats            *domain.Stats
	contract         *domain.Contract
	cycle            *domain.Cycle
	lastSignal       *domain.Signal
	governor         *risk.Governor

	cancel context.CancelFunc
	group  *syncgroup.SyncGroup

	nowFn func() time.Time
}

// Options 引擎依赖注入
type Options struct {
	Config    MartingaleConfig
	Feed      *feed.Feed
	Gateway   OrderGateway
	Balance   risk.BalanceSource
	History   HistoryLoader       // 可选：启动时预热价格历史
	Preflight Preflight           // 可选：启动前置校验
	Activity  *activitylog.Logger // 可选：活动日志
	Asset     string              // 默认 USDT
}

// New 创建引擎（不启动）
func New(opts Options) (*Engine, error) {
	opts.Config.Defaults()
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Feed == nil {
		return nil, fmt.Errorf("行情源不能为空")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("下单网关不能为空")
	}
	if opts.Balance == nil {
		return nil, fmt.Errorf("余额源不能为空")
	}
	asset := opts.Asset
	if asset == "" {
		asset = "USDT"
	}
	return &Engine{
		cfg:       opts.Config,
		feed:      opts.Feed,
		analyzer:  ta.NewEngine(),
		gateway:   opts.Gateway,
		balance:   opts.Balance,
		history:   opts.History,
		preflight: opts.Preflight,
		activity:  opts.Activity,
		asset:     asset,
		nowFn:     time.Now,
	}, nil
}

// Start 启动会话：前置校验 → 余额快照 → 历史预热 → 启动三个后台任务
// 紧急停止后的引擎不可重新启动
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("引擎已在运行")
	}
	if e.emergencyStopped {
		e.mu.Unlock()
		return fmt.Errorf("引擎已紧急停止，需要人工介入后重建会话")
	}
	e.mu.Unlock()

	if e.preflight != nil {
		if err := e.preflight.ValidateAll(ctx); err != nil {
			e.logActivity(activitylog.EventValidationError, activitylog.LevelError,
				map[string]any{"error": err.Error()})
			return domain.NewBotError(domain.ErrKindValidation, "engine.start", err)
		}
	}

	// 会话起始余额快照：日亏损以此为基准
	startBalance, err := e.balance.AvailableBalance(ctx, e.asset)
	if err != nil {
		return domain.NewBotError(domain.ErrKindValidation, "engine.start",
			fmt.Errorf("查询起始余额失败: %w", err))
	}

	e.bootstrapHistory(ctx)

	runCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.running = true
	e.cancel = cancel
	e.stats = domain.NewStats(startBalance, decimal.NewFromFloat(e.cfg.MaxDailyLoss))
	e.stats.IsRunning = true
	e.contract = nil
	e.cycle = nil
	e.governor = risk.NewGovernor(e.balance, e.asset, startBalance,
		decimal.NewFromFloat(e.cfg.MaxDailyLoss))
	e.group = syncgroup.NewSyncGroup()
	group := e.group
	e.mu.Unlock()

	group.Go(func() { e.feed.Run(runCtx) })
	group.Go(func() { e.evaluateLoop(runCtx) })
	group.Go(func() { e.settleLoop(runCtx) })

	log.Infof("🚀 [%s] 引擎已启动: 初始注 %.2f, 倍数 %.2f, 最大尝试 %d 次, 起始余额 %s",
		e.cfg.Symbol, e.cfg.InitialStake, e.cfg.GaleFactor, e.cfg.MaxAttempts, startBalance.String())
	e.logActivity(activitylog.EventBotStarted, activitylog.LevelSuccess, map[string]any{
		"symbol":        e.cfg.Symbol,
		"initial_stake": e.cfg.InitialStake,
		"start_balance": startBalance.String(),
	})
	return nil
}

// Stop 停止会话并等待后台任务退出
// 未到期的合约保持 PENDING，不会被强制结算
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	if e.stats != nil {
		e.stats.IsRunning = false
	}
	cancel := e.cancel
	group := e.group
	pending := e.contract.IsPending()
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		group.Wait()
	}

	if pending {
		log.Warnf("⚠️ [%s] 停止时仍有未结算合约，将随会话一并归档", e.cfg.Symbol)
	}
	log.Infof("🛑 [%s] 引擎已停止", e.cfg.Symbol)
	e.logActivity(activitylog.EventBotStopped, activitylog.LevelInfo, map[string]any{
		"symbol": e.cfg.Symbol,
	})
}

// bootstrapHistory 用 K 线收盘价预热价格历史（失败不阻塞启动）
func (e *Engine) bootstrapHistory(ctx context.Context) {
	if e.history == nil {
		return
	}
	samples, err := e.history.LoadHistory(ctx, e.cfg.Symbol, e.cfg.HistoryCapacity)
	if err != nil {
		log.Warnf("⚠️ [%s] 历史价格预热失败: %v（等待实时行情积累）", e.cfg.Symbol, err)
		return
	}
	for _, s := range samples {
		e.feed.Append(s.Price, s.Volume, s.Timestamp)
	}
	log.Infof("📊 [%s] 价格历史已预热: %d 条样本", e.cfg.Symbol, len(samples))
	e.logActivity(activitylog.EventHistoryBootstrap, activitylog.LevelInfo, map[string]any{
		"symbol":  e.cfg.Symbol,
		"samples": len(samples),
	})
}

// evaluateLoop 信号评估循环
func (e *Engine) evaluateLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.EvaluateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.evaluateOnce(ctx)
		}
	}
}

// settleLoop 结算检查循环
func (e *Engine) settleLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SettleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.settleOnce()
		}
	}
}

// emergencyStop 日亏损熔断：终态，只能人工重建会话
// 只取消运行上下文、不等待任务退出（调用方就在其中一个任务里）
func (e *Engine) emergencyStop(dailyLoss decimal.Decimal) {
	e.mu.Lock()
	if e.emergencyStopped {
		e.mu.Unlock()
		return
	}
	e.emergencyStopped = true
	e.running = false
	if e.stats != nil {
		e.stats.IsRunning = false
	}
	cancel := e.cancel
	pending := e.contract.IsPending()
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	log.Errorf("🚨 [%s] 日亏损 %s 已触顶，紧急停止交易", e.cfg.Symbol, dailyLoss.String())
	if pending {
		log.Warnf("⚠️ [%s] 紧急停止时仍有未结算合约", e.cfg.Symbol)
	}
	e.logActivity(activitylog.EventDailyStopLoss, activitylog.LevelError, map[string]any{
		"symbol":     e.cfg.Symbol,
		"daily_loss": dailyLoss.String(),
		"limit":      e.cfg.MaxDailyLoss,
	})
}

// logActivity 写一条活动日志（引擎可在无活动日志的情况下运行）
func (e *Engine) logActivity(eventType string, level activitylog.Level, payload map[string]any) {
	if e.activity == nil {
		return
	}
	e.activity.Append(eventType, level, payload)
}

// IsRunning 检查会话是否在运行
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// IsEmergencyStopped 检查是否处于紧急停止终态
func (e *Engine) IsEmergencyStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emergencyStopped
}

// GetStats 返回会话统计的副本；会话未启动时返回 nil
func (e *Engine) GetStats() *domain.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stats == nil {
		return nil
	}
	cp := *e.stats
	if e.stats.CooldownUntil != nil {
		t := *e.stats.CooldownUntil
		cp.CooldownUntil = &t
	}
	return &cp
}

// ActiveContract 返回当前 PENDING 合约的副本（无则 nil）
func (e *Engine) ActiveContract() *domain.Contract {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.contract.IsPending() {
		return nil
	}
	cp := *e.contract
	return &cp
}

// ActiveCycle 返回当前活跃周期的浅副本（无则 nil）
func (e *Engine) ActiveCycle() *domain.Cycle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cycle.IsActive() {
		return nil
	}
	cp := *e.cycle
	cp.Contracts = append([]*domain.Contract(nil), e.cycle.Contracts...)
	return &cp
}

// GetLastSignal 返回最近一次评估产生的信号副本（无则 nil）
func (e *Engine) GetLastSignal() *domain.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastSignal == nil {
		return nil
	}
	cp := *e.lastSignal
	return &cp
}

// RemainingCooldown 剩余冷却时长（无冷却为 0）
func (e *Engine) RemainingCooldown() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stats == nil {
		return 0
	}
	return e.stats.RemainingCooldown(e.nowFn())
}

// GetConfig 返回当前策略配置的副本
func (e *Engine) GetConfig() MartingaleConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdateConfig 应用部分配置更新（立即生效于后续评估）
// 只做字段合并，不做取值范围校验：范围校验属于配置装载与展示层，
// 运行中的调参由调用方自行负责合理性
func (e *Engine) UpdateConfig(patch ConfigPatch) (MartingaleConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.cfg
	if patch.InitialStake != nil {
		next.InitialStake = *patch.InitialStake
	}
	if patch.GaleFactor != nil {
		next.GaleFactor = *patch.GaleFactor
	}
	if patch.MaxAttempts != nil {
		next.MaxAttempts = *patch.MaxAttempts
	}
	if patch.MinProbability != nil {
		next.MinProbability = *patch.MinProbability
	}
	if patch.VictoryCooldown != nil {
		next.VictoryCooldown = *patch.VictoryCooldown
	}
	if patch.DefeatCooldown != nil {
		next.DefeatCooldown = *patch.DefeatCooldown
	}
	if patch.MaxDailyLoss != nil {
		next.MaxDailyLoss = *patch.MaxDailyLoss
	}
	if patch.MaxRiskPerCycle != nil {
		next.MaxRiskPerCycle = *patch.MaxRiskPerCycle
	}

	e.cfg = next
	if e.stats != nil {
		e.stats.DailyLossLimit = decimal.NewFromFloat(next.MaxDailyLoss)
		e.governor = risk.NewGovernor(e.balance, e.asset, e.stats.StartBalance,
			decimal.NewFromFloat(next.MaxDailyLoss))
	}
	log.Infof("⚙️ [%s] 策略配置已更新", e.cfg.Symbol)
	e.logActivity(activitylog.EventConfigUpdated, activitylog.LevelInfo, map[string]any{
		"symbol": e.cfg.Symbol,
	})
	return e.cfg, nil
}
