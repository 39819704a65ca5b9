package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stats 会话级统计，由状态机独占修改
// 会话开始时创建并快照 StartBalance，会话结束时整体归档
type Stats struct {
	TotalCycles int `json:"totalCycles"`
	WinCycles   int `json:"winCycles"`  // 每个赢单合约 +1（沿用原始口径）
	LossCycles  int `json:"lossCycles"` // 每个输单合约 +1

	TotalProfit decimal.Decimal `json:"totalProfit"`
	DailyProfit decimal.Decimal `json:"dailyProfit"`

	// CurrentStreak 当前连胜（正）/连败（负）
	CurrentStreak int `json:"currentStreak"`
	MaxWinStreak  int `json:"maxWinStreak"`
	MaxLossStreak int `json:"maxLossStreak"`

	CurrentAttempt    int             `json:"currentAttempt"` // 无活跃周期时为 0
	CurrentCycleStake decimal.Decimal `json:"currentCycleStake"`

	IsInCooldown  bool       `json:"isInCooldown"`
	CooldownUntil *time.Time `json:"cooldownUntil,omitempty"`

	IsRunning      bool            `json:"isRunning"`
	StartBalance   decimal.Decimal `json:"startBalance"`
	DailyLossLimit decimal.Decimal `json:"dailyLossLimit"`
}

// NewStats 创建清零的会话统计
func NewStats(startBalance, dailyLossLimit decimal.Decimal) *Stats {
	return &Stats{
		TotalProfit:       decimal.Zero,
		DailyProfit:       decimal.Zero,
		CurrentCycleStake: decimal.Zero,
		StartBalance:      startBalance,
		DailyLossLimit:    dailyLossLimit,
	}
}

// RecordWin 记录一次赢单：累计盈利并延长连胜
func (s *Stats) RecordWin(profit decimal.Decimal) {
	s.WinCycles++
	s.TotalProfit = s.TotalProfit.Add(profit)
	s.DailyProfit = s.DailyProfit.Add(profit)
	if s.CurrentStreak < 0 {
		s.CurrentStreak = 0
	}
	s.CurrentStreak++
	if s.CurrentStreak > s.MaxWinStreak {
		s.MaxWinStreak = s.CurrentStreak
	}
}

// RecordLoss 记录一次输单：扣除投注并延长连败
func (s *Stats) RecordLoss(loss decimal.Decimal) {
	s.LossCycles++
	s.TotalProfit = s.TotalProfit.Sub(loss)
	s.DailyProfit = s.DailyProfit.Sub(loss)
	if s.CurrentStreak > 0 {
		s.CurrentStreak = 0
	}
	s.CurrentStreak--
	if -s.CurrentStreak > s.MaxLossStreak {
		s.MaxLossStreak = -s.CurrentStreak
	}
}

// ResetCycle 清空周期内计数（周期结束后调用）
func (s *Stats) ResetCycle() {
	s.CurrentAttempt = 0
	s.CurrentCycleStake = decimal.Zero
}

// StartCooldown 开始一段冷却
func (s *Stats) StartCooldown(d time.Duration, now time.Time) {
	until := now.Add(d)
	s.IsInCooldown = true
	s.CooldownUntil = &until
}

// InCooldown 检查当前是否处于冷却中；冷却到期会顺带清掉标记
func (s *Stats) InCooldown(now time.Time) bool {
	if !s.IsInCooldown || s.CooldownUntil == nil {
		return false
	}
	if !now.Before(*s.CooldownUntil) {
		s.IsInCooldown = false
		s.CooldownUntil = nil
		return false
	}
	return true
}

// RemainingCooldown 剩余冷却时长（无冷却时为 0）
func (s *Stats) RemainingCooldown(now time.Time) time.Duration {
	if !s.IsInCooldown || s.CooldownUntil == nil {
		return 0
	}
	if d := s.CooldownUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}
