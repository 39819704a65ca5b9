package domain

import (
	"testing"
	"testing/quick"
	"time"

	"github.com/shopspring/decimal"
)

func TestStatsStreaks(t *testing.T) {
	s := NewStats(decimal.NewFromInt(100), decimal.NewFromInt(20))

	s.RecordLoss(decimal.NewFromInt(5))
	s.RecordLoss(decimal.NewFromInt(5))
	if s.CurrentStreak != -2 || s.MaxLossStreak != 2 {
		t.Fatalf("连败统计异常: streak=%d maxLoss=%d", s.CurrentStreak, s.MaxLossStreak)
	}

	// 输转赢：连败归零后从 1 起算
	s.RecordWin(decimal.NewFromInt(4))
	if s.CurrentStreak != 1 || s.MaxWinStreak != 1 {
		t.Fatalf("连胜统计异常: streak=%d maxWin=%d", s.CurrentStreak, s.MaxWinStreak)
	}

	if s.WinCycles != 1 || s.LossCycles != 2 {
		t.Fatalf("合约口径计数异常: win=%d loss=%d", s.WinCycles, s.LossCycles)
	}
}

// 属性：任意输赢序列后 TotalProfit == Σ盈利 − Σ亏损（decimal 精确相等）
func TestStatsProfitExactness(t *testing.T) {
	property := func(outcomes []bool) bool {
		s := NewStats(decimal.Zero, decimal.NewFromInt(20))
		want := decimal.Zero
		for _, win := range outcomes {
			amount := decimal.NewFromFloat(0.1)
			if win {
				s.RecordWin(amount)
				want = want.Add(amount)
			} else {
				s.RecordLoss(amount)
				want = want.Sub(amount)
			}
		}
		return s.TotalProfit.Equal(want) && s.DailyProfit.Equal(want)
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 100}); err != nil {
		t.Fatal(err)
	}
}

func TestCooldownLifecycle(t *testing.T) {
	s := NewStats(decimal.Zero, decimal.Zero)
	now := time.Now()

	if s.InCooldown(now) {
		t.Fatalf("初始不应处于冷却")
	}

	s.StartCooldown(2*time.Minute, now)
	if !s.InCooldown(now.Add(time.Minute)) {
		t.Fatalf("冷却期内应返回 true")
	}
	if got := s.RemainingCooldown(now.Add(time.Minute)); got != time.Minute {
		t.Fatalf("RemainingCooldown got=%v want=1m", got)
	}

	// 到期后自动清除
	if s.InCooldown(now.Add(2 * time.Minute)) {
		t.Fatalf("冷却到期后应返回 false")
	}
	if s.IsInCooldown {
		t.Fatalf("到期检查应清除冷却标记")
	}
}

func TestResetCycle(t *testing.T) {
	s := NewStats(decimal.Zero, decimal.Zero)
	s.CurrentAttempt = 3
	s.CurrentCycleStake = decimal.NewFromFloat(23.75)
	s.ResetCycle()
	if s.CurrentAttempt != 0 || !s.CurrentCycleStake.IsZero() {
		t.Fatalf("ResetCycle 未清空周期状态: attempt=%d stake=%v", s.CurrentAttempt, s.CurrentCycleStake)
	}
}
