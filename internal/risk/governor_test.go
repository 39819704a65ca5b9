package risk

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

type stubBalance struct {
	balance decimal.Decimal
	err     error
	calls   int
}

func (s *stubBalance) AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	s.calls++
	return s.balance, s.err
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestCheckDailyLossBelowLimit(t *testing.T) {
	src := &stubBalance{balance: dec(85)}
	g := NewGovernor(src, "USDT", dec(100), dec(20))

	loss, err := g.CheckDailyLoss(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loss.Equal(dec(15)) {
		t.Fatalf("dailyLoss got=%v want=15", loss)
	}
}

// 亏损恰好等于上限即触发熔断（≥ 语义）
func TestCheckDailyLossBreachAtLimit(t *testing.T) {
	src := &stubBalance{balance: dec(80)}
	g := NewGovernor(src, "USDT", dec(100), dec(20))

	loss, err := g.CheckDailyLoss(context.Background())
	if !errors.Is(err, ErrDailyLossBreached) {
		t.Fatalf("err got=%v want=ErrDailyLossBreached", err)
	}
	if !loss.Equal(dec(20)) {
		t.Fatalf("dailyLoss got=%v want=20", loss)
	}
}

func TestCheckDailyLossQueryError(t *testing.T) {
	src := &stubBalance{err: fmt.Errorf("network down")}
	g := NewGovernor(src, "USDT", dec(100), dec(20))

	if _, err := g.CheckDailyLoss(context.Background()); err == nil {
		t.Fatalf("余额查询失败应返回错误")
	}
}

// 每次检查都实时查询余额，不缓存
func TestCheckDailyLossNoCaching(t *testing.T) {
	src := &stubBalance{balance: dec(100)}
	g := NewGovernor(src, "USDT", dec(100), dec(20))

	g.CheckDailyLoss(context.Background())
	g.CheckDailyLoss(context.Background())
	if src.calls != 2 {
		t.Fatalf("calls got=%d want=2", src.calls)
	}
}

func TestMaxCycleStake(t *testing.T) {
	// 100 × 35% = 35
	got := MaxCycleStake(dec(100), 35)
	if !got.Equal(dec(35)) {
		t.Fatalf("MaxCycleStake got=%v want=35", got)
	}
}
