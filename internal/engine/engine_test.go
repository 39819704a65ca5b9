package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gogale/internal/domain"
	"github.com/betbot/gogale/internal/feed"
	"github.com/betbot/gogale/internal/risk"
	"github.com/betbot/gogale/internal/ta"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// testClock 可推进的注入时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type placedOrder struct {
	side  domain.Direction
	stake decimal.Decimal
	price float64
}

type fakeGateway struct {
	mu     sync.Mutex
	orders []placedOrder
	err    error
}

func (g *fakeGateway) OpenPosition(ctx context.Context, symbol string, side domain.Direction, stake decimal.Decimal, price float64) (string, float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", 0, g.err
	}
	g.orders = append(g.orders, placedOrder{side: side, stake: stake, price: price})
	return fmt.Sprintf("order-%d", len(g.orders)), stake.InexactFloat64() / price, nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

type fakeBalance struct {
	mu      sync.Mutex
	balance decimal.Decimal
}

func (b *fakeBalance) AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

func (b *fakeBalance) set(v decimal.Decimal) {
	b.mu.Lock()
	b.balance = v
	b.mu.Unlock()
}

// testEngine 构建一个处于运行态的引擎（不启动后台任务，直接驱动 tick 处理器）
func testEngine(t *testing.T, cfg MartingaleConfig) (*Engine, *fakeGateway, *fakeBalance, *testClock, *feed.Feed) {
	t.Helper()
	cfg.Defaults()

	gw := &fakeGateway{}
	bal := &fakeBalance{balance: dec(cfg.CapitalTotal)}
	f := feed.New(cfg.Symbol, cfg.HistoryCapacity, nil)

	e, err := New(Options{
		Config:  cfg,
		Feed:    f,
		Gateway: gw,
		Balance: bal,
		Asset:   "USDT",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clk := &testClock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
	e.nowFn = clk.Now
	e.analyzer = ta.NewEngineWithNow(clk.Now)

	// 直接进入运行态，绕过行情流启动
	e.running = true
	e.stats = domain.NewStats(dec(cfg.CapitalTotal), dec(cfg.MaxDailyLoss))
	e.stats.IsRunning = true
	e.governor = risk.NewGovernor(bal, "USDT", dec(cfg.CapitalTotal), dec(cfg.MaxDailyLoss))

	return e, gw, bal, clk, f
}

// fillBearish 注入一段持续下跌的历史：RSI=0 → 做多强信号（85）
func fillBearish(f *feed.Feed, clk *testClock, n int) {
	price := 100.0
	for i := 0; i < n; i++ {
		f.Append(price, 10, clk.Now())
		price -= 1
	}
}

func TestComputeStakeProgression(t *testing.T) {
	cfg := DefaultMartingaleConfig()

	// 5.0 → 7.5 → 11.25（倍数 1.5），周期累计投注随之滚动
	want := []float64{5.0, 7.5, 11.25}
	committed := decimal.Zero
	for attempt, w := range want {
		got := computeStake(cfg, attempt, committed)
		if !got.Equal(dec(w)) {
			t.Fatalf("attempt=%d stake got=%v want=%v", attempt, got, w)
		}
		committed = committed.Add(got)
	}
}

func TestComputeStakeClampedByRiskCap(t *testing.T) {
	cfg := DefaultMartingaleConfig()
	// 5 × 1.5^10 ≈ 288 → 截断到 100 × 35% = 35
	if got := computeStake(cfg, 10, decimal.Zero); !got.Equal(dec(35)) {
		t.Fatalf("stake got=%v want=35", got)
	}

	// 风险上限约束的是周期累计：已投注部分要从额度里扣掉
	cfg.InitialStake = 10
	cfg.GaleFactor = 2
	cfg.MaxRiskPerCycle = 25 // 上限 100 × 25% = 25
	if got := computeStake(cfg, 1, dec(10)); !got.Equal(dec(15)) {
		t.Fatalf("第 2 次注金 got=%v want=15（25 − 已投 10）", got)
	}
	// 额度用尽：返回 0，调用方放弃开仓
	if got := computeStake(cfg, 2, dec(25)); !got.IsZero() {
		t.Fatalf("额度用尽时注金 got=%v want=0", got)
	}
	if got := computeStake(cfg, 2, dec(30)); !got.IsZero() {
		t.Fatalf("超额时注金 got=%v want=0", got)
	}
}

// 周期累计投注绝不超过风险上限：加注被压到剩余额度，额度用尽则不再开仓
func TestCycleStakeNeverExceedsRiskCap(t *testing.T) {
	cfg := DefaultMartingaleConfig()
	cfg.InitialStake = 10
	cfg.GaleFactor = 2
	cfg.MaxRiskPerCycle = 25 // 上限 25
	e, gw, _, clk, f := testEngine(t, cfg)
	fillBearish(f, clk, 20)

	// 第 1 注 10，判输
	e.evaluateOnce(context.Background())
	entry := e.ActiveContract().EntryPrice
	clk.Advance(30 * time.Minute)
	f.Append(entry-1, 10, clk.Now())
	e.settleOnce()

	// 第 2 注原为 20，被压到 25 − 10 = 15
	e.evaluateOnce(context.Background())
	c := e.ActiveContract()
	if c == nil {
		t.Fatalf("剩余额度内应正常加注")
	}
	if !c.Stake.Equal(dec(15)) {
		t.Fatalf("加注注金 got=%v want=15", c.Stake)
	}
	if cy := e.ActiveCycle(); cy.TotalStake.GreaterThan(dec(25)) {
		t.Fatalf("周期累计投注 %v 超过风险上限 25", cy.TotalStake)
	}

	// 再判输：额度已用尽，第 3 次评估不开仓
	entry2 := c.EntryPrice
	clk.Advance(30 * time.Minute)
	f.Append(entry2-1, 10, clk.Now())
	e.settleOnce()

	e.evaluateOnce(context.Background())
	if e.ActiveContract() != nil {
		t.Fatalf("额度用尽后不应开仓")
	}
	if gw.count() != 2 {
		t.Fatalf("orders got=%d want=2", gw.count())
	}
}

func TestEvaluateOpensContract(t *testing.T) {
	e, gw, _, clk, f := testEngine(t, DefaultMartingaleConfig())
	fillBearish(f, clk, 20)

	e.evaluateOnce(context.Background())

	if gw.count() != 1 {
		t.Fatalf("orders got=%d want=1", gw.count())
	}
	c := e.ActiveContract()
	if c == nil {
		t.Fatalf("应存在活跃合约")
	}
	if c.Side != domain.DirectionLong {
		t.Fatalf("Side got=%v want=%v", c.Side, domain.DirectionLong)
	}
	if !c.Stake.Equal(dec(5)) {
		t.Fatalf("Stake got=%v want=5", c.Stake)
	}
	if c.Attempt != 1 {
		t.Fatalf("Attempt got=%d want=1", c.Attempt)
	}
	if got := e.GetStats().CurrentAttempt; got != 1 {
		t.Fatalf("CurrentAttempt got=%d want=1", got)
	}
}

// 同一时刻最多一个 PENDING 合约：已有合约时评估不再开仓
func TestSinglePendingContract(t *testing.T) {
	e, gw, _, clk, f := testEngine(t, DefaultMartingaleConfig())
	fillBearish(f, clk, 20)

	e.evaluateOnce(context.Background())
	clk.Advance(11 * time.Second) // 跳出信号限频窗口
	e.evaluateOnce(context.Background())

	if gw.count() != 1 {
		t.Fatalf("orders got=%d want=1（不允许并发合约）", gw.count())
	}
}

// 并发驱动评估与结算 tick：不变式仍然成立 —— 同一时刻最多一个 PENDING 合约，
// 周期内合约数与尝试次数一致
func TestSinglePendingContractUnderConcurrentTicks(t *testing.T) {
	e, _, _, clk, f := testEngine(t, DefaultMartingaleConfig())
	fillBearish(f, clk, 20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.evaluateOnce(context.Background())
			e.settleOnce()
		}()
	}
	wg.Wait()

	c := e.ActiveContract()
	if c == nil {
		t.Fatalf("应恰好登记一个合约")
	}
	cy := e.ActiveCycle()
	if cy == nil || cy.Attempts != 1 || len(cy.Contracts) != 1 {
		t.Fatalf("周期应只包含一个合约: %+v", cy)
	}
	if got := e.GetStats().CurrentAttempt; got != 1 {
		t.Fatalf("CurrentAttempt got=%d want=1", got)
	}
}

// 输后立即加注：周期内的损失不触发冷却
func TestLossEscalation(t *testing.T) {
	e, gw, _, clk, f := testEngine(t, DefaultMartingaleConfig())
	fillBearish(f, clk, 20)

	e.evaluateOnce(context.Background())
	entry := e.ActiveContract().EntryPrice

	// 到期时价格更低：做多判输
	clk.Advance(30 * time.Minute)
	f.Append(entry-1, 10, clk.Now())
	e.settleOnce()

	stats := e.GetStats()
	if stats.LossCycles != 1 {
		t.Fatalf("LossCycles got=%d want=1", stats.LossCycles)
	}
	if !stats.TotalProfit.Equal(dec(-5)) {
		t.Fatalf("TotalProfit got=%v want=-5", stats.TotalProfit)
	}
	if e.ActiveContract() != nil {
		t.Fatalf("输单结算后合约应清空")
	}
	if e.ActiveCycle() == nil {
		t.Fatalf("未用尽尝试时周期应保持活跃")
	}
	if stats.IsInCooldown {
		t.Fatalf("周期内加注不应有冷却")
	}

	// 下一次评估立即加注 7.5
	e.evaluateOnce(context.Background())
	if gw.count() != 2 {
		t.Fatalf("orders got=%d want=2", gw.count())
	}
	c := e.ActiveContract()
	if !c.Stake.Equal(dec(7.5)) {
		t.Fatalf("加注注金 got=%v want=7.5", c.Stake)
	}
	if c.Attempt != 2 {
		t.Fatalf("Attempt got=%d want=2", c.Attempt)
	}
	if cy := e.ActiveCycle(); !cy.TotalStake.Equal(dec(12.5)) {
		t.Fatalf("周期总投注 got=%v want=12.5", cy.TotalStake)
	}
}

// 翻盘获胜：第二次尝试赢单，周期净盈亏 = 7.5×0.85 − 5 = 1.375
func TestWinAfterEscalation(t *testing.T) {
	e, _, _, clk, f := testEngine(t, DefaultMartingaleConfig())
	fillBearish(f, clk, 20)

	e.evaluateOnce(context.Background())
	entry := e.ActiveContract().EntryPrice

	clk.Advance(30 * time.Minute)
	f.Append(entry-1, 10, clk.Now())
	e.settleOnce()

	e.evaluateOnce(context.Background())
	entry2 := e.ActiveContract().EntryPrice

	clk.Advance(30 * time.Minute)
	f.Append(entry2+1, 10, clk.Now())
	e.settleOnce()

	stats := e.GetStats()
	if stats.WinCycles != 1 || stats.LossCycles != 1 {
		t.Fatalf("合约计数 got=win %d/loss %d want=1/1", stats.WinCycles, stats.LossCycles)
	}
	if stats.TotalCycles != 1 {
		t.Fatalf("TotalCycles got=%d want=1", stats.TotalCycles)
	}
	// -5 + 6.375 = 1.375，decimal 精确相等
	if !stats.TotalProfit.Equal(dec(1.375)) {
		t.Fatalf("TotalProfit got=%v want=1.375", stats.TotalProfit)
	}
	if e.ActiveContract() != nil || e.ActiveCycle() != nil {
		t.Fatalf("周期结束后合约与周期应清空")
	}
	if !stats.IsInCooldown {
		t.Fatalf("获胜后应进入冷却")
	}
	if got := e.RemainingCooldown(); got != e.cfg.VictoryCooldown {
		t.Fatalf("胜利冷却 got=%v want=%v", got, e.cfg.VictoryCooldown)
	}
	if stats.CurrentStreak != 1 {
		t.Fatalf("CurrentStreak got=%d want=1", stats.CurrentStreak)
	}
}

// 用尽尝试次数：周期判负，进入失败冷却
func TestCycleLossAfterMaxAttempts(t *testing.T) {
	cfg := DefaultMartingaleConfig()
	cfg.MaxAttempts = 2
	e, _, _, clk, f := testEngine(t, cfg)
	fillBearish(f, clk, 20)

	for i := 0; i < 2; i++ {
		e.evaluateOnce(context.Background())
		entry := e.ActiveContract().EntryPrice
		clk.Advance(30 * time.Minute)
		f.Append(entry-1, 10, clk.Now())
		e.settleOnce()
	}

	stats := e.GetStats()
	if stats.TotalCycles != 1 {
		t.Fatalf("TotalCycles got=%d want=1", stats.TotalCycles)
	}
	if stats.LossCycles != 2 {
		t.Fatalf("LossCycles got=%d want=2", stats.LossCycles)
	}
	// -5 − 7.5 = -12.5
	if !stats.TotalProfit.Equal(dec(-12.5)) {
		t.Fatalf("TotalProfit got=%v want=-12.5", stats.TotalProfit)
	}
	if e.ActiveCycle() != nil {
		t.Fatalf("判负后周期应清空")
	}
	if got := e.RemainingCooldown(); got != cfg.DefeatCooldown {
		t.Fatalf("失败冷却 got=%v want=%v", got, cfg.DefeatCooldown)
	}
	if stats.CurrentStreak != -2 {
		t.Fatalf("CurrentStreak got=%d want=-2", stats.CurrentStreak)
	}

	// 冷却期内不开新仓
	e.evaluateOnce(context.Background())
	if e.ActiveContract() != nil {
		t.Fatalf("冷却期内不应开仓")
	}
}

// 日亏损熔断：紧急停止为终态，不可重启
func TestEmergencyStopOnDailyLoss(t *testing.T) {
	e, gw, bal, clk, f := testEngine(t, DefaultMartingaleConfig())
	fillBearish(f, clk, 20)

	// 余额下降 20（恰好到达上限）
	bal.set(dec(80))
	e.evaluateOnce(context.Background())

	if !e.IsEmergencyStopped() {
		t.Fatalf("应进入紧急停止")
	}
	if e.IsRunning() {
		t.Fatalf("紧急停止后不应再运行")
	}
	if gw.count() != 0 {
		t.Fatalf("熔断 tick 不应开仓")
	}

	// 终态：重启被拒绝
	if err := e.Start(context.Background()); err == nil {
		t.Fatalf("紧急停止后 Start 应报错")
	}
}

// 下单失败：本次评估放弃，状态保持不变
func TestOrderErrorLeavesStateUntouched(t *testing.T) {
	e, gw, _, clk, f := testEngine(t, DefaultMartingaleConfig())
	fillBearish(f, clk, 20)
	gw.err = fmt.Errorf("exchange rejected")

	e.evaluateOnce(context.Background())

	if e.ActiveContract() != nil || e.ActiveCycle() != nil {
		t.Fatalf("下单失败不应登记合约")
	}
	stats := e.GetStats()
	if stats.CurrentAttempt != 0 || !stats.TotalProfit.IsZero() {
		t.Fatalf("下单失败不应改动统计: attempt=%d profit=%v", stats.CurrentAttempt, stats.TotalProfit)
	}

	// 网关恢复后，下一个 tick 正常开仓
	gw.err = nil
	clk.Advance(11 * time.Second)
	e.evaluateOnce(context.Background())
	if e.ActiveContract() == nil {
		t.Fatalf("网关恢复后应能开仓")
	}
}

// 信号强度低于阈值：不开仓
func TestWeakSignalNoTrade(t *testing.T) {
	e, gw, _, clk, f := testEngine(t, DefaultMartingaleConfig())
	// 小幅震荡横盘：RSI≈50 走兜底分支（50），低波动再降 20 → 30 < 65
	for i := 0; i < 20; i++ {
		price := 100.0
		if i%2 == 1 {
			price = 100.01
		}
		f.Append(price, 10, clk.Now())
	}

	e.evaluateOnce(context.Background())
	if gw.count() != 0 {
		t.Fatalf("弱信号不应开仓: orders=%d", gw.count())
	}
	if sig := e.GetLastSignal(); sig == nil {
		t.Fatalf("即使不开仓也应记录最近信号")
	}
}

// 余额不足：跳过开仓
func TestInsufficientBalanceBlocksOpen(t *testing.T) {
	cfg := DefaultMartingaleConfig()
	e, gw, bal, clk, f := testEngine(t, cfg)
	fillBearish(f, clk, 20)

	// 起始余额快照也设为 3，避免触发日亏损熔断
	bal.set(dec(3))
	e.governor = risk.NewGovernor(bal, "USDT", dec(3), dec(cfg.MaxDailyLoss))

	e.evaluateOnce(context.Background())
	if gw.count() != 0 {
		t.Fatalf("余额不足不应开仓")
	}
}

func TestNoSettleBeforeExpiry(t *testing.T) {
	e, _, _, clk, f := testEngine(t, DefaultMartingaleConfig())
	fillBearish(f, clk, 20)

	e.evaluateOnce(context.Background())
	clk.Advance(29 * time.Minute)
	f.Append(50, 10, clk.Now())
	e.settleOnce()

	c := e.ActiveContract()
	if c == nil || c.Status != domain.ContractStatusPending {
		t.Fatalf("到期前不应结算")
	}
}

// 结算价格不可用：合约保持 PENDING，等待下个 tick 重试
func TestSettlementRetryWhenPriceUnavailable(t *testing.T) {
	cfg := DefaultMartingaleConfig()
	e, _, _, clk, _ := testEngine(t, cfg)

	// 直接注入一个已到期合约，历史为空模拟价格不可用
	c := domain.NewContract(cfg.Symbol, domain.DirectionLong, 100, dec(5), 0.05, 1,
		cfg.ContractDuration, clk.Now())
	e.mu.Lock()
	e.contract = c
	e.cycle = domain.NewCycle(cfg.Symbol, c, clk.Now())
	e.mu.Unlock()

	clk.Advance(cfg.ContractDuration)
	e.settleOnce()

	if !e.contract.IsPending() {
		t.Fatalf("价格不可用时合约应保持 PENDING")
	}

	// 价格恢复后结算成功
	e.feed.Append(101, 10, clk.Now())
	e.settleOnce()
	if e.ActiveContract() != nil {
		t.Fatalf("价格恢复后应完成结算")
	}
	if got := e.GetStats().WinCycles; got != 1 {
		t.Fatalf("WinCycles got=%d want=1", got)
	}
}

// UpdateConfig 只合并字段，不做取值范围校验（范围校验属于配置装载层）
func TestUpdateConfig(t *testing.T) {
	e, _, _, _, _ := testEngine(t, DefaultMartingaleConfig())

	stake := 2.0
	factor := 2.0
	cfg, err := e.UpdateConfig(ConfigPatch{InitialStake: &stake, GaleFactor: &factor})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if cfg.InitialStake != 2.0 || cfg.GaleFactor != 2.0 {
		t.Fatalf("配置未生效: %+v", cfg)
	}
	// 未出现在 patch 里的字段保持不变
	if cfg.MaxAttempts != 3 || cfg.Symbol != "SHIBUSDT" {
		t.Fatalf("未更新字段被改动: %+v", cfg)
	}
	// 新参数立即作用于注金计算
	if got := computeStake(cfg, 1, decimal.Zero); !got.Equal(dec(4)) {
		t.Fatalf("stake got=%v want=4", got)
	}

	// 越界取值也照单合并：运行时调参不做范围校验
	loose := 0.5
	cfg, err = e.UpdateConfig(ConfigPatch{GaleFactor: &loose})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if cfg.GaleFactor != 0.5 {
		t.Fatalf("GaleFactor got=%v want=0.5", cfg.GaleFactor)
	}
}
