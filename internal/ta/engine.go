package ta

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/gogale/internal/domain"
	"github.com/betbot/gogale/internal/metrics"
)

var log = logrus.WithField("component", "ta")

const (
	rsiPeriod          = 14
	maShortPeriod      = 5
	maLongPeriod       = 10
	volatilityWindow   = 10
	priceChangePeriods = 5

	// signalCooldown 强信号限频窗口：窗口内的新强信号一律压制为弱信号，
	// 避免信号抖动驱动连续开仓
	signalCooldown = 10 * time.Second

	suppressedStrength = 30.0
	maxStrength        = 90.0
	lowVolThreshold    = 0.5
	lowVolPenalty      = 20.0
	minStrengthFloor   = 30.0
)

// Engine 技术分析引擎
// 对价格历史快照做纯函数计算；唯一的内部状态是强信号限频时间戳
type Engine struct {
	mu             sync.Mutex
	lastSignalTime time.Time

	nowFn func() time.Time
}

// NewEngine 创建技术分析引擎
func NewEngine() *Engine {
	return &Engine{nowFn: time.Now}
}

// NewEngineWithNow 使用注入时钟创建引擎（限频窗口可控，测试用）
func NewEngineWithNow(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{nowFn: now}
}

// RSI 简单平均 RSI：最近 period 个涨跌幅中，平均涨幅与平均跌幅之比
// 样本不足 period+1 时返回 50；无跌幅但有涨幅时返回 100；
// 完全无波动（涨跌幅均为 0）时返回中性值 50
func RSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50.0
	}

	gains := make([]float64, 0, len(prices)-1)
	losses := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	if len(gains) < period {
		return 50.0
	}

	var avgGain, avgLoss float64
	for _, g := range gains[len(gains)-period:] {
		avgGain += g
	}
	for _, l := range losses[len(losses)-period:] {
		avgLoss += l
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		if avgGain == 0 {
			// 价格完全不动：无超买超卖可言
			return 50.0
		}
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// MovingAverages 短均线（5）与长均线（10）
// 样本不足 10 时两者都返回 0
func MovingAverages(prices []float64) (ma5, ma10 float64) {
	if len(prices) < maLongPeriod {
		return 0, 0
	}
	for _, p := range prices[len(prices)-maShortPeriod:] {
		ma5 += p
	}
	for _, p := range prices[len(prices)-maLongPeriod:] {
		ma10 += p
	}
	return ma5 / maShortPeriod, ma10 / maLongPeriod
}

// Volatility 最近 10 个样本的振幅百分比：(max-min)/min × 100
// 样本不足时返回 0
func Volatility(prices []float64) float64 {
	if len(prices) < volatilityWindow {
		return 0
	}
	recent := prices[len(prices)-volatilityWindow:]
	max, min := recent[0], recent[0]
	for _, p := range recent[1:] {
		if p > max {
			max = p
		}
		if p < min {
			min = p
		}
	}
	if min == 0 {
		return 0
	}
	return (max - min) / min * 100
}

// PriceChange 相对 periods 个样本之前的价格变化百分比
// 历史不足时返回 0
func PriceChange(prices []float64, periods int) float64 {
	if len(prices) < periods+1 {
		return 0
	}
	current := prices[len(prices)-1]
	previous := prices[len(prices)-1-periods]
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// Indicators 对价格快照计算全套指标
func Indicators(prices []float64) domain.Indicators {
	ma5, ma10 := MovingAverages(prices)
	return domain.Indicators{
		RSI:         RSI(prices, rsiPeriod),
		MA5:         ma5,
		MA10:        ma10,
		Volatility:  Volatility(prices),
		PriceChange: PriceChange(prices, priceChangePeriods),
	}
}

// GenerateSignal 基于价格快照生成方向信号
//
// 决策表（按顺序，首个命中生效）：
//  1. RSI < 30           → 做多，强度 85
//  2. RSI > 70           → 做空，强度 85
//  3. MA5 > MA10 且 40 < RSI < 70 且涨幅 > 0.1%  → 做多，强度 75 + min(10, 波动率×2)
//  4. MA5 < MA10 且 30 < RSI < 60 且跌幅 > 0.1%  → 做空，强度 75 + min(10, 波动率×2)
//  5. 兜底               → 做多，强度 50
//
// 后处理：低波动（<0.5）减 20（下限 30）；最终强度上限 90。
// 限频：距上一个强信号不足 10 秒时，直接返回强度 30 的弱信号，不再评估决策表。
func (e *Engine) GenerateSignal(prices []float64) *domain.Signal {
	now := e.nowFn()

	e.mu.Lock()
	inCooldown := !e.lastSignalTime.IsZero() && now.Sub(e.lastSignalTime) < signalCooldown
	e.mu.Unlock()

	if inCooldown {
		metrics.SignalsSuppressed.Add(1)
		log.Debugf("🔇 强信号限频中，压制为弱信号")
		return &domain.Signal{
			Side:       domain.DirectionLong,
			Strength:   suppressedStrength,
			Timestamp:  now,
			Indicators: Indicators(prices),
		}
	}

	ind := Indicators(prices)

	side := domain.DirectionLong
	strength := 50.0

	switch {
	case ind.RSI < 30:
		side = domain.DirectionLong
		strength = 85
	case ind.RSI > 70:
		side = domain.DirectionShort
		strength = 85
	case ind.MA5 > ind.MA10 && ind.RSI > 40 && ind.RSI < 70 && ind.PriceChange > 0.1:
		side = domain.DirectionLong
		strength = 75 + minFloat(10, ind.Volatility*2)
	case ind.MA5 < ind.MA10 && ind.RSI > 30 && ind.RSI < 60 && ind.PriceChange < -0.1:
		side = domain.DirectionShort
		strength = 75 + minFloat(10, ind.Volatility*2)
	}

	// 低波动降权
	if ind.Volatility < lowVolThreshold {
		strength -= lowVolPenalty
		if strength < minStrengthFloor {
			strength = minStrengthFloor
		}
	}

	// 强度封顶
	if strength > maxStrength {
		strength = maxStrength
	}

	// 只有足够强的信号才更新限频时间戳
	if strength >= domain.StrongSignalThreshold {
		e.mu.Lock()
		e.lastSignalTime = now
		e.mu.Unlock()
	}

	return &domain.Signal{
		Side:       side,
		Strength:   strength,
		Timestamp:  now,
		Indicators: ind,
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
