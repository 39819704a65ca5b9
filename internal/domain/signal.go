package domain

import "time"

// Indicators 一次评估时的技术指标快照
type Indicators struct {
	RSI         float64 `json:"rsi"`         // 0-100，历史不足时为 50
	MA5         float64 `json:"ma5"`         // 短均线（5 样本）
	MA10        float64 `json:"ma10"`        // 长均线（10 样本）
	Volatility  float64 `json:"volatility"`  // 最近窗口内 (max-min)/min × 100
	PriceChange float64 `json:"priceChange"` // 固定回看的价格变化百分比
}

// Signal 方向信号
// Strength 为 0-100 的置信度，最终上限 90；强信号（≥75）受限频窗口约束
type Signal struct {
	Side       Direction  `json:"side"`
	Strength   float64    `json:"strength"`
	Timestamp  time.Time  `json:"timestamp"`
	Indicators Indicators `json:"indicators"`
}

// IsStrong 检查是否为强信号
func (s *Signal) IsStrong() bool {
	return s != nil && s.Strength >= StrongSignalThreshold
}

// StrongSignalThreshold 强信号阈值
const StrongSignalThreshold = 75.0
