// Package events 定义跨包共享的事件载荷
package events

import "time"

// PriceTickEvent 行情 tick 事件（行情流 → 价格历史）
type PriceTickEvent struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}
