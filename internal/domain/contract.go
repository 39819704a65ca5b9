package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction 合约方向
type Direction string

const (
	DirectionLong  Direction = "BUY"  // 做多：到期价格高于入场价格则赢
	DirectionShort Direction = "SELL" // 做空：到期价格低于入场价格则赢
)

// ContractStatus 合约状态
type ContractStatus string

const (
	ContractStatusPending ContractStatus = "PENDING" // 等待到期结算
	ContractStatusWin     ContractStatus = "WIN"     // 结算为赢
	ContractStatusLoss    ContractStatus = "LOSS"    // 结算为输
)

// WinPayoutRatio 赢单收益比例（85%），与二元合约的固定赔付一致
var WinPayoutRatio = decimal.NewFromFloat(0.85)

// Contract 限时方向合约领域模型
// 不变式：整个会话内同一时刻最多只有一个 PENDING 合约
type Contract struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       Direction       `json:"side"`
	EntryPrice float64         `json:"entryPrice"`
	Stake      decimal.Decimal `json:"stake"`
	Quantity   float64         `json:"quantity"`
	CreatedAt  time.Time       `json:"createdAt"`
	ExpiresAt  time.Time       `json:"expiresAt"` // createdAt + 合约时长
	Status     ContractStatus  `json:"status"`
	Attempt    int             `json:"attempt"` // 所属周期内的第几次尝试（从 1 开始）

	// 结算后填充
	FinalPrice float64         `json:"finalPrice,omitempty"`
	Profit     decimal.Decimal `json:"profit"`
}

// NewContract 创建一个新的 PENDING 合约
func NewContract(symbol string, side Direction, entryPrice float64, stake decimal.Decimal, quantity float64, attempt int, duration time.Duration, now time.Time) *Contract {
	return &Contract{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entryPrice,
		Stake:      stake,
		Quantity:   quantity,
		CreatedAt:  now,
		ExpiresAt:  now.Add(duration),
		Status:     ContractStatusPending,
		Attempt:    attempt,
	}
}

// IsPending 检查合约是否还在等待结算
func (c *Contract) IsPending() bool {
	return c != nil && c.Status == ContractStatusPending
}

// IsExpired 检查合约是否已到期（到期时刻本身视为到期）
func (c *Contract) IsExpired(now time.Time) bool {
	return c != nil && !now.Before(c.ExpiresAt)
}

// IsWinAt 按最终价格判定输赢
// 做多：final > entry 为赢；做空：final < entry 为赢。持平一律判输。
func (c *Contract) IsWinAt(finalPrice float64) bool {
	if c == nil {
		return false
	}
	if c.Side == DirectionLong {
		return finalPrice > c.EntryPrice
	}
	return finalPrice < c.EntryPrice
}

// Settle 按最终价格结算合约，填充状态与盈亏
// 赢：profit = stake × 0.85；输：profit = -stake。
func (c *Contract) Settle(finalPrice float64) {
	if c == nil || c.Status != ContractStatusPending {
		return
	}
	c.FinalPrice = finalPrice
	if c.IsWinAt(finalPrice) {
		c.Status = ContractStatusWin
		c.Profit = c.Stake.Mul(WinPayoutRatio)
	} else {
		c.Status = ContractStatusLoss
		c.Profit = c.Stake.Neg()
	}
}
