package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CycleStatus 周期状态
type CycleStatus string

const (
	CycleStatusActive CycleStatus = "ACTIVE" // 进行中（未分出胜负）
	CycleStatusWin    CycleStatus = "WIN"    // 以赢单结束
	CycleStatusLoss   CycleStatus = "LOSS"   // 用尽尝试次数后以输结束
)

// Cycle 一轮完整的加注序列：从第一个合约开始，到首次赢单或用尽尝试次数结束
// 不变式：Attempts == len(Contracts)
type Cycle struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     *time.Time      `json:"endTime,omitempty"` // 进行中为 nil
	TotalStake  decimal.Decimal `json:"totalStake"`        // 周期内所有合约投注之和
	FinalProfit decimal.Decimal `json:"finalProfit"`
	Attempts    int             `json:"attempts"`
	Status      CycleStatus     `json:"status"`
	Contracts   []*Contract     `json:"contracts"`
}

// NewCycle 以第一个合约开启新周期
func NewCycle(symbol string, first *Contract, now time.Time) *Cycle {
	return &Cycle{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		StartTime:  now,
		TotalStake: first.Stake,
		Attempts:   1,
		Status:     CycleStatusActive,
		Contracts:  []*Contract{first},
	}
}

// Append 在周期内追加一次加注合约
func (cy *Cycle) Append(c *Contract) {
	if cy == nil || c == nil {
		return
	}
	cy.Contracts = append(cy.Contracts, c)
	cy.TotalStake = cy.TotalStake.Add(c.Stake)
	cy.Attempts++
}

// Close 结束周期并记录最终盈亏
func (cy *Cycle) Close(status CycleStatus, finalProfit decimal.Decimal, now time.Time) {
	if cy == nil {
		return
	}
	cy.Status = status
	cy.FinalProfit = finalProfit
	end := now
	cy.EndTime = &end
}

// IsActive 检查周期是否仍在进行
func (cy *Cycle) IsActive() bool {
	return cy != nil && cy.Status == CycleStatusActive
}
