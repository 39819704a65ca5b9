// Package preflight 实现启动前置校验：
// 交易所连通性、API 凭证、交易对有效性与最低余额
package preflight

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gogale/internal/risk"
)

var log = logrus.WithField("component", "preflight")

// Pinger 连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// PriceSource 现价查询（用于校验交易对有效）
type PriceSource interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}

// Validator 前置校验器
type Validator struct {
	pinger  Pinger
	prices  PriceSource
	balance risk.BalanceSource

	symbol       string
	asset        string
	initialStake decimal.Decimal
}

// NewValidator 创建前置校验器
func NewValidator(pinger Pinger, prices PriceSource, balance risk.BalanceSource,
	symbol, asset string, initialStake float64) *Validator {
	return &Validator{
		pinger:       pinger,
		prices:       prices,
		balance:      balance,
		symbol:       symbol,
		asset:        asset,
		initialStake: decimal.NewFromFloat(initialStake),
	}
}

// Result 校验结果
type Result struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// Validate 运行全部检查并返回逐项结果（不短路）
func (v *Validator) Validate(ctx context.Context) Result {
	var errs []string

	if err := v.pinger.Ping(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("交易所连通性检查失败: %v", err))
	}

	if price, err := v.prices.TickerPrice(ctx, v.symbol); err != nil {
		errs = append(errs, fmt.Sprintf("交易对 %s 价格查询失败: %v", v.symbol, err))
	} else if price <= 0 {
		errs = append(errs, fmt.Sprintf("交易对 %s 返回无效价格: %v", v.symbol, price))
	}

	// 余额查询同时校验了签名凭证：未授权时这里会直接报错
	if available, err := v.balance.AvailableBalance(ctx, v.asset); err != nil {
		errs = append(errs, fmt.Sprintf("账户余额查询失败（检查 API 凭证）: %v", err))
	} else if available.LessThan(v.initialStake) {
		errs = append(errs, fmt.Sprintf("余额不足: 可用 %s %s < 初始注金 %s",
			available.String(), v.asset, v.initialStake.String()))
	}

	if len(errs) > 0 {
		for _, e := range errs {
			log.Errorf("❌ 前置校验: %s", e)
		}
		return Result{OK: false, Errors: errs}
	}

	log.Infof("✅ 前置校验通过: %s", v.symbol)
	return Result{OK: true}
}

// ValidateAll 运行全部检查，失败时返回聚合错误
func (v *Validator) ValidateAll(ctx context.Context) error {
	res := v.Validate(ctx)
	if res.OK {
		return nil
	}
	return fmt.Errorf("前置校验失败: %s", strings.Join(res.Errors, "; "))
}
