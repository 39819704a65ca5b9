// Package exchange 将 Binance REST 客户端适配为引擎的端口：
// 余额源、下单网关与历史价格加载器
package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gogale/internal/domain"
	"github.com/betbot/gogale/internal/feed"
	"github.com/betbot/gogale/pkg/sdk/api"
)

var log = logrus.WithField("component", "exchange")

// historyInterval 历史预热使用的 K 线周期
const historyInterval = "1m"

// Adapter 交易所适配器
// dryRun 模式下不提交真实订单，余额恒为 simulatedBalance
type Adapter struct {
	client           *api.BinanceClient
	dryRun           bool
	simulatedBalance decimal.Decimal
}

// New 创建适配器；dryRun 时 simulatedCapital 作为固定可用余额
func New(client *api.BinanceClient, dryRun bool, simulatedCapital float64) *Adapter {
	return &Adapter{
		client:           client,
		dryRun:           dryRun,
		simulatedBalance: decimal.NewFromFloat(simulatedCapital),
	}
}

// AvailableBalance 查询可用余额（risk.BalanceSource）
func (a *Adapter) AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if a.dryRun {
		return a.simulatedBalance, nil
	}
	free, err := a.client.FreeBalance(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(free), nil
}

// OpenPosition 提交市价单（engine.OrderGateway）
// 返回的数量按入场价折算；失败时包装为下单分类错误
func (a *Adapter) OpenPosition(ctx context.Context, symbol string, side domain.Direction, stake decimal.Decimal, price float64) (string, float64, error) {
	quantity := 0.0
	if price > 0 {
		quantity = stake.InexactFloat64() / price
	}

	if a.dryRun {
		orderID := "dry-" + uuid.NewString()
		log.Infof("🧪 [%s] 纸交易下单 %s: 注金 %s, 数量 %.4f", symbol, side, stake.String(), quantity)
		return orderID, quantity, nil
	}

	res, err := a.client.PlaceMarketOrder(ctx, symbol, string(side), stake.InexactFloat64())
	if err != nil {
		return "", 0, domain.NewBotError(domain.ErrKindOrderPlacement, "exchange.open_position", err)
	}
	if res.Quantity > 0 {
		quantity = res.Quantity
	}
	return res.OrderID, quantity, nil
}

// LoadHistory 拉取收盘价序列预热价格历史（engine.HistoryLoader）
func (a *Adapter) LoadHistory(ctx context.Context, symbol string, limit int) ([]feed.Sample, error) {
	klines, err := a.client.Klines(ctx, symbol, historyInterval, limit)
	if err != nil {
		return nil, fmt.Errorf("拉取 K 线失败: %w", err)
	}
	samples := make([]feed.Sample, 0, len(klines))
	for _, k := range klines {
		samples = append(samples, feed.Sample{
			Price:     k.Close,
			Volume:    k.Volume,
			Timestamp: time.UnixMilli(k.CloseTime),
		})
	}
	return samples, nil
}
