package feed

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/gogale/internal/events"
	"github.com/betbot/gogale/internal/metrics"
)

var log = logrus.WithField("component", "feed")

// DefaultCapacity 价格历史默认容量
const DefaultCapacity = 50

// DefaultReconnectDelay 行情流断开后的固定重连退避
const DefaultReconnectDelay = 5 * time.Second

// Sample 一条价格样本
type Sample struct {
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// Stream 行情流抽象：连接后通过 Events 通道推送 tick，
// 传输层出错或关闭时通道被关闭，由 Feed 负责重连
type Stream interface {
	Connect(ctx context.Context) error
	Events() <-chan events.PriceTickEvent
	Close() error
}

// Feed 单品种价格流：维护容量固定的滚动历史
// 不变式：历史长度 ≤ 容量；顺序为插入（时间）顺序
// 历史由 Feed 独占写入，技术分析只读快照
type Feed struct {
	symbol   string
	capacity int

	mu      sync.RWMutex
	samples []Sample // 环形缓冲
	head    int      // 下一个写入位置
	size    int

	stream         Stream
	reconnectDelay time.Duration
}

// New 创建价格流（capacity ≤ 0 时使用默认容量）
func New(symbol string, capacity int, stream Stream) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{
		symbol:         symbol,
		capacity:       capacity,
		samples:        make([]Sample, capacity),
		stream:         stream,
		reconnectDelay: DefaultReconnectDelay,
	}
}

// SetReconnectDelay 覆盖重连退避（测试用）
func (f *Feed) SetReconnectDelay(d time.Duration) {
	if d > 0 {
		f.reconnectDelay = d
	}
}

// Symbol 返回订阅品种
func (f *Feed) Symbol() string { return f.symbol }

// Append 追加一条样本，容量满时覆盖最旧样本；O(1)，不阻塞调用方
func (f *Feed) Append(price, volume float64, ts time.Time) {
	f.mu.Lock()
	f.samples[f.head] = Sample{Price: price, Volume: volume, Timestamp: ts}
	f.head = (f.head + 1) % f.capacity
	if f.size < f.capacity {
		f.size++
	}
	f.mu.Unlock()
}

// Len 当前样本数
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.size
}

// Snapshot 按时间顺序返回全部样本的副本
func (f *Feed) Snapshot() []Sample {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Sample, f.size)
	start := (f.head - f.size + f.capacity) % f.capacity
	for i := 0; i < f.size; i++ {
		out[i] = f.samples[(start+i)%f.capacity]
	}
	return out
}

// Prices 按时间顺序返回价格序列的副本（技术分析输入）
func (f *Feed) Prices() []float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]float64, f.size)
	start := (f.head - f.size + f.capacity) % f.capacity
	for i := 0; i < f.size; i++ {
		out[i] = f.samples[(start+i)%f.capacity].Price
	}
	return out
}

// LatestPrice 最新价格；无样本时 ok 为 false
func (f *Feed) LatestPrice() (price float64, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.size == 0 {
		return 0, false
	}
	last := (f.head - 1 + f.capacity) % f.capacity
	return f.samples[last].Price, true
}

// Run 消费行情流直到 ctx 取消
// 传输层断开或出错时按固定退避重连，次数不限；ctx 取消后立即停止重连
func (f *Feed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := f.stream.Connect(ctx); err != nil {
			log.Warnf("⚠️ [%s] 行情流连接失败: %v，%v 后重连", f.symbol, err, f.reconnectDelay)
			metrics.StreamReconnects.Add(1)
			if !sleepCtx(ctx, f.reconnectDelay) {
				return
			}
			continue
		}
		log.Infof("📡 [%s] 行情流已连接", f.symbol)

		// 排空事件直到通道关闭（断开）或 ctx 取消
		closed := f.drain(ctx)
		_ = f.stream.Close()
		if !closed || ctx.Err() != nil {
			return
		}

		log.Warnf("🔌 [%s] 行情流断开，%v 后重连", f.symbol, f.reconnectDelay)
		metrics.StreamReconnects.Add(1)
		if !sleepCtx(ctx, f.reconnectDelay) {
			return
		}
	}
}

// drain 消费事件；通道关闭返回 true，ctx 取消返回 false
func (f *Feed) drain(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-f.stream.Events():
			if !ok {
				return true
			}
			f.Append(ev.Price, ev.Volume, ev.Timestamp)
			metrics.TicksConsumed.Add(1)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
