package activitylog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/gogale/internal/metrics"
)

var log = logrus.WithField("component", "activitylog")

// Level 事件级别
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelDebug   Level = "debug"
	LevelSuccess Level = "success"
)

// 事件类型常量（与原始机器人的事件口径一致）
const (
	EventBotStarted       = "BOT_STARTED"
	EventBotStopped       = "BOT_STOPPED"
	EventValidationError  = "VALIDATION_ERROR"
	EventHistoryBootstrap = "PRICE_HISTORY_INITIALIZED"
	EventContractCreated  = "CONTRACT_CREATED"
	EventContractError    = "CONTRACT_ERROR"
	EventContractDone     = "CONTRACT_COMPLETED"
	EventCycleWin         = "CYCLE_WIN"
	EventCycleLoss        = "CYCLE_LOSS"
	EventDailyStopLoss    = "DAILY_STOP_LOSS"
	EventConfigUpdated    = "CONFIG_UPDATED"
)

// Event 一条活动日志
type Event struct {
	Type      string         `json:"type"`
	Level     Level          `json:"level"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink 活动日志落地端
type Sink interface {
	Write(ctx context.Context, ev Event) error
	Close() error
}

// Logger 异步活动日志：fire-and-forget
// 写入失败只记录、绝不影响交易逻辑；队列满时丢弃并计数
type Logger struct {
	sink Sink
	ch   chan Event

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewLogger 创建异步活动日志（bufSize ≤ 0 时默认 256）
func NewLogger(sink Sink, bufSize int) *Logger {
	if bufSize <= 0 {
		bufSize = 256
	}
	l := &Logger{
		sink: sink,
		ch:   make(chan Event, bufSize),
		done: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.loop()
	return l
}

// Append 投递一条事件（非阻塞）
func (l *Logger) Append(eventType string, level Level, payload map[string]any) {
	if l == nil {
		return
	}
	ev := Event{Type: eventType, Level: level, Payload: payload, Timestamp: time.Now()}
	select {
	case l.ch <- ev:
	default:
		// 队列满：宁可丢日志也不能阻塞交易路径
		metrics.ActivityLogDrops.Add(1)
	}
}

// Close 停止后台落地并关闭 sink
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
		if l.sink != nil {
			_ = l.sink.Close()
		}
	})
}

func (l *Logger) loop() {
	defer l.wg.Done()
	for {
		select {
		case ev := <-l.ch:
			l.write(ev)
		case <-l.done:
			// 排空剩余事件后退出
			for {
				select {
				case ev := <-l.ch:
					l.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(ev Event) {
	if l.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.sink.Write(ctx, ev); err != nil {
		// 日志落地失败不能中断交易，只在进程日志里留痕
		log.Warnf("⚠️ 活动日志写入失败: %v", err)
		return
	}
	metrics.ActivityLogWrites.Add(1)
}

// marshalPayload 序列化 payload（失败时返回空对象，不冒泡错误）
func marshalPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return "{}"
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodePayload(raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

func parseTimestamp(raw string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05.000Z07:00", raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
