package websocket

import (
	"strconv"
	"time"
)

// 默认连接参数
const (
	defaultEndpoint    = "wss://stream.binance.com:9443/ws"
	defaultHandshake   = 10 * time.Second
	defaultReadBuffer  = 4096
	defaultWriteBuffer = 4096
	defaultEventBuffer = 128
	defaultPongWait    = 90 * time.Second
)

// Config WebSocket 客户端配置
type Config struct {
	Endpoint         string        // 流端点（测试时可指向本地 httptest 服务器）
	HandshakeTimeout time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
	EventBufferSize  int // 事件通道缓冲大小
	PongWait         time.Duration
	ProxyURL         string // 可选代理
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Endpoint:         defaultEndpoint,
		HandshakeTimeout: defaultHandshake,
		ReadBufferSize:   defaultReadBuffer,
		WriteBufferSize:  defaultWriteBuffer,
		EventBufferSize:  defaultEventBuffer,
		PongWait:         defaultPongWait,
	}
}

func (c *Config) normalize() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshake
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = defaultReadBuffer
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = defaultWriteBuffer
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = defaultEventBuffer
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
}

// miniTickerMessage Binance miniTicker 推送消息
// 字段均为官方缩写：c=最新价, v=成交量, E=事件时间（毫秒）
type miniTickerMessage struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	QuoteVol  string `json:"q"`
}

func (m *miniTickerMessage) closePrice() (float64, bool) {
	f, err := strconv.ParseFloat(m.Close, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (m *miniTickerMessage) baseVolume() float64 {
	f, _ := strconv.ParseFloat(m.Volume, 64)
	return f
}

func (m *miniTickerMessage) eventTime() time.Time {
	if m.EventTime <= 0 {
		return time.Now()
	}
	return time.UnixMilli(m.EventTime)
}
