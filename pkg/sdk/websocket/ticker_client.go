// Package websocket 提供 Binance 行情 WebSocket 客户端
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gogale/internal/events"
)

var log = logrus.WithField("component", "ws")

// TickerClient 订阅单个交易对的 miniTicker 流
// 实现 feed.Stream：Connect 建立连接并启动读取循环，
// 连接断开或读取出错时关闭事件通道，由上层负责重连
type TickerClient struct {
	symbol string
	config *Config

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan events.PriceTickEvent
}

// NewTickerClient 创建 miniTicker 流客户端
func NewTickerClient(symbol string, config *Config) *TickerClient {
	if config == nil {
		config = DefaultConfig()
	}
	config.normalize()
	return &TickerClient{
		symbol: symbol,
		config: config,
	}
}

// Connect 建立 WebSocket 连接并启动读取循环
// 每次调用创建新的事件通道；失败时返回错误，不做内部重试
func (c *TickerClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("已连接")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
		ReadBufferSize:   c.config.ReadBufferSize,
		WriteBufferSize:  c.config.WriteBufferSize,
	}
	if c.config.ProxyURL != "" {
		proxyURL, err := url.Parse(c.config.ProxyURL)
		if err != nil {
			return fmt.Errorf("无效的代理 URL: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	endpoint := fmt.Sprintf("%s/%s@miniTicker",
		strings.TrimSuffix(c.config.Endpoint, "/"), strings.ToLower(c.symbol))

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("连接 %s 失败: %w", endpoint, err)
	}

	// Binance 服务端定期发 ping，响应 pong 并刷新读超时即可保活
	conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData),
			time.Now().Add(5*time.Second))
	})

	c.conn = conn
	c.events = make(chan events.PriceTickEvent, c.config.EventBufferSize)

	go c.readLoop(ctx, conn, c.events)
	return nil
}

// Events 返回当前连接的事件通道；连接断开时通道被关闭
func (c *TickerClient) Events() <-chan events.PriceTickEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// Close 关闭当前连接；读取循环随之退出并关闭事件通道
func (c *TickerClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}

// readLoop 持续读取消息并转换为价格事件，退出时关闭事件通道
func (c *TickerClient) readLoop(ctx context.Context, conn *websocket.Conn, out chan events.PriceTickEvent) {
	defer close(out)
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("[%s] 连接正常关闭", c.symbol)
			} else if ctx.Err() == nil {
				log.Warnf("⚠️ [%s] 读取错误: %v", c.symbol, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.config.PongWait))

		var msg miniTickerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debugf("[%s] 忽略无法解析的消息: %v", c.symbol, err)
			continue
		}
		price, ok := msg.closePrice()
		if !ok {
			continue
		}

		ev := events.PriceTickEvent{
			Symbol:    msg.Symbol,
			Price:     price,
			Volume:    msg.baseVolume(),
			Timestamp: msg.eventTime(),
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		default:
			// 缓冲满时丢弃最旧行情，保证读取循环不被下游阻塞
			select {
			case <-out:
			default:
			}
			select {
			case out <- ev:
			default:
			}
		}
	}
}
