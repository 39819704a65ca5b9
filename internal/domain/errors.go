package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类（封闭集合）
// 调用方按 Kind 分支，不要解析错误文本
type ErrorKind string

const (
	// ErrKindValidation 启动前置校验失败：会话不会进入运行态
	ErrKindValidation ErrorKind = "validation"
	// ErrKindTransientFeed 行情流瞬时故障：本地退避重连，不向调用方冒泡
	ErrKindTransientFeed ErrorKind = "transient_feed"
	// ErrKindOrderPlacement 下单被网关拒绝或失败：本次评估中止，下个评估 tick 自然重试
	ErrKindOrderPlacement ErrorKind = "order_placement"
	// ErrKindPriceUnavailable 结算时拿不到价格：本次结算跳过，下个结算 tick 重试
	ErrKindPriceUnavailable ErrorKind = "price_unavailable"
	// ErrKindRiskBreach 日亏损触顶：会话级致命，进入紧急停止
	ErrKindRiskBreach ErrorKind = "risk_breach"
)

// BotError 引擎错误类型，携带分类与上下文
type BotError struct {
	Kind ErrorKind
	Op   string // 发生错误的操作，例如 "engine.start"
	Err  error
}

func (e *BotError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *BotError) Unwrap() error { return e.Err }

// NewBotError 构造分类错误
func NewBotError(kind ErrorKind, op string, err error) *BotError {
	return &BotError{Kind: kind, Op: op, Err: err}
}

// KindOf 提取错误分类；非 BotError 返回空串
func KindOf(err error) ErrorKind {
	var be *BotError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsKind 检查错误是否属于指定分类
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
