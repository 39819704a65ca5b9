// Package shutdown 管理进程退出时的清理回调
package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/gogale/pkg/logger"
)

// Hook 一个关闭清理动作
// ctx 到期后应尽快放弃收尾工作返回
type Hook func(ctx context.Context)

// Manager 收集清理回调并在退出时并发执行
type Manager struct {
	mu    sync.Mutex
	hooks []Hook
}

// NewManager 创建关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册一个清理回调；回调之间相互独立，不保证执行顺序
func (m *Manager) OnShutdown(h Hook) {
	if h == nil {
		return
	}
	m.mu.Lock()
	m.hooks = append(m.hooks, h)
	m.mu.Unlock()
}

// Shutdown 并发执行全部回调并等待完成（阻塞调用）
// ctx 应带超时；到期后不再等待未完成的回调，直接返回
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	hooks := append([]Hook(nil), m.hooks...)
	m.mu.Unlock()

	if len(hooks) == 0 {
		return
	}
	logger.Infof("开始优雅关闭，共 %d 个清理回调", len(hooks))

	var wg sync.WaitGroup
	wg.Add(len(hooks))
	for _, h := range hooks {
		go func(hook Hook) {
			defer wg.Done()
			hook(ctx)
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("清理回调全部完成")
	case <-ctx.Done():
		logger.Warnf("优雅关闭超时: %v", ctx.Err())
	}
}
