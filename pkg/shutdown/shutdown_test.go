package shutdown

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestShutdownRunsAllHooks(t *testing.T) {
	m := NewManager()
	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		m.OnShutdown(func(ctx context.Context) { ran.Add(1) })
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(ctx)

	if got := ran.Load(); got != 3 {
		t.Fatalf("执行的回调数 got=%d want=3", got)
	}
}

// 卡死的回调不能拖住整个进程退出
func TestShutdownReturnsOnTimeout(t *testing.T) {
	m := NewManager()
	block := make(chan struct{})
	m.OnShutdown(func(ctx context.Context) { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	m.Shutdown(ctx)
	if time.Since(start) > time.Second {
		t.Fatalf("Shutdown 应在超时后返回")
	}
	close(block)
}

func TestShutdownNoHooks(t *testing.T) {
	m := NewManager()
	m.OnShutdown(nil)
	m.Shutdown(context.Background()) // 不应 panic 或阻塞
}
