// internal/api/middleware_test.go
package api

import (
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter()

	window := time.Minute
	for i := 0; i < 3; i++ {
		if !rl.Allow("client-a", 3, window) {
			t.Fatalf("第 %d 次请求不应被限流", i+1)
		}
	}

	if rl.Allow("client-a", 3, window) {
		t.Errorf("超出限额后应被拒绝")
	}

	// 其他客户端使用独立配额
	if !rl.Allow("client-b", 3, window) {
		t.Errorf("不同客户端不应互相影响")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter()

	window := 50 * time.Millisecond
	if !rl.Allow("client", 1, window) {
		t.Fatalf("首次请求应被放行")
	}
	if rl.Allow("client", 1, window) {
		t.Fatalf("窗口内第二次请求应被拒绝")
	}

	time.Sleep(window + 20*time.Millisecond)
	if !rl.Allow("client", 1, window) {
		t.Errorf("窗口过期后配额应重置")
	}
}

func TestRateLimitHeaders(t *testing.T) {
	rl := NewRateLimiter()

	window := time.Minute
	limit, remaining, reset := rl.GetRateLimitHeaders("fresh", 10, window)
	if limit != 10 || remaining != 10 {
		t.Errorf("未访问的客户端应有完整配额: limit=%d remaining=%d", limit, remaining)
	}
	if reset <= time.Now().Unix() {
		t.Errorf("重置时间应在未来")
	}

	rl.Allow("fresh", 10, window)
	rl.Allow("fresh", 10, window)

	_, remaining, _ = rl.GetRateLimitHeaders("fresh", 10, window)
	if remaining != 8 {
		t.Errorf("剩余配额 = %d, 期望 8", remaining)
	}
}
