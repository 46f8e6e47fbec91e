// internal/services/lock_manager_test.go
package services

import (
	"sync"
	"testing"
)

// TestLockManagerSerializes 同一会话的操作串行执行
func TestLockManagerSerializes(t *testing.T) {
	lm := NewLockManager()
	defer lm.Stop()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.ExecuteWithSessionLock("s1", func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("计数应为 50，实际: %d", counter)
	}
}

// TestTryExecuteRejectsBusy 锁被占用时立即返回而不阻塞
func TestTryExecuteRejectsBusy(t *testing.T) {
	lm := NewLockManager()
	defer lm.Stop()

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		lm.ExecuteWithSessionLock("s1", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	acquired, _ := lm.TryExecuteWithSessionLock("s1", func() error { return nil })
	if acquired {
		t.Error("锁被占用时不应获取成功")
	}

	// 其他会话不受影响
	acquired, _ = lm.TryExecuteWithSessionLock("s2", func() error { return nil })
	if !acquired {
		t.Error("其他会话的锁应可获取")
	}

	close(release)
}

// TestLockReuse 同一会话ID拿到的是同一把锁
func TestLockReuse(t *testing.T) {
	lm := NewLockManager()
	defer lm.Stop()

	if lm.GetSessionLock("s1") != lm.GetSessionLock("s1") {
		t.Error("同一会话应复用同一把锁")
	}
	if lm.GetSessionLock("s1") == lm.GetSessionLock("s2") {
		t.Error("不同会话不应共享锁")
	}

	lm.ReleaseSessionLock("s1")
	// 释放后重新获取会得到新的锁实例，但这仍是合法状态
	if lm.GetSessionLock("s1") == nil {
		t.Error("释放后应能重新分配锁")
	}
}
