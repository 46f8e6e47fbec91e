// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 统一的会话锁管理器
// 回合提交和回退要求同一会话内串行执行，按会话ID分配独立的锁。
type LockManager struct {
	sessionLocks  map[string]*LockInfo
	globalLock    sync.RWMutex
	cleanupTicker *time.Ticker
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex    *sync.RWMutex
	LastUsed time.Time
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	lm := &LockManager{
		sessionLocks: make(map[string]*LockInfo),
	}

	// 启动清理器
	lm.startCleanup()
	return lm
}

// GetSessionLock 获取会话锁（线程安全）
func (lm *LockManager) GetSessionLock(sessionID string) *sync.RWMutex {
	lm.globalLock.RLock()
	if lockInfo, exists := lm.sessionLocks[sessionID]; exists {
		lm.globalLock.RUnlock()
		lockInfo.LastUsed = time.Now()
		return lockInfo.Mutex
	}
	lm.globalLock.RUnlock()

	// 升级为写锁
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	// 双重检查（在写锁保护下是安全的）
	if lockInfo, exists := lm.sessionLocks[sessionID]; exists {
		lockInfo.LastUsed = time.Now()
		return lockInfo.Mutex
	}

	lock := &sync.RWMutex{}
	lm.sessionLocks[sessionID] = &LockInfo{
		Mutex:    lock,
		LastUsed: time.Now(),
	}
	return lock
}

// ExecuteWithSessionLock 在会话写锁保护下执行操作
func (lm *LockManager) ExecuteWithSessionLock(sessionID string, fn func() error) error {
	lock := lm.GetSessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return fn()
}

// ExecuteWithSessionReadLock 在会话读锁保护下执行操作
func (lm *LockManager) ExecuteWithSessionReadLock(sessionID string, fn func() error) error {
	lock := lm.GetSessionLock(sessionID)
	lock.RLock()
	defer lock.RUnlock()

	return fn()
}

// TryExecuteWithSessionLock 尝试获取会话写锁执行操作，锁被占用时立即返回false
func (lm *LockManager) TryExecuteWithSessionLock(sessionID string, fn func() error) (bool, error) {
	lock := lm.GetSessionLock(sessionID)
	if !lock.TryLock() {
		return false, nil
	}
	defer lock.Unlock()

	return true, fn()
}

// Stop 停止后台清理器
func (lm *LockManager) Stop() {
	if lm.cleanupTicker != nil {
		lm.cleanupTicker.Stop()
	}
}

// ReleaseSessionLock 移除会话锁（会话结束时调用）
func (lm *LockManager) ReleaseSessionLock(sessionID string) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	delete(lm.sessionLocks, sessionID)
}

// 定期清理未使用的锁
func (lm *LockManager) startCleanup() {
	lm.cleanupTicker = time.NewTicker(5 * time.Minute)
	go func() {
		for range lm.cleanupTicker.C {
			lm.cleanupUnusedLocks()
		}
	}()
}

func (lm *LockManager) cleanupUnusedLocks() {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	const maxLocks = 200
	const lockTimeout = 30 * time.Minute

	// 只有在锁数量过多时才清理
	if len(lm.sessionLocks) > maxLocks {
		now := time.Now()
		for sessionID, lockInfo := range lm.sessionLocks {
			if now.Sub(lockInfo.LastUsed) > lockTimeout {
				delete(lm.sessionLocks, sessionID)
			}
		}
	}
}
