// internal/storage/kv_store.go
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// KVStore 提供落盘的本地键值槽存储。
// 一个键对应一个文件；作用域是当前用户/设备，不假设任何事务保证。
// 写入走临时文件加原子改名；读路径带TTL缓存。
type KVStore struct {
	BaseDir string

	// 并发控制：键级别锁 key -> *sync.RWMutex
	keyLocks sync.Map

	// 简单缓存
	cache        map[string]*cacheEntry
	cacheMutex   sync.RWMutex
	cacheExpiry  time.Duration
	maxCacheSize int
}

// cacheEntry 缓存条目
type cacheEntry struct {
	Data      []byte
	Timestamp time.Time
}

// ErrKeyNotFound 表示键不存在
var ErrKeyNotFound = fmt.Errorf("key not found")

// NewKVStore 创建键值存储
func NewKVStore(baseDir string) (*KVStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	kv := &KVStore{
		BaseDir:      baseDir,
		cache:        make(map[string]*cacheEntry),
		cacheExpiry:  5 * time.Minute,
		maxCacheSize: 100,
	}

	// 启动缓存清理
	kv.startCacheCleanup()

	return kv, nil
}

// 获取键锁
func (kv *KVStore) getKeyLock(key string) *sync.RWMutex {
	value, _ := kv.keyLocks.LoadOrStore(key, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// keyPath 把键映射为文件路径。键中的路径分隔符替换为下划线，
// 防止键逃出 BaseDir。
func (kv *KVStore) keyPath(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(kv.BaseDir, safe+".json")
}

// Set 写入一个键值槽（原子写入）
func (kv *KVStore) Set(key string, content []byte) error {
	if key == "" {
		return fmt.Errorf("键不能为空")
	}
	fullPath := kv.keyPath(key)

	lock := kv.getKeyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// 原子性文件写入
	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			fmt.Printf("Warning: failed to clean up temporary file %s after rename failure: %v\n", tempPath, removeErr)
		}
		return fmt.Errorf("保存文件失败: %w", err)
	}

	kv.updateCache(key, content)
	return nil
}

// Get 读取一个键值槽，键不存在时返回 ErrKeyNotFound
func (kv *KVStore) Get(key string) ([]byte, error) {
	// 检查缓存
	kv.cacheMutex.RLock()
	if entry, exists := kv.cache[key]; exists {
		if time.Since(entry.Timestamp) < kv.cacheExpiry {
			kv.cacheMutex.RUnlock()
			return entry.Data, nil
		}
	}
	kv.cacheMutex.RUnlock()

	lock := kv.getKeyLock(key)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(kv.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	kv.updateCache(key, content)
	return content, nil
}

// Has 检查键是否存在
func (kv *KVStore) Has(key string) bool {
	kv.cacheMutex.RLock()
	if entry, exists := kv.cache[key]; exists {
		if time.Since(entry.Timestamp) < kv.cacheExpiry {
			kv.cacheMutex.RUnlock()
			return true
		}
	}
	kv.cacheMutex.RUnlock()

	_, err := os.Stat(kv.keyPath(key))
	return err == nil
}

// Remove 删除一个键值槽。键不存在不视为错误。
func (kv *KVStore) Remove(key string) error {
	lock := kv.getKeyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(kv.keyPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除文件失败: %w", err)
	}

	kv.invalidateCache(key)
	return nil
}

// Keys 列出带指定前缀的所有键（按字典序）
func (kv *KVStore) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(kv.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		if name == entry.Name() {
			continue // 非存储文件
		}
		if strings.HasPrefix(name, prefix) {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// 缓存管理
func (kv *KVStore) updateCache(key string, data []byte) {
	kv.cacheMutex.Lock()
	defer kv.cacheMutex.Unlock()

	kv.cache[key] = &cacheEntry{
		Data:      data,
		Timestamp: time.Now(),
	}

	// 简单的缓存大小控制
	if len(kv.cache) > kv.maxCacheSize {
		var oldestKey string
		var oldestTime time.Time
		for k, entry := range kv.cache {
			if oldestKey == "" || entry.Timestamp.Before(oldestTime) {
				oldestKey = k
				oldestTime = entry.Timestamp
			}
		}
		if oldestKey != "" {
			delete(kv.cache, oldestKey)
		}
	}
}

// invalidateCache 清除指定键的缓存
func (kv *KVStore) invalidateCache(key string) {
	kv.cacheMutex.Lock()
	defer kv.cacheMutex.Unlock()

	delete(kv.cache, key)
}

// 开始缓存清理
func (kv *KVStore) startCacheCleanup() {
	go func() {
		ticker := time.NewTicker(2 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			kv.cleanupExpiredCache()
		}
	}()
}

// 清理过期缓存
func (kv *KVStore) cleanupExpiredCache() {
	kv.cacheMutex.Lock()
	defer kv.cacheMutex.Unlock()

	now := time.Now()
	for key, entry := range kv.cache {
		if now.Sub(entry.Timestamp) > kv.cacheExpiry {
			delete(kv.cache, key)
		}
	}
}
