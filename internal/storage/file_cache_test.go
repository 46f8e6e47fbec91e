// internal/storage/file_cache_test.go
package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type cachedDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TestFileCacheReadWrite 写入后读回，内容一致
func TestFileCacheReadWrite(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "file_cache_test_*")
	if err != nil {
		t.Fatalf("创建临时测试目录失败: %v", err)
	}
	defer os.RemoveAll(tempDir)

	cache := NewFileCacheService(10, time.Minute)
	path := filepath.Join(tempDir, "doc.json")

	if err := cache.WriteFile(path, &cachedDoc{Name: "雨巷", Count: 3}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	var got cachedDoc
	if err := cache.ReadFile(path, &got); err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if got.Name != "雨巷" || got.Count != 3 {
		t.Errorf("读回的内容不一致: %+v", got)
	}

	// 第二次读取走缓存，结果必须相同
	var again cachedDoc
	if err := cache.ReadFile(path, &again); err != nil {
		t.Fatalf("缓存读取失败: %v", err)
	}
	if again != got {
		t.Errorf("缓存读取结果不一致: %+v vs %+v", again, got)
	}
}

// TestFileCacheInvalidatesOnChange 文件被外部改写后缓存失效
func TestFileCacheInvalidatesOnChange(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "file_cache_test_*")
	if err != nil {
		t.Fatalf("创建临时测试目录失败: %v", err)
	}
	defer os.RemoveAll(tempDir)

	cache := NewFileCacheService(10, time.Minute)
	path := filepath.Join(tempDir, "doc.json")

	if err := cache.WriteFile(path, &cachedDoc{Name: "old", Count: 1}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	var warm cachedDoc
	cache.ReadFile(path, &warm)

	// 外部改写文件（修改时间和大小都会变化）
	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"name":"new-value","count":2}`), 0644); err != nil {
		t.Fatalf("外部改写失败: %v", err)
	}

	var got cachedDoc
	if err := cache.ReadFile(path, &got); err != nil {
		t.Fatalf("改写后读取失败: %v", err)
	}
	if got.Name != "new-value" || got.Count != 2 {
		t.Errorf("缓存未失效，读到旧内容: %+v", got)
	}
}

// TestFileCacheMissingFile 读取不存在的文件报错
func TestFileCacheMissingFile(t *testing.T) {
	cache := NewFileCacheService(10, time.Minute)

	var got cachedDoc
	if err := cache.ReadFile(filepath.Join(os.TempDir(), "definitely_missing_9f2.json"), &got); err == nil {
		t.Error("读取不存在的文件应报错")
	}
}
