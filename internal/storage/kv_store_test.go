// internal/storage/kv_store_test.go
package storage

import (
	"errors"
	"os"
	"testing"
)

func setupKVTest(t *testing.T) (*KVStore, string) {
	tempDir, err := os.MkdirTemp("", "kv_store_test_*")
	if err != nil {
		t.Fatalf("创建临时测试目录失败: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := NewKVStore(tempDir)
	if err != nil {
		t.Fatalf("创建KV存储失败: %v", err)
	}
	return store, tempDir
}

// TestKVStoreRoundTrip 测试基本的写入、读取、覆盖
func TestKVStoreRoundTrip(t *testing.T) {
	store, _ := setupKVTest(t)

	if err := store.Set("session-1", []byte(`{"status":"ready"}`)); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	data, err := store.Get("session-1")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if string(data) != `{"status":"ready"}` {
		t.Errorf("读回的内容不一致: %s", data)
	}

	// 覆盖写
	if err := store.Set("session-1", []byte(`{"status":"ended"}`)); err != nil {
		t.Fatalf("覆盖写入失败: %v", err)
	}
	data, _ = store.Get("session-1")
	if string(data) != `{"status":"ended"}` {
		t.Errorf("覆盖后的内容不一致: %s", data)
	}
}

// TestKVStoreGetMissing 读取不存在的键返回 ErrKeyNotFound
func TestKVStoreGetMissing(t *testing.T) {
	store, _ := setupKVTest(t)

	_, err := store.Get("missing")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("应返回 ErrKeyNotFound，实际: %v", err)
	}
}

// TestKVStoreHasAndRemove 测试存在性检查与删除
func TestKVStoreHasAndRemove(t *testing.T) {
	store, _ := setupKVTest(t)

	if store.Has("a") {
		t.Error("空存储不应包含任何键")
	}

	store.Set("a", []byte("1"))
	if !store.Has("a") {
		t.Error("写入后键应存在")
	}

	if err := store.Remove("a"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if store.Has("a") {
		t.Error("删除后键不应存在")
	}

	// 删除不存在的键不报错
	if err := store.Remove("a"); err != nil {
		t.Errorf("重复删除不应报错: %v", err)
	}
}

// TestKVStoreKeys 测试按前缀列举
func TestKVStoreKeys(t *testing.T) {
	store, _ := setupKVTest(t)

	store.Set("sess-a", []byte("1"))
	store.Set("sess-b", []byte("2"))
	store.Set("other", []byte("3"))

	keys, err := store.Keys("sess-")
	if err != nil {
		t.Fatalf("列举失败: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("前缀 sess- 应匹配 2 个键，实际: %v", keys)
	}

	keys, _ = store.Keys("")
	if len(keys) != 3 {
		t.Errorf("空前缀应列举全部键，实际: %v", keys)
	}
}

// TestKVStoreSurvivesReopen 数据落盘，重新打开后仍可读
func TestKVStoreSurvivesReopen(t *testing.T) {
	store, tempDir := setupKVTest(t)
	store.Set("persist", []byte("still here"))

	reopened, err := NewKVStore(tempDir)
	if err != nil {
		t.Fatalf("重新打开失败: %v", err)
	}
	data, err := reopened.Get("persist")
	if err != nil {
		t.Fatalf("重新打开后读取失败: %v", err)
	}
	if string(data) != "still here" {
		t.Errorf("重新打开后内容不一致: %s", data)
	}
}
