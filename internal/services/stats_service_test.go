// internal/services/stats_service_test.go
package services

import (
	"os"
	"testing"
)

func setupStatsTest(t *testing.T) (*StatsService, string) {
	tempDir, err := os.MkdirTemp("", "stats_service_test_*")
	if err != nil {
		t.Fatalf("创建临时测试目录失败: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })
	return NewStatsService(tempDir), tempDir
}

// TestStatsRecording 各类事件正确计数
func TestStatsRecording(t *testing.T) {
	service, _ := setupStatsTest(t)
	defer service.Close()

	service.RecordSessionStarted("g1")
	service.RecordSessionStarted("g1")
	service.RecordSessionStarted("g2")
	service.RecordChoiceSubmitted("g1")
	service.RecordSessionCompleted("g1")
	service.RecordSessionFaulted("g2")
	service.RecordGoBack("g1")

	stats := service.GetPlayStats()
	if stats.SessionsStarted != 3 {
		t.Errorf("SessionsStarted 应为 3，实际: %d", stats.SessionsStarted)
	}
	if stats.SessionsCompleted != 1 || stats.SessionsFaulted != 1 {
		t.Errorf("完成/故障计数不对: %d/%d", stats.SessionsCompleted, stats.SessionsFaulted)
	}
	if stats.ChoicesSubmitted != 1 || stats.GoBackCount != 1 {
		t.Errorf("选择/回退计数不对: %d/%d", stats.ChoicesSubmitted, stats.GoBackCount)
	}
	if stats.PerGraph["g1"] != 2 || stats.PerGraph["g2"] != 1 {
		t.Errorf("按图计数不对: %v", stats.PerGraph)
	}
}

// TestStatsSnapshotIsCopy 返回的统计是副本，改动不影响内部状态
func TestStatsSnapshotIsCopy(t *testing.T) {
	service, _ := setupStatsTest(t)
	defer service.Close()

	service.RecordSessionStarted("g1")

	snapshot := service.GetPlayStats()
	snapshot.SessionsStarted = 99
	snapshot.PerGraph["g1"] = 99

	fresh := service.GetPlayStats()
	if fresh.SessionsStarted != 1 || fresh.PerGraph["g1"] != 1 {
		t.Errorf("内部状态被外部改动污染: %+v", fresh)
	}
}

// TestStatsPersistence 关闭时落盘，新实例读回同一份数据
func TestStatsPersistence(t *testing.T) {
	service, tempDir := setupStatsTest(t)

	service.RecordSessionStarted("g1")
	service.RecordChoiceSubmitted("g1")
	if err := service.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}

	reopened := NewStatsService(tempDir)
	defer reopened.Close()

	stats := reopened.GetPlayStats()
	if stats.SessionsStarted != 1 || stats.ChoicesSubmitted != 1 {
		t.Errorf("重新打开后统计丢失: %+v", stats)
	}
}

// TestStatsReset 重置后全部归零
func TestStatsReset(t *testing.T) {
	service, _ := setupStatsTest(t)
	defer service.Close()

	service.RecordSessionStarted("g1")
	if err := service.ResetStats(); err != nil {
		t.Fatalf("重置失败: %v", err)
	}

	stats := service.GetPlayStats()
	if stats.SessionsStarted != 0 || len(stats.PerGraph) != 0 {
		t.Errorf("重置后应归零: %+v", stats)
	}
}
