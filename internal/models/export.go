// internal/models/export.go
package models

import (
	"time"
)

// ExportResult 表示一次导出的结果
type ExportResult struct {
	ExportID    string    `json:"export_id"`
	Kind        string    `json:"kind"`   // session 或 graph
	Format      string    `json:"format"` // json 或 yaml
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	FilePath    string    `json:"file_path,omitempty"`
	FileSize    int64     `json:"file_size,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// GraphSummary 表示图库列表中一个已存储故事图的摘要
type GraphSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Theme      string    `json:"theme,omitempty"`
	SceneCount int       `json:"scene_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PlayStats 表示播放统计数据
type PlayStats struct {
	SessionsStarted   int            `json:"sessions_started"`
	SessionsCompleted int            `json:"sessions_completed"`
	SessionsFaulted   int            `json:"sessions_faulted"`
	ChoicesSubmitted  int            `json:"choices_submitted"`
	GoBackCount       int            `json:"go_back_count"`
	PerGraph          map[string]int `json:"per_graph"` // graphID -> 开始的会话数
	LastUpdated       time.Time      `json:"last_updated"`
}
