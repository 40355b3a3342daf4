// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-novel-batch/internal/domain/entity"
)

// BatchRunRepository 批量运行记录仓储接口
type BatchRunRepository interface {
	// Save 保存运行快照（创建或覆盖）
	Save(ctx context.Context, job *entity.BatchJob) error

	// GetByID 根据运行 ID 获取快照，不存在时返回 nil, nil
	GetByID(ctx context.Context, runID string) (*entity.BatchJob, error)

	// ListRecent 按开始时间倒序获取最近的运行
	ListRecent(ctx context.Context, limit int) ([]*entity.BatchJob, error)

	// AppendLog 追加运行日志
	AppendLog(ctx context.Context, entry *entity.LogEntry) error

	// ListLogs 获取运行日志（按 seq 升序）
	ListLogs(ctx context.Context, runID string) ([]*entity.LogEntry, error)
}

// OutlineCache 细纲缓存接口
type OutlineCache interface {
	// GetOrLoad 命中时直接返回，否则调用 loader 并缓存非空结果
	GetOrLoad(ctx context.Context, novelID string, chapterIndex int, loader func(context.Context) (string, error)) (string, error)
}
