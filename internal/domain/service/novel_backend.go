// Package service 定义批量生成依赖的外部协作方接口
package service

import (
	"context"

	"z-novel-batch/internal/domain/entity"
)

// ProgressInspector 查询小说已生成的最大章节号
type ProgressInspector interface {
	NovelProgress(ctx context.Context, novelID string) (*entity.NovelProgress, error)
}

// OutlineProvider 读取章节细纲
// 细纲不存在时返回的错误满足 errors.Is(err, apperrors.ErrOutlineUnavailable)
type OutlineProvider interface {
	ChapterOutline(ctx context.Context, novelID string, chapterIndex int) (string, error)
}

// ContentGenerator 调用后端生成章节正文
type ContentGenerator interface {
	Generate(ctx context.Context, params entity.GenerationParameters) (*entity.ChapterResult, error)
}

// ChapterPersister 保存章节
type ChapterPersister interface {
	SaveChapter(ctx context.Context, content, novelID string, chapterIndex int) (*entity.SavedChapter, error)
}

// NovelBackend 聚合以上四个协作方，后端 HTTP 客户端同时实现它们
type NovelBackend interface {
	ProgressInspector
	OutlineProvider
	ContentGenerator
	ChapterPersister
}

// EventPublisher 对外发布运行事件（Redis Stream 等）
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, event *entity.RunEvent) error
}
