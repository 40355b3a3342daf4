// Package chapter 实现单章生成流程
package chapter

import (
	"context"
	"strings"

	"z-novel-batch/internal/application/batch"
	"z-novel-batch/internal/application/outline"
	"z-novel-batch/internal/domain/entity"
	"z-novel-batch/internal/domain/service"
	apperrors "z-novel-batch/pkg/errors"
	"z-novel-batch/pkg/logger"
	"z-novel-batch/pkg/metrics"
	"z-novel-batch/pkg/tracer"
)

// BusyChecker 报告正在批量生成的小说
type BusyChecker interface {
	ActiveNovel() (string, bool)
}

// Request 单章生成请求
type Request struct {
	NovelID    string
	TemplateID string
	Outline    string
	// ChapterIndex 显式章节号，0 表示从细纲中提取
	ChapterIndex int
	Overrides    *batch.ConfigOverrides
}

// Result 单章生成结果
type Result struct {
	Content      string `json:"content"`
	WordCount    int    `json:"word_count"`
	ChapterIndex int    `json:"chapter_index"`

	// IndexDefaulted 章节号既未指定也无法从细纲提取，使用了 1
	IndexDefaulted bool                 `json:"index_defaulted"`
	Saved          *entity.SavedChapter `json:"saved,omitempty"`
	SaveError      string               `json:"save_error,omitempty"`
}

// Generator 单章生成服务
type Generator struct {
	generator service.ContentGenerator
	persister service.ChapterPersister
	busy      BusyChecker
	defaults  entity.GenerationConfig
}

// NewGenerator 创建单章生成服务，busy 可为 nil
func NewGenerator(generator service.ContentGenerator, persister service.ChapterPersister, busy BusyChecker, defaults entity.GenerationConfig) *Generator {
	return &Generator{
		generator: generator,
		persister: persister,
		busy:      busy,
		defaults:  defaults.Normalize(),
	}
}

// GenerateSingle 生成单章；提供小说 ID 时尽力保存
func (g *Generator) GenerateSingle(ctx context.Context, req Request) (*Result, error) {
	novelID := strings.TrimSpace(req.NovelID)
	templateID := strings.TrimSpace(req.TemplateID)
	text := strings.TrimSpace(req.Outline)

	if templateID == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("template_id is required")
	}
	if text == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("chapter_outline is required")
	}
	if req.ChapterIndex < 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("chapter_index must not be negative")
	}

	if novelID != "" && g.busy != nil {
		if active, ok := g.busy.ActiveNovel(); ok && active == novelID {
			return nil, apperrors.ErrNovelBusy.WithDetail("novel " + novelID + " has a batch run in progress")
		}
	}

	chapterIndex, defaulted := outline.ResolveChapterIndex(req.ChapterIndex, text)
	if novelID != "" {
		ctx = logger.WithContext(ctx, logger.NovelIDKey, novelID)
	}
	ctx, span := tracer.Start(ctx, "chapter.GenerateSingle", tracer.ChapterAttributes("", novelID, chapterIndex))
	defer span.End()

	params := entity.NewGenerationParameters(novelID, templateID, text, req.Overrides.Apply(g.defaults))
	res, err := g.generator.Generate(ctx, params)
	if err != nil {
		tracer.RecordError(span, err)
		metrics.ChaptersTotal.WithLabelValues("single", "generation_failed").Inc()
		logger.Error(ctx, "single chapter generation failed", err, "chapter_index", chapterIndex)
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.CodeGenerationFailed, "chapter generation failed")
	}
	metrics.ChapterWordCount.Observe(float64(res.WordCount))

	result := &Result{
		Content:        res.Content,
		WordCount:      res.WordCount,
		ChapterIndex:   chapterIndex,
		IndexDefaulted: defaulted,
	}

	if novelID == "" {
		metrics.ChaptersTotal.WithLabelValues("single", "succeeded").Inc()
		logger.Info(ctx, "single chapter generated without novel id, not saved", "word_count", res.WordCount)
		return result, nil
	}

	if defaulted {
		logger.Warn(ctx, "chapter index not given and not found in outline, saving as chapter 1",
			"chapter_index", chapterIndex)
	}

	saved, err := g.persister.SaveChapter(ctx, res.Content, novelID, chapterIndex)
	if err != nil {
		metrics.ChaptersTotal.WithLabelValues("single", "persist_failed").Inc()
		logger.Warn(ctx, "single chapter auto-save failed", "chapter_index", chapterIndex, "error", err.Error())
		result.SaveError = err.Error()
		return result, nil
	}

	metrics.ChaptersTotal.WithLabelValues("single", "succeeded").Inc()
	logger.Info(ctx, "single chapter generated",
		"chapter_index", chapterIndex,
		"word_count", res.WordCount,
		"filename", saved.Filename,
	)
	result.Saved = saved
	return result, nil
}
