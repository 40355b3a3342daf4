package dto

import (
	"z-novel-batch/internal/application/chapter"
	"z-novel-batch/internal/domain/entity"
)

// GenerateChapterRequest 单章生成请求
type GenerateChapterRequest struct {
	NovelID        string `json:"novel_id"`
	TemplateID     string `json:"template_id"`
	ChapterOutline string `json:"chapter_outline"`
	ChapterIndex   int    `json:"chapter_index"`
	GenerationOverrides
}

// ToRequest 转换为应用层请求
func (r *GenerateChapterRequest) ToRequest() chapter.Request {
	return chapter.Request{
		NovelID:      r.NovelID,
		TemplateID:   r.TemplateID,
		Outline:      r.ChapterOutline,
		ChapterIndex: r.ChapterIndex,
		Overrides:    r.GenerationOverrides.ToOverrides(),
	}
}

// ChapterIndexRequest 章节号提取请求
type ChapterIndexRequest struct {
	Text string `json:"text"`
}

// ChapterIndexResponse 章节号提取结果
type ChapterIndexResponse struct {
	ChapterIndex int  `json:"chapter_index"`
	Found        bool `json:"found"`
}

// NovelProgressResponse 小说进度响应
type NovelProgressResponse struct {
	*entity.NovelProgress
	NextChapter int `json:"next_chapter"`
}

// ToNovelProgressResponse 转换进度响应
func ToNovelProgressResponse(p *entity.NovelProgress) *NovelProgressResponse {
	if p == nil {
		return nil
	}
	return &NovelProgressResponse{NovelProgress: p, NextChapter: p.NextChapter()}
}

// InvalidateOutlineResponse 细纲缓存失效结果
type InvalidateOutlineResponse struct {
	NovelID      string `json:"novel_id"`
	ChapterIndex int    `json:"chapter_index"`
	Invalidated  bool   `json:"invalidated"`
}
