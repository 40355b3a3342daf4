package handler

import (
	"github.com/gin-gonic/gin"

	"z-novel-batch/internal/application/chapter"
	"z-novel-batch/internal/application/outline"
	"z-novel-batch/internal/interfaces/http/dto"
	apperrors "z-novel-batch/pkg/errors"
)

// ChapterHandler 单章生成处理器
type ChapterHandler struct {
	generator *chapter.Generator
}

// NewChapterHandler 创建单章生成处理器
func NewChapterHandler(generator *chapter.Generator) *ChapterHandler {
	return &ChapterHandler{generator: generator}
}

// GenerateChapter 生成单章
// @Summary 生成单章
// @Description 章节号未指定时从细纲中提取，仍无法确定时按第 1 章保存；未提供 novel_id 时不保存
// @Tags Chapters
// @Accept json
// @Produce json
// @Param body body dto.GenerateChapterRequest true "生成参数"
// @Success 200 {object} dto.Response[chapter.Result]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/chapters/generate [post]
func (h *ChapterHandler) GenerateChapter(c *gin.Context) {
	var req dto.GenerateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.AppError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		return
	}

	result, err := h.generator.GenerateSingle(c.Request.Context(), req.ToRequest())
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, result)
}

// ExtractChapterIndex 从细纲文本中提取章节号
// @Summary 提取章节号
// @Tags Outlines
// @Accept json
// @Produce json
// @Param body body dto.ChapterIndexRequest true "细纲文本"
// @Success 200 {object} dto.Response[dto.ChapterIndexResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/outlines/chapter-index [post]
func (h *ChapterHandler) ExtractChapterIndex(c *gin.Context) {
	var req dto.ChapterIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.AppError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		return
	}

	index, ok := outline.ExtractChapterIndex(req.Text)
	dto.Success(c, &dto.ChapterIndexResponse{ChapterIndex: index, Found: ok})
}
