package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"z-novel-batch/internal/application/batch"
	"z-novel-batch/internal/interfaces/http/dto"
	apperrors "z-novel-batch/pkg/errors"
	"z-novel-batch/pkg/logger"
)

// OutlineInvalidator 删除缓存的章节细纲
type OutlineInvalidator interface {
	Invalidate(ctx context.Context, novelID string, chapterIndex int) error
}

// NovelHandler 小说进度与细纲缓存处理器
type NovelHandler struct {
	controller *batch.Controller
	outlines   OutlineInvalidator
}

// NewNovelHandler 创建处理器，outlines 为 nil 表示未启用细纲缓存
func NewNovelHandler(controller *batch.Controller, outlines OutlineInvalidator) *NovelHandler {
	return &NovelHandler{controller: controller, outlines: outlines}
}

// GetProgress 查询小说当前进度
// @Summary 查询小说进度
// @Description 返回已生成的最大章节号，批量生成将从 next_chapter 开始
// @Tags Novels
// @Produce json
// @Param nid path string true "小说 ID"
// @Success 200 {object} dto.Response[dto.NovelProgressResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/novels/{nid}/progress [get]
func (h *NovelHandler) GetProgress(c *gin.Context) {
	progress, err := h.controller.DetectProgress(c.Request.Context(), dto.BindNovelID(c))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.ToNovelProgressResponse(progress))
}

// InvalidateOutline 删除某章的细纲缓存，细纲修改后下次批量生成会重新读取
// @Summary 删除细纲缓存
// @Tags Novels
// @Produce json
// @Param nid path string true "小说 ID"
// @Param chapter path int true "章节号"
// @Success 200 {object} dto.Response[dto.InvalidateOutlineResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/novels/{nid}/outlines/{chapter}/cache [delete]
func (h *NovelHandler) InvalidateOutline(c *gin.Context) {
	novelID := dto.BindNovelID(c)
	chapterIndex, err := strconv.Atoi(c.Param("chapter"))
	if novelID == "" || err != nil || chapterIndex < 1 {
		dto.AppError(c, apperrors.ErrInvalidParam.WithDetail("novel id and a positive chapter index are required"))
		return
	}

	resp := &dto.InvalidateOutlineResponse{NovelID: novelID, ChapterIndex: chapterIndex}
	if h.outlines == nil {
		dto.Success(c, resp)
		return
	}

	if err := h.outlines.Invalidate(c.Request.Context(), novelID, chapterIndex); err != nil {
		logger.Warn(c.Request.Context(), "outline cache invalidation failed",
			"novel_id", novelID, "chapter_index", chapterIndex, "error", err.Error())
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to invalidate outline cache"))
		return
	}
	resp.Invalidated = true
	dto.Success(c, resp)
}
