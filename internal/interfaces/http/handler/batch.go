// Package handler 提供 HTTP 请求处理器
package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"z-novel-batch/internal/application/batch"
	"z-novel-batch/internal/interfaces/http/dto"
	apperrors "z-novel-batch/pkg/errors"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// BatchHandler 批量生成处理器
type BatchHandler struct {
	controller *batch.Controller
	// heartbeat SSE 心跳间隔，0 表示 15s
	heartbeat time.Duration
}

// NewBatchHandler 创建批量生成处理器
func NewBatchHandler(controller *batch.Controller) *BatchHandler {
	return &BatchHandler{controller: controller}
}

// StartBatch 启动批量生成
// @Summary 启动批量生成
// @Description 从小说已有最大章节号的下一章开始，依次生成 chapter_count 章
// @Tags Batches
// @Accept json
// @Produce json
// @Param body body dto.StartBatchRequest true "启动参数"
// @Success 202 {object} dto.Response[dto.BatchJobResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/batches [post]
func (h *BatchHandler) StartBatch(c *gin.Context) {
	var req dto.StartBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.AppError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		return
	}

	job, err := h.controller.StartBatch(c.Request.Context(), req.ToStartRequest())
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Accepted(c, dto.ToBatchJobResponse(job))
}

// CancelBatch 请求停止当前运行
// @Summary 停止批量生成
// @Description 当前章节完成后停止，没有运行时 cancelled 为 false
// @Tags Batches
// @Produce json
// @Success 200 {object} dto.Response[dto.CancelBatchResponse]
// @Router /v1/batches/current [delete]
func (h *BatchHandler) CancelBatch(c *gin.Context) {
	resp := &dto.CancelBatchResponse{Cancelled: h.controller.Cancel(c.Request.Context())}
	if snap := h.controller.Snapshot(); snap != nil && resp.Cancelled {
		resp.RunID = snap.RunID
	}
	dto.Success(c, resp)
}

// GetCurrent 获取当前或最近一次运行
// @Summary 获取当前运行
// @Tags Batches
// @Produce json
// @Success 200 {object} dto.Response[dto.BatchJobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/batches/current [get]
func (h *BatchHandler) GetCurrent(c *gin.Context) {
	snap := h.controller.Snapshot()
	if snap == nil {
		dto.AppError(c, apperrors.ErrNoActiveRun)
		return
	}
	dto.Success(c, dto.ToBatchJobResponse(snap))
}

// ListLogs 获取当前运行的日志
// @Summary 获取运行日志
// @Description since 为上次拿到的最大 seq，只返回之后的日志
// @Tags Batches
// @Produce json
// @Param since query int false "起始 seq（不含）"
// @Success 200 {object} dto.Response[dto.LogListResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/batches/current/logs [get]
func (h *BatchHandler) ListLogs(c *gin.Context) {
	snap := h.controller.Snapshot()
	if snap == nil {
		dto.AppError(c, apperrors.ErrNoActiveRun)
		return
	}
	since := dto.BindSince(c)
	dto.Success(c, dto.NewLogListResponse(snap.RunID, h.controller.Logs(since), since))
}

// ListRunLogs 获取指定运行的日志
// @Summary 获取历史运行日志
// @Tags Batches
// @Produce json
// @Param rid path string true "运行 ID"
// @Success 200 {object} dto.Response[dto.LogListResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/batches/{rid}/logs [get]
func (h *BatchHandler) ListRunLogs(c *gin.Context) {
	runID := dto.BindRunID(c)
	if runID == "" {
		dto.AppError(c, apperrors.ErrInvalidParam.WithDetail("run id is required"))
		return
	}
	logs, err := h.controller.RunLogs(c.Request.Context(), runID)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewLogListResponse(runID, logs, 0))
}

// ListHistory 获取最近的运行记录
// @Summary 运行历史
// @Tags Batches
// @Produce json
// @Param limit query int false "条数" default(20)
// @Success 200 {object} dto.Response[dto.HistoryResponse]
// @Router /v1/batches/history [get]
func (h *BatchHandler) ListHistory(c *gin.Context) {
	limit := dto.BindLimit(c, defaultHistoryLimit, maxHistoryLimit)
	jobs, err := h.controller.History(c.Request.Context(), limit)
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to load run history"))
		return
	}
	dto.Success(c, dto.ToHistoryResponse(jobs))
}

// GetDefaults 获取生成参数默认值
// @Summary 生成参数默认值
// @Tags Batches
// @Produce json
// @Success 200 {object} dto.Response[dto.DefaultsResponse]
// @Router /v1/batches/defaults [get]
func (h *BatchHandler) GetDefaults(c *gin.Context) {
	dto.Success(c, &dto.DefaultsResponse{Defaults: h.controller.Defaults()})
}
