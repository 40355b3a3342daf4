package dto

import (
	"time"

	"z-novel-batch/internal/application/batch"
	"z-novel-batch/internal/domain/entity"
)

// GenerationOverrides 生成参数覆盖项，未提供的字段沿用服务端默认值
type GenerationOverrides struct {
	ModelName      *string `json:"model_name,omitempty"`
	UseMemory      *bool   `json:"use_memory,omitempty"`
	ReadCompressed *bool   `json:"read_compressed,omitempty"`
	UseCompression *bool   `json:"use_compression,omitempty"`
	UseState       *bool   `json:"use_state,omitempty"`
	UseWorldBible  *bool   `json:"use_world_bible,omitempty"`
	UpdateState    *bool   `json:"update_state,omitempty"`
	RecentCount    *int    `json:"recent_count,omitempty"`
}

// ToOverrides 转换为应用层覆盖项
func (o *GenerationOverrides) ToOverrides() *batch.ConfigOverrides {
	if o == nil {
		return nil
	}
	return &batch.ConfigOverrides{
		ModelName:      o.ModelName,
		UseMemory:      o.UseMemory,
		ReadCompressed: o.ReadCompressed,
		UseCompression: o.UseCompression,
		UseState:       o.UseState,
		UseWorldBible:  o.UseWorldBible,
		UpdateState:    o.UpdateState,
		RecentCount:    o.RecentCount,
	}
}

// StartBatchRequest 启动批量生成请求
type StartBatchRequest struct {
	NovelID      string `json:"novel_id"`
	TemplateID   string `json:"template_id"`
	ChapterCount int    `json:"chapter_count"`
	GenerationOverrides
}

// ToStartRequest 转换为应用层请求
func (r *StartBatchRequest) ToStartRequest() batch.StartRequest {
	return batch.StartRequest{
		NovelID:      r.NovelID,
		TemplateID:   r.TemplateID,
		ChapterCount: r.ChapterCount,
		Overrides:    r.GenerationOverrides.ToOverrides(),
	}
}

// BatchJobResponse 批量运行响应
type BatchJobResponse struct {
	RunID           string                  `json:"run_id"`
	NovelID         string                  `json:"novel_id"`
	TemplateID      string                  `json:"template_id"`
	Status          string                  `json:"status"`
	Running         bool                    `json:"running"`
	CancelRequested bool                    `json:"cancel_requested"`
	StartChapter    int                     `json:"start_chapter"`
	CurrentChapter  int                     `json:"current_chapter"`
	TotalChapters   int                     `json:"total_chapters"`
	Percent         float64                 `json:"percent"`
	FailedChapter   int                     `json:"failed_chapter,omitempty"`
	LastError       string                  `json:"last_error,omitempty"`
	Config          entity.GenerationConfig `json:"config"`
	CreatedAt       time.Time               `json:"created_at"`
	StartedAt       *time.Time              `json:"started_at,omitempty"`
	FinishedAt      *time.Time              `json:"finished_at,omitempty"`
	DurationMs      int64                   `json:"duration_ms,omitempty"`
}

// ToBatchJobResponse 转换为批量运行响应
func ToBatchJobResponse(job *entity.BatchJob) *BatchJobResponse {
	if job == nil {
		return nil
	}
	return &BatchJobResponse{
		RunID:           job.RunID,
		NovelID:         job.NovelID,
		TemplateID:      job.TemplateID,
		Status:          string(job.Status),
		Running:         job.Running,
		CancelRequested: job.CancelRequested,
		StartChapter:    job.StartChapter,
		CurrentChapter:  job.CurrentChapter,
		TotalChapters:   job.TotalChapters,
		Percent:         job.Percent(),
		FailedChapter:   job.FailedChapter,
		LastError:       job.LastError,
		Config:          job.Config,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
		DurationMs:      job.DurationMs,
	}
}

// CancelBatchResponse 停止请求响应
type CancelBatchResponse struct {
	Cancelled bool   `json:"cancelled"`
	RunID     string `json:"run_id,omitempty"`
}

// LogListResponse 运行日志列表响应
type LogListResponse struct {
	RunID   string             `json:"run_id"`
	Logs    []*entity.LogEntry `json:"logs"`
	LastSeq int64              `json:"last_seq"`
}

// NewLogListResponse 构建日志列表响应，LastSeq 供下一次 ?since= 使用
func NewLogListResponse(runID string, logs []*entity.LogEntry, since int64) *LogListResponse {
	if logs == nil {
		logs = []*entity.LogEntry{}
	}
	last := since
	if n := len(logs); n > 0 {
		last = logs[n-1].Seq
	}
	return &LogListResponse{RunID: runID, Logs: logs, LastSeq: last}
}

// HistoryResponse 运行历史响应
type HistoryResponse struct {
	Runs []*BatchJobResponse `json:"runs"`
}

// ToHistoryResponse 转换运行历史
func ToHistoryResponse(jobs []*entity.BatchJob) *HistoryResponse {
	runs := make([]*BatchJobResponse, 0, len(jobs))
	for _, job := range jobs {
		runs = append(runs, ToBatchJobResponse(job))
	}
	return &HistoryResponse{Runs: runs}
}

// DefaultsResponse 服务端生成参数默认值
type DefaultsResponse struct {
	Defaults entity.GenerationConfig `json:"defaults"`
}
