// Package entity 定义领域实体
package entity

import (
	"time"
)

// BatchStatus 批量运行状态
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusCancelled BatchStatus = "cancelled"
	BatchStatusFailed    BatchStatus = "failed"
)

// IsTerminal 是否为终态
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusCancelled || s == BatchStatusFailed
}

// BatchJob 一次批量章节生成运行
type BatchJob struct {
	RunID           string           `json:"run_id"`
	NovelID         string           `json:"novel_id"`
	TemplateID      string           `json:"template_id"`
	TotalChapters   int              `json:"total_chapters"`
	StartChapter    int              `json:"start_chapter"`
	CurrentChapter  int              `json:"current_chapter"`
	Running         bool             `json:"running"`
	CancelRequested bool             `json:"cancel_requested"`
	Status          BatchStatus      `json:"status"`
	LastError       string           `json:"last_error,omitempty"`
	FailedChapter   int              `json:"failed_chapter,omitempty"`
	Config          GenerationConfig `json:"config"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	DurationMs      int64            `json:"duration_ms,omitempty"`
}

// NewBatchJob 创建新运行
func NewBatchJob(runID, novelID, templateID string, totalChapters int, cfg GenerationConfig) *BatchJob {
	return &BatchJob{
		RunID:         runID,
		NovelID:       novelID,
		TemplateID:    templateID,
		TotalChapters: totalChapters,
		Status:        BatchStatusPending,
		Config:        cfg,
		CreatedAt:     time.Now(),
	}
}

// Start 进入运行态，startChapter 只在这里设置一次
// 启动前已收到的停止请求保留，由运行循环在第一章前处理
func (j *BatchJob) Start(startChapter int) {
	now := time.Now()
	j.StartChapter = startChapter
	j.CurrentChapter = 0
	j.Running = true
	j.Status = BatchStatusRunning
	j.StartedAt = &now
}

// ChapterIndex 第 i 次迭代（从 0 开始）对应的章节号
func (j *BatchJob) ChapterIndex(i int) int {
	return j.StartChapter + i
}

// Advance 记录已完成的迭代数；单调不减且不超过总数
func (j *BatchJob) Advance(completed int) {
	if completed > j.TotalChapters {
		completed = j.TotalChapters
	}
	if completed > j.CurrentChapter {
		j.CurrentChapter = completed
	}
}

// RequestCancel 请求停止，等待启动或运行中均生效
func (j *BatchJob) RequestCancel() bool {
	if j.Status.IsTerminal() {
		return false
	}
	j.CancelRequested = true
	return true
}

// Finish 结束运行
func (j *BatchJob) Finish(status BatchStatus, errMsg string) {
	now := time.Now()
	j.Running = false
	j.Status = status
	j.LastError = errMsg
	j.FinishedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
}

// Percent 进度百分比，限定在 [0,100]
func (j *BatchJob) Percent() float64 {
	return ProgressPercent(j.CurrentChapter, j.TotalChapters)
}

// Clone 返回副本，供外部读取快照
func (j *BatchJob) Clone() *BatchJob {
	if j == nil {
		return nil
	}
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// ProgressPercent current/total*100，total 为 0 时返回 0
func ProgressPercent(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(current) / float64(total) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
