package entity

import "time"

// LogLevel 运行日志级别
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogEntry 运行日志条目，只追加
type LogEntry struct {
	Seq          int64     `json:"seq"`
	RunID        string    `json:"run_id"`
	Time         time.Time `json:"time"`
	Level        LogLevel  `json:"level"`
	Message      string    `json:"message"`
	ChapterIndex int       `json:"chapter_index,omitempty"`
}

// ProgressEvent 进度事件
type ProgressEvent struct {
	RunID   string  `json:"run_id"`
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// NewProgressEvent 根据当前运行状态生成进度事件
func NewProgressEvent(job *BatchJob) ProgressEvent {
	return ProgressEvent{
		RunID:   job.RunID,
		Current: job.CurrentChapter,
		Total:   job.TotalChapters,
		Percent: job.Percent(),
	}
}

// RunEventType 事件类型
type RunEventType string

const (
	RunEventLog      RunEventType = "log"
	RunEventProgress RunEventType = "progress"
	RunEventFinished RunEventType = "finished"
)

// RunEvent 推送给订阅者的事件，按类型只填充一个字段
type RunEvent struct {
	Type     RunEventType   `json:"type"`
	Log      *LogEntry      `json:"log,omitempty"`
	Progress *ProgressEvent `json:"progress,omitempty"`
	Job      *BatchJob      `json:"job,omitempty"`
}
