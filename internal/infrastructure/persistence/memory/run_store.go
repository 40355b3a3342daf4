// Package memory 提供未启用 Redis 时的进程内运行记录仓储
package memory

import (
	"context"
	"sync"

	"z-novel-batch/internal/domain/entity"
)

// RunStore 进程内运行记录，重启后丢失
type RunStore struct {
	mu           sync.RWMutex
	runs         map[string]*entity.BatchJob
	order        []string // 最新的在前
	logs         map[string][]*entity.LogEntry
	historyLimit int
	logLimit     int
}

// NewRunStore 创建进程内仓储
func NewRunStore(historyLimit, logLimit int) *RunStore {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	if logLimit <= 0 {
		logLimit = 2000
	}
	return &RunStore{
		runs:         make(map[string]*entity.BatchJob),
		logs:         make(map[string][]*entity.LogEntry),
		historyLimit: historyLimit,
		logLimit:     logLimit,
	}
}

// Save 保存运行快照
func (s *RunStore) Save(_ context.Context, job *entity.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[job.RunID]; !ok {
		s.order = append([]string{job.RunID}, s.order...)
		if len(s.order) > s.historyLimit {
			for _, id := range s.order[s.historyLimit:] {
				delete(s.runs, id)
				delete(s.logs, id)
			}
			s.order = s.order[:s.historyLimit]
		}
	}
	s.runs[job.RunID] = job.Clone()
	return nil
}

// GetByID 获取运行快照
func (s *RunStore) GetByID(_ context.Context, runID string) (*entity.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[runID].Clone(), nil
}

// ListRecent 最近的运行，最新的在前
func (s *RunStore) ListRecent(_ context.Context, limit int) ([]*entity.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	jobs := make([]*entity.BatchJob, 0, limit)
	for _, id := range s.order[:limit] {
		jobs = append(jobs, s.runs[id].Clone())
	}
	return jobs, nil
}

// AppendLog 追加运行日志
func (s *RunStore) AppendLog(_ context.Context, entry *entity.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	logs := append(s.logs[entry.RunID], &cp)
	if over := len(logs) - s.logLimit; over > 0 {
		logs = append([]*entity.LogEntry(nil), logs[over:]...)
	}
	s.logs[entry.RunID] = logs
	return nil
}

// ListLogs 按 seq 升序返回运行日志
func (s *RunStore) ListLogs(_ context.Context, runID string) ([]*entity.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.logs[runID]
	out := make([]*entity.LogEntry, len(src))
	for i, e := range src {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}
