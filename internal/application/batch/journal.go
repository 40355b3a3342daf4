package batch

import (
	"sync"
	"time"

	"z-novel-batch/internal/domain/entity"
)

// Journal 当前运行的内存日志与事件广播
type Journal struct {
	mu      sync.Mutex
	runID   string
	seq     int64
	entries []*entity.LogEntry
	limit   int

	subs    map[chan *entity.RunEvent]struct{}
	bufSize int
}

// NewJournal 创建日志，limit 为保留条数上限
func NewJournal(limit, bufSize int) *Journal {
	if limit <= 0 {
		limit = 2000
	}
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Journal{
		limit:   limit,
		bufSize: bufSize,
		subs:    make(map[chan *entity.RunEvent]struct{}),
	}
}

// Reset 开始新运行时清空日志，订阅者保持不变
func (j *Journal) Reset(runID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runID = runID
	j.seq = 0
	j.entries = nil
}

// RunID 当前日志所属运行
func (j *Journal) RunID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runID
}

// Append 追加一条日志
func (j *Journal) Append(level entity.LogLevel, chapterIndex int, message string) *entity.LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	entry := &entity.LogEntry{
		Seq:          j.seq,
		RunID:        j.runID,
		Time:         time.Now(),
		Level:        level,
		Message:      message,
		ChapterIndex: chapterIndex,
	}
	j.entries = append(j.entries, entry)
	if over := len(j.entries) - j.limit; over > 0 {
		j.entries = append([]*entity.LogEntry(nil), j.entries[over:]...)
	}
	return entry
}

// Since 返回 seq 大于 since 的日志
func (j *Journal) Since(since int64) []*entity.LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]*entity.LogEntry, 0, len(j.entries))
	for _, e := range j.entries {
		if e.Seq > since {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// Subscribe 订阅运行事件，返回取消函数
func (j *Journal) Subscribe() (<-chan *entity.RunEvent, func()) {
	ch := make(chan *entity.RunEvent, j.bufSize)

	j.mu.Lock()
	j.subs[ch] = struct{}{}
	j.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.mu.Lock()
			delete(j.subs, ch)
			j.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast 非阻塞广播，缓冲区满的订阅者丢弃该事件
func (j *Journal) Broadcast(ev *entity.RunEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for ch := range j.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
