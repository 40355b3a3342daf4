package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-novel-batch/internal/domain/entity"
)

const (
	keyRunIndex = "batch:runs"

	defaultHistoryLimit = 50
	defaultLogLimit     = 2000
)

func runKey(runID string) string {
	return fmt.Sprintf("batch:run:%s", runID)
}

func runLogsKey(runID string) string {
	return fmt.Sprintf("batch:run:%s:logs", runID)
}

// RunStore 运行记录仓储
// batch:run:{id} 保存快照，batch:runs 按开始顺序保存最近的运行 ID，batch:run:{id}:logs 保存日志
type RunStore struct {
	client       *Client
	historyLimit int
	logLimit     int
}

// NewRunStore 创建运行记录仓储
func NewRunStore(client *Client, historyLimit, logLimit int) *RunStore {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if logLimit <= 0 {
		logLimit = defaultLogLimit
	}
	return &RunStore{
		client:       client,
		historyLimit: historyLimit,
		logLimit:     logLimit,
	}
}

// Save 保存运行快照；首次保存时登记到历史列表，超出上限的旧运行被清理
func (s *RunStore) Save(ctx context.Context, job *entity.BatchJob) error {
	ctx, span := tracer.Start(ctx, "runstore.Save",
		trace.WithAttributes(attribute.String("run.id", job.RunID)))
	defer span.End()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	key := runKey(job.RunID)
	existing, err := s.client.rdb.Exists(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check run: %w", err)
	}
	if err := s.client.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save run: %w", err)
	}
	if existing > 0 {
		return nil
	}

	if err := s.client.rdb.LPush(ctx, keyRunIndex, job.RunID).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to index run: %w", err)
	}
	return s.trim(ctx)
}

// trim 删除超出历史上限的运行及其日志
func (s *RunStore) trim(ctx context.Context) error {
	stale, err := s.client.rdb.LRange(ctx, keyRunIndex, int64(s.historyLimit), -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list stale runs: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	pipe := s.client.rdb.TxPipeline()
	pipe.LTrim(ctx, keyRunIndex, 0, int64(s.historyLimit-1))
	for _, id := range stale {
		pipe.Del(ctx, runKey(id), runLogsKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to trim run history: %w", err)
	}
	return nil
}

// GetByID 获取运行快照，不存在时返回 nil, nil
func (s *RunStore) GetByID(ctx context.Context, runID string) (*entity.BatchJob, error) {
	ctx, span := tracer.Start(ctx, "runstore.GetByID",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	data, err := s.client.rdb.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var job entity.BatchJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &job, nil
}

// ListRecent 最近的运行，最新的在前
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]*entity.BatchJob, error) {
	ctx, span := tracer.Start(ctx, "runstore.ListRecent")
	defer span.End()

	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	ids, err := s.client.rdb.LRange(ctx, keyRunIndex, 0, int64(limit-1)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(ids) == 0 {
		return []*entity.BatchJob{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKey(id)
	}
	values, err := s.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	jobs := make([]*entity.BatchJob, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var job entity.BatchJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	span.SetAttributes(attribute.Int("run.count", len(jobs)))
	return jobs, nil
}

// AppendLog 追加运行日志，只保留最近 logLimit 条
func (s *RunStore) AppendLog(ctx context.Context, entry *entity.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	key := runLogsKey(entry.RunID)
	pipe := s.client.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.logLimit), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

// ListLogs 按 seq 升序返回运行日志
func (s *RunStore) ListLogs(ctx context.Context, runID string) ([]*entity.LogEntry, error) {
	ctx, span := tracer.Start(ctx, "runstore.ListLogs",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	raws, err := s.client.rdb.LRange(ctx, runLogsKey(runID), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}

	entries := make([]*entity.LogEntry, 0, len(raws))
	for _, raw := range raws {
		var e entity.LogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}
