// Package batch 实现批量章节生成控制器
//
// 控制器在单个后台 goroutine 中按顺序逐章执行：读取细纲 -> 生成正文 -> 保存章节 -> 上报进度。
// 同一时刻只允许一个运行；停止请求是协作式的，只在两章之间检查。
package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"z-novel-batch/internal/application/outline"
	"z-novel-batch/internal/domain/entity"
	"z-novel-batch/internal/domain/repository"
	"z-novel-batch/internal/domain/service"
	apperrors "z-novel-batch/pkg/errors"
	"z-novel-batch/pkg/logger"
	"z-novel-batch/pkg/metrics"
	"z-novel-batch/pkg/tracer"
)

// Deps 控制器依赖；Runs、Cache、Publisher 可为 nil
type Deps struct {
	Inspector service.ProgressInspector
	Outlines  service.OutlineProvider
	Generator service.ContentGenerator
	Persister service.ChapterPersister

	Runs      repository.BatchRunRepository
	Cache     repository.OutlineCache
	Publisher service.EventPublisher
}

// Options 控制器选项
type Options struct {
	Defaults         entity.GenerationConfig
	LogLimit         int
	SubscriberBuffer int
	// NewRunID 测试可替换
	NewRunID func() string
}

// StartRequest 启动批量生成请求
type StartRequest struct {
	NovelID      string
	TemplateID   string
	ChapterCount int
	Overrides    *ConfigOverrides
}

// Controller 批量生成控制器
type Controller struct {
	deps     Deps
	defaults entity.GenerationConfig
	journal  *Journal
	newRunID func() string

	mu   sync.Mutex
	busy bool             // 从进度查询开始到循环退出期间为 true
	job  *entity.BatchJob // 当前或最近一次运行
	done chan struct{}    // 当前运行循环退出时关闭
}

// NewController 创建控制器
func NewController(deps Deps, opts Options) *Controller {
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = func() string { return uuid.New().String() }
	}
	return &Controller{
		deps:     deps,
		defaults: opts.Defaults.Normalize(),
		journal:  NewJournal(opts.LogLimit, opts.SubscriberBuffer),
		newRunID: newRunID,
	}
}

// Defaults 返回默认生成配置
func (c *Controller) Defaults() entity.GenerationConfig {
	return c.defaults
}

// StartBatch 校验参数、查询进度并在后台启动运行循环
// 返回时运行已开始（或已因参数/进度查询失败而终止）
func (c *Controller) StartBatch(ctx context.Context, req StartRequest) (*entity.BatchJob, error) {
	novelID := strings.TrimSpace(req.NovelID)
	templateID := strings.TrimSpace(req.TemplateID)

	if novelID == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("novel_id is required")
	}
	if templateID == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("template_id is required")
	}
	if req.ChapterCount < 1 {
		return nil, apperrors.ErrInvalidParam.WithDetail("chapter_count must be at least 1")
	}

	cfg := req.Overrides.Apply(c.defaults)
	job := entity.NewBatchJob(c.newRunID(), novelID, templateID, req.ChapterCount, cfg)
	done := make(chan struct{})

	// 先占用运行位并发布新运行，再查询进度，避免两个并发启动都通过检查
	// 查询期间的停止请求、单章互斥和关闭等待都作用于新运行
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, apperrors.ErrBatchRunning
	}
	c.busy = true
	c.job = job
	c.done = done
	c.journal.Reset(job.RunID)
	c.mu.Unlock()

	runCtx := logger.WithContext(context.WithoutCancel(ctx), logger.RunIDKey, job.RunID)
	runCtx = logger.WithContext(runCtx, logger.NovelIDKey, novelID)

	progress, err := c.deps.Inspector.NovelProgress(runCtx, novelID)
	if err != nil {
		c.abortStart(runCtx, job, done, err)
		return nil, apperrors.Wrap(err, apperrors.CodeProgressQueryFailed, "failed to query novel progress")
	}

	c.mu.Lock()
	job.Start(progress.NextChapter())
	snapshot := job.Clone()
	c.mu.Unlock()

	metrics.BatchActiveRuns.Inc()
	c.logf(runCtx, entity.LogInfo, 0, "batch started: %d chapters from chapter %d (novel %s, latest existing chapter %d)",
		job.TotalChapters, job.StartChapter, novelID, progress.MaxChapter)
	c.emitProgress(runCtx, snapshot)
	c.saveRun(runCtx, snapshot)

	go c.run(runCtx, job, done)

	return snapshot, nil
}

// abortStart 进度查询失败：记录失败运行并释放运行位
func (c *Controller) abortStart(ctx context.Context, job *entity.BatchJob, done chan struct{}, cause error) {
	c.mu.Lock()
	job.Finish(entity.BatchStatusFailed, cause.Error())
	c.busy = false
	snapshot := job.Clone()
	c.mu.Unlock()

	c.logf(ctx, entity.LogError, 0, "batch start failed: cannot query progress of novel %s: %v", job.NovelID, cause)
	c.saveRun(ctx, snapshot)
	c.journal.Broadcast(&entity.RunEvent{Type: entity.RunEventFinished, Job: snapshot})
	metrics.BatchRunsTotal.WithLabelValues(string(entity.BatchStatusFailed)).Inc()
	close(done)
}

// run 运行循环，每一章完整结束后才开始下一章
func (c *Controller) run(ctx context.Context, job *entity.BatchJob, done chan struct{}) {
	status := entity.BatchStatusCompleted
	var runErr error

	defer func() {
		c.finish(ctx, job, status, runErr)
		close(done)
	}()

	for i := 0; i < job.TotalChapters; i++ {
		if c.cancelRequested(job) {
			status = entity.BatchStatusCancelled
			c.logf(ctx, entity.LogWarning, 0, "stopped by operator after %d of %d chapters", i, job.TotalChapters)
			break
		}

		chapterIndex := job.ChapterIndex(i)
		if err := c.processChapter(ctx, job, chapterIndex); err != nil {
			status = entity.BatchStatusFailed
			runErr = err
			c.mu.Lock()
			job.FailedChapter = chapterIndex
			c.mu.Unlock()
			break
		}

		c.mu.Lock()
		job.Advance(i + 1)
		snapshot := job.Clone()
		c.mu.Unlock()

		c.emitProgress(ctx, snapshot)
		c.saveRun(ctx, snapshot)
	}
}

// processChapter 处理单章：细纲 -> 生成 -> 保存
// 只有生成失败会返回错误；保存失败仅告警
func (c *Controller) processChapter(ctx context.Context, job *entity.BatchJob, chapterIndex int) error {
	ctx, span := tracer.Start(ctx, "batch.Chapter", tracer.ChapterAttributes(job.RunID, job.NovelID, chapterIndex))
	defer span.End()

	c.logf(ctx, entity.LogInfo, chapterIndex, "generating chapter %d", chapterIndex)

	text := c.loadOutline(ctx, job.NovelID, chapterIndex)
	params := entity.NewGenerationParameters(job.NovelID, job.TemplateID, text, job.Config)

	result, err := c.deps.Generator.Generate(ctx, params)
	if err != nil {
		tracer.RecordError(span, err)
		metrics.ChaptersTotal.WithLabelValues("batch", "generation_failed").Inc()
		c.logf(ctx, entity.LogError, chapterIndex, "chapter %d generation failed: %v", chapterIndex, err)
		return apperrors.Wrap(err, apperrors.CodeGenerationFailed, fmt.Sprintf("chapter %d generation failed", chapterIndex))
	}

	metrics.ChapterWordCount.Observe(float64(result.WordCount))

	saved, err := c.deps.Persister.SaveChapter(ctx, result.Content, job.NovelID, chapterIndex)
	if err != nil {
		metrics.ChaptersTotal.WithLabelValues("batch", "persist_failed").Inc()
		c.logf(ctx, entity.LogWarning, chapterIndex, "chapter %d auto-save failed: %v", chapterIndex, err)
	} else {
		metrics.ChaptersTotal.WithLabelValues("batch", "succeeded").Inc()
		c.logf(ctx, entity.LogInfo, chapterIndex, "chapter %d saved as %s", chapterIndex, saved.Filename)
	}

	c.logf(ctx, entity.LogSuccess, chapterIndex, "chapter %d generated (%d words)", chapterIndex, result.WordCount)
	return nil
}

// loadOutline 读取细纲，任何失败都回退到默认细纲，返回值永不为空
func (c *Controller) loadOutline(ctx context.Context, novelID string, chapterIndex int) string {
	load := func(ctx context.Context) (string, error) {
		return c.deps.Outlines.ChapterOutline(ctx, novelID, chapterIndex)
	}

	var (
		text string
		err  error
	)
	if c.deps.Cache != nil {
		text, err = c.deps.Cache.GetOrLoad(ctx, novelID, chapterIndex, load)
	} else {
		text, err = load(ctx)
	}

	switch {
	case err == nil:
		resolved, defaulted := outline.OrDefault(text, chapterIndex)
		if defaulted {
			metrics.OutlineFallbackTotal.WithLabelValues("empty").Inc()
			c.logf(ctx, entity.LogWarning, chapterIndex, "outline for chapter %d is empty, using default outline", chapterIndex)
		}
		return resolved
	case apperrors.Is(err, apperrors.ErrOutlineUnavailable):
		metrics.OutlineFallbackTotal.WithLabelValues("absent").Inc()
		c.logf(ctx, entity.LogInfo, chapterIndex, "no outline for chapter %d, using default outline", chapterIndex)
	default:
		metrics.OutlineFallbackTotal.WithLabelValues("error").Inc()
		c.logf(ctx, entity.LogWarning, chapterIndex, "reading outline for chapter %d failed: %v; using default outline", chapterIndex, err)
	}
	return outline.Default(chapterIndex)
}

// finish 在所有退出路径上执行：复位运行状态并上报最终结果
func (c *Controller) finish(ctx context.Context, job *entity.BatchJob, status entity.BatchStatus, runErr error) {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}

	c.mu.Lock()
	job.Finish(status, errMsg)
	c.busy = false
	snapshot := job.Clone()
	c.mu.Unlock()

	switch status {
	case entity.BatchStatusCompleted:
		c.logf(ctx, entity.LogSuccess, 0, "batch finished: %d of %d chapters generated", snapshot.CurrentChapter, snapshot.TotalChapters)
	case entity.BatchStatusCancelled:
		c.logf(ctx, entity.LogWarning, 0, "batch stopped: %d of %d chapters generated", snapshot.CurrentChapter, snapshot.TotalChapters)
	case entity.BatchStatusFailed:
		c.logf(ctx, entity.LogError, snapshot.FailedChapter, "batch failed at chapter %d: %d of %d chapters generated",
			snapshot.FailedChapter, snapshot.CurrentChapter, snapshot.TotalChapters)
	}

	metrics.BatchActiveRuns.Dec()
	metrics.BatchRunsTotal.WithLabelValues(string(status)).Inc()

	c.emitProgress(ctx, snapshot)
	c.saveRun(ctx, snapshot)
	c.publish(ctx, &entity.RunEvent{Type: entity.RunEventFinished, Job: snapshot})
}

// Cancel 请求停止当前运行；没有运行时返回 false
// 正在进行的章节会完整结束，停止在下一章开始前生效
func (c *Controller) Cancel(ctx context.Context) bool {
	c.mu.Lock()
	job := c.job
	if job == nil || !c.busy || !job.RequestCancel() {
		c.mu.Unlock()
		return false
	}
	snapshot := job.Clone()
	c.mu.Unlock()

	c.logf(ctx, entity.LogWarning, 0, "stop requested for run %s, the chapter in progress will complete first", snapshot.RunID)
	c.saveRun(ctx, snapshot)
	return true
}

func (c *Controller) cancelRequested(job *entity.BatchJob) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return job.CancelRequested
}

// Running 是否有运行正在进行（含启动阶段）
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// ActiveNovel 正在批量生成的小说 ID
func (c *Controller) ActiveNovel() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy || c.job == nil {
		return "", false
	}
	return c.job.NovelID, true
}

// Snapshot 当前或最近一次运行的副本；从未运行时返回 nil
func (c *Controller) Snapshot() *entity.BatchJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job.Clone()
}

// Logs 当前运行中 seq 大于 since 的日志
func (c *Controller) Logs(since int64) []*entity.LogEntry {
	return c.journal.Since(since)
}

// RunLogs 指定运行的日志，当前运行读内存，历史运行读仓储
func (c *Controller) RunLogs(ctx context.Context, runID string) ([]*entity.LogEntry, error) {
	if runID == c.journal.RunID() {
		return c.journal.Since(0), nil
	}
	if c.deps.Runs == nil {
		return nil, apperrors.ErrNoActiveRun
	}
	return c.deps.Runs.ListLogs(ctx, runID)
}

// History 最近的运行记录；未配置仓储时只返回内存中的最近一次
func (c *Controller) History(ctx context.Context, limit int) ([]*entity.BatchJob, error) {
	if c.deps.Runs != nil {
		return c.deps.Runs.ListRecent(ctx, limit)
	}
	if snap := c.Snapshot(); snap != nil {
		return []*entity.BatchJob{snap}, nil
	}
	return []*entity.BatchJob{}, nil
}

// Subscribe 订阅运行事件
func (c *Controller) Subscribe() (<-chan *entity.RunEvent, func()) {
	return c.journal.Subscribe()
}

// Wait 等待当前运行循环退出
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown 请求停止并等待运行循环退出或 ctx 到期
func (c *Controller) Shutdown(ctx context.Context) error {
	c.Cancel(ctx)
	return c.Wait(ctx)
}

// DetectProgress 查询小说进度但不启动运行
func (c *Controller) DetectProgress(ctx context.Context, novelID string) (*entity.NovelProgress, error) {
	novelID = strings.TrimSpace(novelID)
	if novelID == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("novel_id is required")
	}
	progress, err := c.deps.Inspector.NovelProgress(ctx, novelID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProgressQueryFailed, "failed to query novel progress")
	}
	logger.Info(ctx, "novel progress detected",
		"novel_id", novelID,
		"max_chapter", progress.MaxChapter,
		"next_chapter", progress.NextChapter(),
	)
	return progress, nil
}

// logf 写入运行日志，同时输出结构化日志并推送给订阅者和事件流
func (c *Controller) logf(ctx context.Context, level entity.LogLevel, chapterIndex int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	entry := c.journal.Append(level, chapterIndex, msg)

	attrs := []any{"seq", entry.Seq}
	if chapterIndex > 0 {
		attrs = append(attrs, "chapter_index", chapterIndex)
	}
	switch level {
	case entity.LogError:
		logger.Error(ctx, msg, nil, attrs...)
	case entity.LogWarning:
		logger.Warn(ctx, msg, attrs...)
	default:
		logger.Info(ctx, msg, attrs...)
	}

	if c.deps.Runs != nil {
		if err := c.deps.Runs.AppendLog(ctx, entry); err != nil {
			logger.Warn(ctx, "failed to persist run log", "error", err.Error())
		}
	}
	c.publish(ctx, &entity.RunEvent{Type: entity.RunEventLog, Log: entry})
}

func (c *Controller) emitProgress(ctx context.Context, job *entity.BatchJob) {
	ev := entity.NewProgressEvent(job)
	c.publish(ctx, &entity.RunEvent{Type: entity.RunEventProgress, Progress: &ev})
}

// publish 推送给本地订阅者，再尽力写入外部事件流
func (c *Controller) publish(ctx context.Context, ev *entity.RunEvent) {
	c.journal.Broadcast(ev)
	if c.deps.Publisher == nil {
		return
	}
	if err := c.deps.Publisher.PublishRunEvent(ctx, ev); err != nil {
		logger.Warn(ctx, "failed to publish run event", "type", string(ev.Type), "error", err.Error())
	}
}

func (c *Controller) saveRun(ctx context.Context, job *entity.BatchJob) {
	if c.deps.Runs == nil {
		return
	}
	if err := c.deps.Runs.Save(ctx, job); err != nil {
		logger.Warn(ctx, "failed to persist run snapshot", "error", err.Error())
	}
}
