package handler

import (
	"io"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"z-novel-batch/internal/domain/entity"
	"z-novel-batch/internal/interfaces/http/dto"
	apperrors "z-novel-batch/pkg/errors"
)

// StreamEvents 以 SSE 推送当前运行的事件
// 日志事件的 id 为 seq，断线重连时按 Last-Event-ID 补发缺失的日志
// @Summary 订阅运行事件
// @Description SSE 事件类型：progress、log、finished、heartbeat
// @Tags Batches
// @Produce text/event-stream
// @Param since query int false "起始 seq（不含）"
// @Success 200 "SSE stream"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/batches/current/events [get]
func (h *BatchHandler) StreamEvents(c *gin.Context) {
	// 先订阅再读取快照和补发，避免两者之间的事件丢失
	events, unsubscribe := h.controller.Subscribe()
	defer unsubscribe()

	snap := h.controller.Snapshot()
	if snap == nil {
		dto.AppError(c, apperrors.ErrNoActiveRun)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	lastSeq := dto.BindSince(c)
	writeEvent(c, &entity.RunEvent{Type: entity.RunEventProgress, Progress: progressOf(snap)})
	for _, entry := range h.controller.Logs(lastSeq) {
		writeEvent(c, &entity.RunEvent{Type: entity.RunEventLog, Log: entry})
		lastSeq = entry.Seq
	}

	if snap.Status.IsTerminal() {
		writeEvent(c, &entity.RunEvent{Type: entity.RunEventFinished, Job: snap})
		return
	}

	heartbeat := time.NewTicker(h.heartbeatInterval())
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if ev.Type == entity.RunEventLog && ev.Log != nil {
				if ev.Log.Seq <= lastSeq {
					return true
				}
				lastSeq = ev.Log.Seq
			}
			writeEvent(c, ev)
			return ev.Type != entity.RunEventFinished

		case t := <-heartbeat.C:
			// 订阅缓冲区满时 finished 可能被丢弃，心跳时补查一次
			if cur := h.controller.Snapshot(); cur != nil && cur.RunID == snap.RunID && cur.Status.IsTerminal() {
				writeEvent(c, &entity.RunEvent{Type: entity.RunEventFinished, Job: cur})
				return false
			}
			c.Render(-1, sse.Event{Event: "heartbeat", Data: gin.H{"time": t.UTC()}})
			return true

		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *BatchHandler) heartbeatInterval() time.Duration {
	if h.heartbeat > 0 {
		return h.heartbeat
	}
	return 15 * time.Second
}

// writeEvent 按事件类型写出一条 SSE 消息
func writeEvent(c *gin.Context, ev *entity.RunEvent) {
	switch ev.Type {
	case entity.RunEventLog:
		c.Render(-1, sse.Event{
			Id:    strconv.FormatInt(ev.Log.Seq, 10),
			Event: string(ev.Type),
			Data:  ev.Log,
		})
	case entity.RunEventProgress:
		c.Render(-1, sse.Event{Event: string(ev.Type), Data: ev.Progress})
	case entity.RunEventFinished:
		c.Render(-1, sse.Event{Event: string(ev.Type), Data: dto.ToBatchJobResponse(ev.Job)})
	}
	c.Writer.Flush()
}

func progressOf(job *entity.BatchJob) *entity.ProgressEvent {
	p := entity.NewProgressEvent(job)
	return &p
}
