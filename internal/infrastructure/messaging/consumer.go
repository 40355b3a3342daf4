package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-novel-batch/pkg/logger"
)

// MessageHandler 消息处理函数，返回错误时停止读取
type MessageHandler func(ctx context.Context, msg *Message) error

// Tailer 只读跟随事件流，不使用消费者组，也不确认消息
type Tailer struct {
	client       *redis.Client
	stream       Stream
	blockTimeout time.Duration
	count        int64
}

// TailerConfig 跟随配置
type TailerConfig struct {
	Stream       Stream
	BlockTimeout time.Duration
	Count        int64
}

// NewTailer 创建事件流跟随器
func NewTailer(client *redis.Client, cfg TailerConfig) *Tailer {
	if cfg.Stream == "" {
		cfg.Stream = StreamBatchEvents
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 50
	}
	return &Tailer{
		client:       client,
		stream:       cfg.Stream,
		blockTimeout: cfg.BlockTimeout,
		count:        cfg.Count,
	}
}

// Run 从 fromID 之后开始读取，直到 ctx 结束或 handler 返回错误
// fromID 为 "$" 表示只读新消息，"0" 表示从头读取
func (t *Tailer) Run(ctx context.Context, fromID string, handler MessageHandler) error {
	if fromID == "" {
		fromID = "$"
	}
	log := logger.FromContext(ctx)
	log.Info("stream tailer started", "stream", t.stream, "from", fromID)

	lastID := fromID
	for {
		select {
		case <-ctx.Done():
			log.Info("stream tailer stopped")
			return nil
		default:
		}

		streams, err := t.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{string(t.stream), lastID},
			Count:   t.count,
			Block:   t.blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, xmsg := range stream.Messages {
				lastID = xmsg.ID
				if err := t.processMessage(ctx, xmsg, handler); err != nil {
					return err
				}
			}
		}
	}
}

// processMessage 解码并交给 handler；格式错误的消息跳过
func (t *Tailer) processMessage(ctx context.Context, xmsg redis.XMessage, handler MessageHandler) error {
	ctx, span := tracer.Start(ctx, "tailer.processMessage",
		trace.WithAttributes(
			attribute.String("stream", string(t.stream)),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	dataStr, ok := xmsg.Values["data"].(string)
	if !ok {
		logger.FromContext(ctx).Warn("invalid message format", "message_id", xmsg.ID)
		return nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(dataStr), &msg); err != nil {
		logger.FromContext(ctx).Warn("failed to unmarshal message", "error", err.Error(), "message_id", xmsg.ID)
		return nil
	}

	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
		attribute.String("run_id", msg.RunID),
	)

	if err := handler(ctx, &msg); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
