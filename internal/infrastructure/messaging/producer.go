package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-novel-batch/internal/domain/entity"
	"z-novel-batch/pkg/metrics"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者，实现 service.EventPublisher
type Producer struct {
	client *redis.Client
	stream Stream
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, stream Stream, maxLen int64) *Producer {
	if stream == "" {
		stream = StreamBatchEvents
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Producer{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Publish 发布消息到流
func (p *Producer) Publish(ctx context.Context, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(p.stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(p.stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishRunEvent 发布运行事件
func (p *Producer) PublishRunEvent(ctx context.Context, ev *entity.RunEvent) error {
	msgType, runID, novelID := describeEvent(ev)

	msg, err := NewMessage(uuid.New().String(), msgType, runID, novelID, ev)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(msgType, "error").Inc()
		return err
	}
	if ev.Log != nil {
		msg.SetMetadata("level", string(ev.Log.Level))
	}

	if _, err := p.Publish(ctx, msg); err != nil {
		metrics.EventsPublished.WithLabelValues(msgType, "error").Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues(msgType, "success").Inc()
	return nil
}

func describeEvent(ev *entity.RunEvent) (msgType, runID, novelID string) {
	switch ev.Type {
	case entity.RunEventLog:
		msgType = TypeRunLog
	case entity.RunEventProgress:
		msgType = TypeRunProgress
	case entity.RunEventFinished:
		msgType = TypeRunFinished
	default:
		msgType = "batch." + string(ev.Type)
	}

	switch {
	case ev.Job != nil:
		runID, novelID = ev.Job.RunID, ev.Job.NovelID
	case ev.Progress != nil:
		runID = ev.Progress.RunID
	case ev.Log != nil:
		runID = ev.Log.RunID
	}
	return msgType, runID, novelID
}
