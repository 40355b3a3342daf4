package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"z-novel-batch/pkg/logger"
	"z-novel-batch/pkg/metrics"
)

const defaultOutlineTTL = time.Hour

// OutlineCache 细纲读穿缓存
// 只缓存非空细纲；读取失败与空细纲都不写入，回退细纲由调用方生成
type OutlineCache struct {
	client *Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewOutlineCache 创建细纲缓存
func NewOutlineCache(client *Client, ttl time.Duration) *OutlineCache {
	if ttl <= 0 {
		ttl = defaultOutlineTTL
	}
	return &OutlineCache{client: client, ttl: ttl}
}

func outlineKey(novelID string, chapterIndex int) string {
	return fmt.Sprintf("outline:%s:%d", novelID, chapterIndex)
}

// GetOrLoad 命中直接返回；未命中通过 singleflight 调用 loader
// Redis 自身故障只记录日志，不影响细纲读取
func (c *OutlineCache) GetOrLoad(ctx context.Context, novelID string, chapterIndex int, loader func(context.Context) (string, error)) (string, error) {
	key := outlineKey(novelID, chapterIndex)
	ctx, span := tracer.Start(ctx, "cache.OutlineGetOrLoad",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		metrics.OutlineCacheTotal.WithLabelValues("hit").Inc()
		return val, nil
	case IsNil(err):
		metrics.OutlineCacheTotal.WithLabelValues("miss").Inc()
	default:
		span.RecordError(err)
		metrics.OutlineCacheTotal.WithLabelValues("error").Inc()
		logger.Warn(ctx, "outline cache read failed", "key", key, "error", err.Error())
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		text, err := loader(ctx)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return text, nil
		}
		if err := c.client.rdb.Set(ctx, key, text, c.ttl).Err(); err != nil {
			// 缓存写入失败不影响返回结果
			span.RecordError(err)
		}
		return text, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))

	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate 删除某章缓存，细纲被修改后调用
func (c *OutlineCache) Invalidate(ctx context.Context, novelID string, chapterIndex int) error {
	return c.client.rdb.Del(ctx, outlineKey(novelID, chapterIndex)).Err()
}
