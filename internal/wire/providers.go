// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"z-novel-batch/internal/application/batch"
	"z-novel-batch/internal/application/chapter"
	"z-novel-batch/internal/config"
	"z-novel-batch/internal/domain/repository"
	"z-novel-batch/internal/domain/service"
	"z-novel-batch/internal/infrastructure/messaging"
	"z-novel-batch/internal/infrastructure/novelapi"
	"z-novel-batch/internal/infrastructure/persistence/memory"
	"z-novel-batch/internal/infrastructure/persistence/redis"
	"z-novel-batch/internal/interfaces/http/handler"
	"z-novel-batch/internal/interfaces/http/middleware"
	"z-novel-batch/internal/interfaces/http/router"
	"z-novel-batch/pkg/logger"
)

// App HTTP 服务依赖容器
type App struct {
	Router      *router.Router
	Controller  *batch.Controller
	RedisClient *redis.Client
}

// Runner 命令行依赖容器
type Runner struct {
	Controller  *batch.Controller
	Generator   *chapter.Generator
	RedisClient *redis.Client
}

// ProvideBackendClient 提供小说后端客户端
func ProvideBackendClient(cfg *config.Config) *novelapi.Client {
	return novelapi.NewClient(&cfg.Backend)
}

// ProvideRedisClientOptional 提供 Redis 客户端；未启用或不可达时返回 nil，服务退化为内存模式
func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		logger.Info(ctx, "redis disabled, run history kept in memory")
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, run history kept in memory", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRunRepository 有 Redis 时使用 Redis 存储，否则使用内存存储
func ProvideRunRepository(client *redis.Client, cfg *config.Config) repository.BatchRunRepository {
	if client == nil {
		return memory.NewRunStore(cfg.Batch.HistoryLimit, cfg.Batch.LogLimit)
	}
	return redis.NewRunStore(client, cfg.Batch.HistoryLimit, cfg.Batch.LogLimit)
}

// ProvideOutlineCache 提供细纲缓存，没有 Redis 时为 nil
func ProvideOutlineCache(client *redis.Client, cfg *config.Config) *redis.OutlineCache {
	if client == nil {
		return nil
	}
	return redis.NewOutlineCache(client, cfg.Cache.OutlineTTL)
}

// ProvideOutlineCacheRepository 转换为控制器使用的接口，nil 保持为无类型 nil
func ProvideOutlineCacheRepository(cache *redis.OutlineCache) repository.OutlineCache {
	if cache == nil {
		return nil
	}
	return cache
}

// ProvideOutlineInvalidator 转换为处理器使用的接口
func ProvideOutlineInvalidator(cache *redis.OutlineCache) handler.OutlineInvalidator {
	if cache == nil {
		return nil
	}
	return cache
}

// ProvideEventPublisher 提供事件流发布者，未启用时为 nil
func ProvideEventPublisher(client *redis.Client, cfg *config.Config) service.EventPublisher {
	if client == nil || !cfg.Messaging.RedisStream.Enabled {
		return nil
	}
	stream := cfg.Messaging.RedisStream
	return messaging.NewProducer(client.Redis(), messaging.Stream(stream.Stream), int64(stream.MaxLen))
}

// ProvideControllerDeps 组装控制器依赖，后端客户端同时承担四个协作方
func ProvideControllerDeps(
	backend *novelapi.Client,
	runs repository.BatchRunRepository,
	cache repository.OutlineCache,
	publisher service.EventPublisher,
) batch.Deps {
	return batch.Deps{
		Inspector: backend,
		Outlines:  backend,
		Generator: backend,
		Persister: backend,
		Runs:      runs,
		Cache:     cache,
		Publisher: publisher,
	}
}

// ProvideController 提供批量生成控制器
func ProvideController(deps batch.Deps, cfg *config.Config) *batch.Controller {
	return batch.NewController(deps, batch.Options{
		Defaults:         batch.DefaultsFromConfig(cfg.Batch.Defaults),
		LogLimit:         cfg.Batch.LogLimit,
		SubscriberBuffer: cfg.Batch.SubscriberBuffer,
	})
}

// ProvideSingleGenerator 提供单章生成服务，批量运行中的小说会被拒绝
func ProvideSingleGenerator(backend *novelapi.Client, controller *batch.Controller) *chapter.Generator {
	return chapter.NewGenerator(backend, backend, controller, controller.Defaults())
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(backend *novelapi.Client, client *redis.Client, cfg *config.Config) *handler.HealthHandler {
	var redisChecker handler.HealthChecker
	if client != nil {
		redisChecker = client
	}
	return handler.NewHealthHandler(backend, redisChecker, cfg.App.Version)
}

// ProvideRateLimiter 提供限流器，没有 Redis 时不限流
func ProvideRateLimiter(client *redis.Client) middleware.RateLimiter {
	if client == nil {
		return nil
	}
	return redis.NewRateLimiter(client)
}
