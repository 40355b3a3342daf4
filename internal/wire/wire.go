//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"z-novel-batch/internal/config"
	"z-novel-batch/internal/interfaces/http/handler"
	"z-novel-batch/internal/interfaces/http/router"
)

// InitializeApp 初始化 HTTP 服务
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		StorageSet,
		BatchSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeRunner 初始化命令行运行所需依赖（不含 HTTP）
func InitializeRunner(ctx context.Context, cfg *config.Config) (*Runner, func(), error) {
	wire.Build(
		StorageSet,
		BatchSet,
		wire.Struct(new(Runner), "*"),
	)
	return nil, nil, nil
}

// StorageSet Redis 与运行记录存储提供者集合
var StorageSet = wire.NewSet(
	ProvideRedisClientOptional,
	ProvideRunRepository,
	ProvideOutlineCache,
	ProvideOutlineCacheRepository,
	ProvideEventPublisher,
)

// BatchSet 批量生成提供者集合
var BatchSet = wire.NewSet(
	ProvideBackendClient,
	ProvideControllerDeps,
	ProvideController,
	ProvideSingleGenerator,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideOutlineInvalidator,
	ProvideRateLimiter,
	ProvideHealthHandler,
	handler.NewBatchHandler,
	handler.NewChapterHandler,
	handler.NewNovelHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
