//go:build wireinject
// +build wireinject

// Wire依赖注入配置文件
//
// 说明：
// 1. main.go中的initializeApp是手写版本，与本文件声明的依赖图一致
// 2. 修改依赖关系后运行 `wire gen ./cmd/api` 可生成等价的wire_gen.go
// 3. 可选组件（Redis、MQ）的Provider在关闭时返回nil，由下游Provider判空

package main

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	appbackfill "github.com/xiebiao/bookcatalog/internal/application/backfill"
	appbook "github.com/xiebiao/bookcatalog/internal/application/book"
	"github.com/xiebiao/bookcatalog/internal/domain/search"
	"github.com/xiebiao/bookcatalog/internal/infrastructure/config"
	"github.com/xiebiao/bookcatalog/internal/infrastructure/persistence/sqlstore"
	"github.com/xiebiao/bookcatalog/internal/interface/http/handler"
)

// infrastructureSet 数据库、Redis及缓存
var infrastructureSet = wire.NewSet(
	provideDB,
	provideRedis,
	provideExternalIDCache,
	provideBookCache,
	provideTokenDenylist,
)

// repositorySet 仓储与锁
var repositorySet = wire.NewSet(
	sqlstore.NewTxManager,
	sqlstore.NewIdentityGate,
	sqlstore.NewBookRepository,
	sqlstore.NewExternalIDRepository,
	sqlstore.NewClusterStore,
	sqlstore.NewOutboxStore,
	sqlstore.NewSearchStore,
	wire.Bind(new(search.LexicalSearcher), new(*sqlstore.SearchStore)),
)

// providerSet 外部数据源与回填队列
var providerSet = wire.NewSet(
	provideRegistry,
	provideBestsellerFeed,
	provideQueue,
)

// domainSet 领域服务
var domainSet = wire.NewSet(
	provideClusterer,
	provideBookService,
	provideDeduplicator,
)

// applicationSet 用例与后台任务
var applicationSet = wire.NewSet(
	appbook.NewIngestBookUseCase,
	appbook.NewSearchBooksUseCase,
	provideGetBookUseCase,
	appbook.NewListEditionsUseCase,
	appbook.NewExternalIDsUseCase,
	appbackfill.NewScheduleUseCase,
	provideSyncUseCase,
	provideJWTManager,
	provideTokenUseCase,
	providePool,
	provideDispatcher,
	provideInvalidator,
	provideConsumer,
)

// interfaceSet HTTP层
var interfaceSet = wire.NewSet(
	handler.NewBookHandler,
	handler.NewAdminHandler,
	provideAuthMiddleware,
	provideEngine,
	provideServer,
)

// InitializeApp 组装整个应用，cleanup按创建的逆序释放连接
func InitializeApp(cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(
		infrastructureSet,
		repositorySet,
		providerSet,
		domainSet,
		applicationSet,
		interfaceSet,
		newApp,
	)
	return nil, nil, nil
}
