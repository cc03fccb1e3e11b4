package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	appauth "github.com/xiebiao/bookcatalog/internal/application/auth"
	appbackfill "github.com/xiebiao/bookcatalog/internal/application/backfill"
	appbestseller "github.com/xiebiao/bookcatalog/internal/application/bestseller"
	appbook "github.com/xiebiao/bookcatalog/internal/application/book"
	"github.com/xiebiao/bookcatalog/internal/application/event"
	"github.com/xiebiao/bookcatalog/internal/domain/backfill"
	"github.com/xiebiao/bookcatalog/internal/domain/book"
	"github.com/xiebiao/bookcatalog/internal/domain/search"
	"github.com/xiebiao/bookcatalog/internal/infrastructure/config"
	"github.com/xiebiao/bookcatalog/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/bookcatalog/internal/infrastructure/persistence/sqlstore"
	"github.com/xiebiao/bookcatalog/internal/infrastructure/provider"
	"github.com/xiebiao/bookcatalog/internal/interface/http/handler"
	"github.com/xiebiao/bookcatalog/internal/interface/http/middleware"
	"github.com/xiebiao/bookcatalog/internal/interface/http/router"
	"github.com/xiebiao/bookcatalog/pkg/jwt"
	"github.com/xiebiao/bookcatalog/pkg/mq"
	"github.com/xiebiao/bookcatalog/pkg/throttle"
)

// App 进程内所有长期运行的组件
// dispatcher、consumer在对应功能关闭时为nil
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	server      *http.Server
	pool        *appbackfill.Pool
	sync        *appbestseller.SyncUseCase
	dispatcher  *event.Dispatcher
	consumer    *mq.Consumer
	invalidator *event.CacheInvalidator
}

func newApp(
	cfg *config.Config,
	logger *zap.Logger,
	server *http.Server,
	pool *appbackfill.Pool,
	sync *appbestseller.SyncUseCase,
	dispatcher *event.Dispatcher,
	consumer *mq.Consumer,
	invalidator *event.CacheInvalidator,
) *App {
	return &App{
		cfg:         cfg,
		logger:      logger,
		server:      server,
		pool:        pool,
		sync:        sync,
		dispatcher:  dispatcher,
		consumer:    consumer,
		invalidator: invalidator,
	}
}

// Run 启动HTTP服务和后台任务，阻塞到ctx取消或任一组件出错
// ctx取消后HTTP服务在ShutdownTimeout内优雅退出
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP服务异常退出: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error { return a.pool.Run(ctx) })

	if a.dispatcher != nil {
		g.Go(func() error { return a.dispatcher.Run(ctx) })
	}
	if a.consumer != nil && a.invalidator != nil {
		g.Go(func() error { return a.consumer.Consume(ctx, a.invalidator.Handle) })
	}
	if every := a.cfg.Bestseller.SyncEvery; every > 0 {
		g.Go(func() error { return a.sync.Run(ctx, every) })
	}

	return g.Wait()
}

// ========================================
// Providers
// ========================================
// 可选组件（Redis、MQ）关闭时返回nil，下游Provider负责判空

func provideDB(cfg *config.Config, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := sqlstore.NewDB(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

func provideRedis(cfg *config.Config, logger *zap.Logger) (*goredis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		logger.Info("redis disabled, caches and token revocation are off")
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	defer cancel()
	client, err := redis.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

func provideExternalIDCache(cfg *config.Config, client *goredis.Client, repo book.ExternalIDRepository, logger *zap.Logger) *redis.ExternalIDCache {
	if client == nil {
		return nil
	}
	return redis.NewExternalIDCache(client, repo, cfg.Redis.ExternalIDTTL, logger)
}

// provideBookCache 详情缓存只能靠book.upserted事件失效，没有消息队列时不启用
func provideBookCache(cfg *config.Config, client *goredis.Client) *redis.BookCache {
	if client == nil || !cfg.RabbitMQ.Enabled {
		return nil
	}
	return redis.NewBookCache(client, cfg.Redis.BookTTL)
}

func provideTokenDenylist(client *goredis.Client) *redis.TokenDenylist {
	if client == nil {
		return nil
	}
	return redis.NewTokenDenylist(client)
}

func provideClusterer(
	cfg *config.Config,
	clusters *sqlstore.ClusterStore,
	books book.Repository,
	gate book.IdentityGate,
	logger *zap.Logger,
) *book.Clusterer {
	return book.NewClusterer(clusters, books, gate, cfg.Clustering.PromoteFirstMember, logger)
}

func provideBookService(
	cfg *config.Config,
	tx *sqlstore.TxManager,
	gate book.IdentityGate,
	books book.Repository,
	extIDs book.ExternalIDRepository,
	extIDCache *redis.ExternalIDCache,
	clusters *sqlstore.ClusterStore,
	outbox *sqlstore.OutboxStore,
	clusterer *book.Clusterer,
	logger *zap.Logger,
) book.Service {
	deps := book.Deps{
		Tx:          tx,
		Gate:        gate,
		Books:       books,
		ExternalIDs: extIDs,
		Clusters:    clusters,
		Outbox:      outbox,
		Clusterer:   clusterer,
	}
	// 接口字段不能接收nil指针
	if extIDCache != nil {
		deps.Index = extIDCache
	}
	return book.NewService(deps, book.Options{TxTimeout: cfg.Database.TxTimeout}, logger)
}

func provideRegistry(cfg *config.Config, logger *zap.Logger) provider.Registry {
	p := cfg.Providers
	return provider.NewRegistry(
		provider.NewGoogleBooks(p.GoogleBooks.BaseURL, p.GoogleBooks.APIKey, p.GoogleBooks.RPS, p.Timeout, logger),
		provider.NewOpenLibrary(p.OpenLibrary.BaseURL, p.OpenLibrary.CoverURL, p.OpenLibrary.RPS, p.Timeout, logger),
	)
}

func provideBestsellerFeed(cfg *config.Config, logger *zap.Logger) appbestseller.Feed {
	f := cfg.Providers.Bestseller
	return provider.NewBestsellerFeed(f.URL, f.APIKey, f.List, f.RPS, cfg.Providers.Timeout, logger)
}

func provideQueue(cfg *config.Config) *backfill.Queue {
	return backfill.NewQueue(cfg.Backfill.QueueCapacity)
}

func providePool(cfg *config.Config, queue *backfill.Queue, registry provider.Registry, svc book.Service, logger *zap.Logger) *appbackfill.Pool {
	return appbackfill.NewPool(queue, registry, svc, appbackfill.Options{
		Workers:      cfg.Backfill.Workers,
		MaxAttempts:  cfg.Backfill.MaxAttempts,
		RetryBackoff: cfg.Backfill.RetryBackoff,
	}, logger)
}

func provideDeduplicator(clusters *sqlstore.ClusterStore, logger *zap.Logger) *search.Deduplicator {
	return search.NewDeduplicator(clusters, logger)
}

func provideGetBookUseCase(svc book.Service, cache *redis.BookCache, logger *zap.Logger) *appbook.GetBookUseCase {
	if cache == nil {
		return appbook.NewGetBookUseCase(svc, nil, logger)
	}
	return appbook.NewGetBookUseCase(svc, cache, logger)
}

func provideSyncUseCase(
	cfg *config.Config,
	feed appbestseller.Feed,
	svc book.Service,
	queue *backfill.Queue,
	logger *zap.Logger,
) *appbestseller.SyncUseCase {
	return appbestseller.NewSyncUseCase(feed, svc, queue, throttle.New(cfg.Bestseller.MinInterval), logger)
}

func provideJWTManager(cfg *config.Config) *jwt.Manager {
	return jwt.NewManager(cfg.JWT.Secret, cfg.JWT.TokenExpire, cfg.JWT.Issuer)
}

func provideTokenUseCase(cfg *config.Config, manager *jwt.Manager, denylist *redis.TokenDenylist, logger *zap.Logger) *appauth.TokenUseCase {
	if denylist == nil {
		return appauth.NewTokenUseCase(manager, nil, cfg.JWT.TokenExpire, logger)
	}
	return appauth.NewTokenUseCase(manager, denylist, cfg.JWT.TokenExpire, logger)
}

func provideAuthMiddleware(manager *jwt.Manager, denylist *redis.TokenDenylist) *middleware.AuthMiddleware {
	if denylist == nil {
		return middleware.NewAuthMiddleware(manager, nil)
	}
	return middleware.NewAuthMiddleware(manager, denylist)
}

func provideEngine(
	cfg *config.Config,
	logger *zap.Logger,
	bookHandler *handler.BookHandler,
	adminHandler *handler.AdminHandler,
	authMiddleware *middleware.AuthMiddleware,
) *gin.Engine {
	return router.New(router.Options{
		Mode:          cfg.Server.Mode,
		EnableSwagger: cfg.Server.Mode != gin.ReleaseMode,
	}, logger, bookHandler, adminHandler, authMiddleware)
}

func provideServer(cfg *config.Config, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// provideDispatcher 发件箱投递需要同时开启outbox和rabbitmq
func provideDispatcher(cfg *config.Config, outbox *sqlstore.OutboxStore, logger *zap.Logger) (*event.Dispatcher, func(), error) {
	if !cfg.Outbox.Enabled || !cfg.RabbitMQ.Enabled {
		logger.Info("outbox dispatcher disabled",
			zap.Bool("outbox", cfg.Outbox.Enabled),
			zap.Bool("rabbitmq", cfg.RabbitMQ.Enabled))
		return nil, func() {}, nil
	}
	publisher, err := mq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, "topic", logger)
	if err != nil {
		return nil, nil, err
	}
	dispatcher := event.NewDispatcher(outbox, publisher, event.DispatcherOptions{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, logger)
	return dispatcher, func() { _ = publisher.Close() }, nil
}

// provideInvalidator 只有开启Redis时才有缓存需要失效
func provideInvalidator(bookCache *redis.BookCache, logger *zap.Logger) *event.CacheInvalidator {
	if bookCache == nil {
		return nil
	}
	return event.NewCacheInvalidator(bookCache, logger)
}

func provideConsumer(cfg *config.Config, invalidator *event.CacheInvalidator, logger *zap.Logger) (*mq.Consumer, func(), error) {
	if invalidator == nil || !cfg.RabbitMQ.Enabled {
		return nil, func() {}, nil
	}
	consumer, err := mq.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, "topic",
		cfg.RabbitMQ.Queue, []string{"book.*"}, logger)
	if err != nil {
		return nil, nil, err
	}
	return consumer, func() { _ = consumer.Close() }, nil
}
