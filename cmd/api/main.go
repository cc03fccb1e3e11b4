// @title           图书目录服务API
// @version         1.0
// @description     规范图书目录：多数据源写入、作品聚类、搜索去重、外部标识反查
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	_ "github.com/xiebiao/bookcatalog/docs"
	appauth "github.com/xiebiao/bookcatalog/internal/application/auth"
	appbackfill "github.com/xiebiao/bookcatalog/internal/application/backfill"
	appbook "github.com/xiebiao/bookcatalog/internal/application/book"
	"github.com/xiebiao/bookcatalog/internal/infrastructure/config"
	"github.com/xiebiao/bookcatalog/internal/infrastructure/persistence/sqlstore"
	"github.com/xiebiao/bookcatalog/internal/interface/http/handler"
	"github.com/xiebiao/bookcatalog/pkg/jwt"
	"github.com/xiebiao/bookcatalog/pkg/logger"
	"github.com/xiebiao/bookcatalog/pkg/tracing"
)

// main 主程序入口
// 两种运行方式：
// 1. 默认启动HTTP服务和后台任务（回填工作池、发件箱投递、缓存失效消费、榜单定时同步）
// 2. -issue-token 签发一个服务令牌后退出，用于首次部署时获取catalog:admin令牌
func main() {
	configPath := flag.String("config", "", "配置文件路径，默认查找./config/config.yaml")
	issueFor := flag.String("issue-token", "", "为指定服务签发令牌后退出")
	scopes := flag.String("scopes", jwt.ScopeAdmin, "签发令牌的scope，逗号分隔")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 初始化日志
	zlog, err := logger.New(logger.Options{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		Output:       cfg.Log.Output,
		EnableCaller: cfg.Log.EnableCaller,
	})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *issueFor != "" {
		if err := issueToken(ctx, cfg, zlog, *issueFor, *scopes); err != nil {
			zlog.Fatal("issue token failed", zap.Error(err))
		}
		return
	}

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("service exited with error", zap.Error(err))
	}
	zlog.Info("service stopped")
}

func run(ctx context.Context, cfg *config.Config, zlog *zap.Logger) error {
	// 3. 链路追踪（可选）
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				zlog.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	// 4. 组装依赖
	app, cleanup, err := initializeApp(cfg, zlog)
	if err != nil {
		return err
	}
	defer cleanup()

	zlog.Info("bookcatalog starting",
		zap.Int("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.Mode),
		zap.String("database", cfg.Database.Driver),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("rabbitmq", cfg.RabbitMQ.Enabled))

	// 5. 运行到收到退出信号
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// initializeApp 手动依赖注入，与wire.go中的InitializeApp声明一致
// 依赖链：Repository ← Service ← UseCase ← Handler ← Router
func initializeApp(cfg *config.Config, zlog *zap.Logger) (*App, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// 基础设施层
	db, closeDB, err := provideDB(cfg, zlog)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeDB)

	redisClient, closeRedis, err := provideRedis(cfg, zlog)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeRedis)

	txManager := sqlstore.NewTxManager(db)
	gate := sqlstore.NewIdentityGate(db)
	bookRepo := sqlstore.NewBookRepository(db)
	extIDRepo := sqlstore.NewExternalIDRepository(db)
	clusterStore := sqlstore.NewClusterStore(db)
	outboxStore := sqlstore.NewOutboxStore(db)
	searchStore := sqlstore.NewSearchStore(db)

	extIDCache := provideExternalIDCache(cfg, redisClient, extIDRepo, zlog)
	bookCache := provideBookCache(cfg, redisClient)
	denylist := provideTokenDenylist(redisClient)

	registry := provideRegistry(cfg, zlog)
	feed := provideBestsellerFeed(cfg, zlog)
	queue := provideQueue(cfg)

	// 领域层
	clusterer := provideClusterer(cfg, clusterStore, bookRepo, gate, zlog)
	bookService := provideBookService(cfg, txManager, gate, bookRepo, extIDRepo, extIDCache, clusterStore, outboxStore, clusterer, zlog)
	dedup := provideDeduplicator(clusterStore, zlog)

	// 应用层
	ingestUseCase := appbook.NewIngestBookUseCase(bookService)
	searchUseCase := appbook.NewSearchBooksUseCase(searchStore, dedup, queue, zlog)
	getUseCase := provideGetBookUseCase(bookService, bookCache, zlog)
	editionsUseCase := appbook.NewListEditionsUseCase(bookService)
	externalIDsUseCase := appbook.NewExternalIDsUseCase(bookService)
	scheduleUseCase := appbackfill.NewScheduleUseCase(queue)
	syncUseCase := provideSyncUseCase(cfg, feed, bookService, queue, zlog)
	jwtManager := provideJWTManager(cfg)
	tokenUseCase := provideTokenUseCase(cfg, jwtManager, denylist, zlog)
	pool := providePool(cfg, queue, registry, bookService, zlog)

	dispatcher, closePublisher, err := provideDispatcher(cfg, outboxStore, zlog)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closePublisher)

	invalidator := provideInvalidator(bookCache, zlog)
	consumer, closeConsumer, err := provideConsumer(cfg, invalidator, zlog)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeConsumer)

	// 接口层
	bookHandler := handler.NewBookHandler(ingestUseCase, searchUseCase, getUseCase, editionsUseCase, externalIDsUseCase)
	adminHandler := handler.NewAdminHandler(scheduleUseCase, syncUseCase, tokenUseCase)
	authMiddleware := provideAuthMiddleware(jwtManager, denylist)
	engine := provideEngine(cfg, zlog, bookHandler, adminHandler, authMiddleware)
	server := provideServer(cfg, engine)

	return newApp(cfg, zlog, server, pool, syncUseCase, dispatcher, consumer, invalidator), cleanup, nil
}

// issueToken 离线签发令牌，不依赖数据库和Redis
func issueToken(ctx context.Context, cfg *config.Config, zlog *zap.Logger, service, scopeList string) error {
	uc := appauth.NewTokenUseCase(provideJWTManager(cfg), nil, cfg.JWT.TokenExpire, zlog)
	var scopes []string
	for _, s := range strings.Split(scopeList, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	issued, err := uc.Issue(ctx, appauth.IssueRequest{Service: service, Scopes: scopes, IssuedBy: "cli"})
	if err != nil {
		return err
	}
	fmt.Printf("token_id:   %s\nexpires_at: %s\ntoken:      %s\n",
		issued.TokenID, issued.ExpiresAt.Format("2006-01-02 15:04:05"), issued.Token)
	return nil
}
