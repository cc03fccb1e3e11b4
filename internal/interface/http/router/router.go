// Package router HTTP路由注册
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/interface/http/handler"
	"github.com/xiebiao/bookcatalog/internal/interface/http/middleware"
	"github.com/xiebiao/bookcatalog/pkg/jwt"
	"github.com/xiebiao/bookcatalog/pkg/metrics"
	"github.com/xiebiao/bookcatalog/pkg/response"
)

// Options 路由参数
type Options struct {
	Mode          string // debug | release | test
	EnableSwagger bool
}

// New 创建Gin引擎并注册全部路由
// 中间件顺序：Recovery → Tracing → Logger → Metrics → 业务Handler
func New(
	opts Options,
	logger *zap.Logger,
	bookHandler *handler.BookHandler,
	adminHandler *handler.AdminHandler,
	authMiddleware *middleware.AuthMiddleware,
) *gin.Engine {
	switch opts.Mode {
	case gin.ReleaseMode, gin.TestMode:
		gin.SetMode(opts.Mode)
	}

	r := gin.New()
	r.Use(
		middleware.Recovery(),
		middleware.Tracing(),
		middleware.Logger(logger),
		middleware.Metrics(),
	)

	// 健康检查
	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{
			"message": "pong",
			"status":  "healthy",
		})
	})

	// Prometheus指标
	metrics.InitMetrics()
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger文档，生产环境关闭
	if opts.EnableSwagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group("/api/v1")
	{
		// 图书模块：读接口公开，写接口需要ingest权限
		books := v1.Group("/books")
		{
			books.GET("/search", bookHandler.Search)
			books.GET("/:id", bookHandler.Get)
			books.GET("/:id/editions", bookHandler.Editions)
			books.GET("/:id/external-ids", bookHandler.ExternalIDs)
			books.POST("", authMiddleware.RequireScope(jwt.ScopeIngest), bookHandler.Ingest)
		}

		v1.GET("/external-ids/:source/:external_id", bookHandler.ResolveExternalID)

		// 运维接口
		v1.POST("/backfill", authMiddleware.RequireScope(jwt.ScopeBackfill), adminHandler.ScheduleBackfill)
		v1.POST("/bestsellers/sync", authMiddleware.RequireScope(jwt.ScopeSync), adminHandler.SyncBestsellers)

		tokens := v1.Group("/tokens")
		tokens.Use(authMiddleware.RequireScope(jwt.ScopeAdmin))
		{
			tokens.POST("", adminHandler.IssueToken)
			tokens.POST("/revoke", adminHandler.RevokeToken)
		}
	}

	return r
}
