package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/pkg/response"
	"github.com/xiebiao/bookcatalog/pkg/tracing"
)

// HeaderRequestID 请求ID头，调用方传入时沿用
const HeaderRequestID = "X-Request-ID"

// slowRequest 超过该耗时记警告
const slowRequest = 3 * time.Second

// Logger 请求日志中间件
// 1. 生成或沿用请求ID，写回响应头
// 2. 派生带request_id的logger注入Context，handler通过response.LoggerFrom获取
// 3. 请求结束记录方法、路由、状态码、耗时
func Logger(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)

		fields := []zap.Field{zap.String("request_id", requestID)}
		if traceID := tracing.ExtractTraceID(c.Request.Context()); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
		reqLogger := base.With(fields...)
		c.Set(response.LoggerKey, reqLogger)

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		logFields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if svc := GetService(c); svc != "" {
			logFields = append(logFields, zap.String("service", svc))
		}
		if len(c.Errors) > 0 {
			logFields = append(logFields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case latency > slowRequest:
			reqLogger.Warn("slow request", logFields...)
		case c.Writer.Status() >= 500:
			reqLogger.Error("request completed", logFields...)
		default:
			reqLogger.Info("request completed", logFields...)
		}
	}
}
