package api

import (
	"net/http"
	"strings"
	"time"

	"backend/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger 请求日志中间件
// 路径与查询串在处理前捕获，处理器可能改写 c.Request
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Info("HTTP 请求", fields...)
	}
}

// corsPolicy 启动时从环境变量解析一次，热路径只做查表
type corsPolicy struct {
	origins []string
	headers string
	methods string
}

func loadCORSPolicy() corsPolicy {
	headers := getEnvList("CORS_ALLOW_HEADERS")
	if len(headers) == 0 {
		headers = []string{
			"Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization",
			"Accept", "Origin", "Cache-Control", "X-Requested-With",
		}
	}
	methods := getEnvList("CORS_ALLOW_METHODS")
	if len(methods) == 0 {
		methods = []string{http.MethodPost, http.MethodOptions, http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch}
	}
	return corsPolicy{
		origins: getEnvList("CORS_ALLOW_ORIGINS"),
		headers: strings.Join(headers, ", "),
		methods: strings.Join(methods, ", "),
	}
}

// CORS 跨域中间件
// CORS_ALLOW_ORIGINS 未设置时放行所有来源（开发默认）
func CORS() gin.HandlerFunc {
	policy := loadCORSPolicy()

	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")

		switch {
		case len(policy.origins) == 0:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && stringInSlice(origin, policy.origins):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
		}

		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", policy.headers)
		h.Set("Access-Control-Allow-Methods", policy.methods)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
