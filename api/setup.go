package api

import (
	"backend/api/handlers/agents"
	"backend/api/handlers/templates"
	"backend/internal/agent"
	"backend/internal/agent/runtime"
	"backend/internal/config"
	"backend/internal/logger"
	"backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Resources 路由装配产物中需要由调用方管理生命周期的部分
type Resources struct {
	AsyncClient *runtime.AsyncClient
	AsyncWorker *runtime.AsyncWorker
}

// Close 释放资源
func (r *Resources) Close() {
	if r.AsyncWorker != nil {
		r.AsyncWorker.Stop()
	}
	if r.AsyncClient != nil {
		if err := r.AsyncClient.Close(); err != nil {
			logger.Warn("关闭异步客户端失败")
		}
	}
}

// SetupRouter 装配全部服务与路由
// rdb 为 nil 时统计缓存与异步队列自动停用，同步接口不受影响
func SetupRouter(cfg *config.Config, db *gorm.DB, rdb redis.UniversalClient) (*gin.Engine, *Resources) {
	agentStore := agent.NewAgentStore(db)
	templateStore := agent.NewTemplateStore(db)
	factory := agent.NewAgentFactory(agentStore, templateStore, rdb)
	tracker := runtime.NewTracker(db, nil)

	res := &Resources{}
	if rdb != nil {
		res.AsyncClient = runtime.NewAsyncClient(cfg.Redis)
		if cfg.Worker.Enabled {
			res.AsyncWorker = runtime.NewAsyncWorker(cfg.Redis, cfg.Worker.Concurrency, agentStore, tracker)
		}
	} else {
		logger.Warn("Redis 未连接，异步任务队列停用")
	}

	agentHandler := agents.NewAgentHandler(factory)
	executeHandler := agents.NewExecuteHandler(factory, tracker, res.AsyncClient)
	templateHandler := templates.NewTemplateHandler(templateStore)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/agents", agentHandler.CreateAgent)
		apiGroup.GET("/agents", agentHandler.ListAgents)
		apiGroup.POST("/agents/from-template", agentHandler.CreateFromTemplate)
		apiGroup.GET("/agents/:id", agentHandler.GetAgent)
		apiGroup.PATCH("/agents/:id", agentHandler.UpdateAgent)
		apiGroup.DELETE("/agents/:id", agentHandler.DeleteAgent)

		apiGroup.POST("/agents/:id/execute", executeHandler.ExecuteTask)
		apiGroup.POST("/agents/:id/run", executeHandler.RunTaskAsync)
		apiGroup.GET("/agents/:id/executions", executeHandler.GetHistory)
		apiGroup.POST("/executions/:id/cancel", executeHandler.CancelExecution)

		apiGroup.GET("/templates", templateHandler.ListTemplates)

		apiGroup.GET("/stats/agents", agentHandler.GetAgentStats)
		apiGroup.GET("/stats/runtime", executeHandler.GetRuntimeStats)
	}

	return router, res
}
