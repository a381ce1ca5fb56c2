package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentfactory_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentfactory_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Agent 执行指标
var (
	// AgentExecutionsTotal Agent 任务执行总数
	AgentExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentfactory_agent_executions_total",
			Help: "Agent 任务执行总数",
		},
		[]string{"role", "status"},
	)

	// AgentExecutionDuration Agent 任务执行耗时（秒）
	AgentExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentfactory_agent_execution_duration_seconds",
			Help:    "Agent 任务执行耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"role"},
	)

	// AgentsCreatedTotal Agent 创建总数
	AgentsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentfactory_agents_created_total",
			Help: "Agent 创建总数",
		},
		[]string{"role"},
	)
)
