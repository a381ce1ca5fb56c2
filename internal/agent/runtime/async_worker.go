package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backend/internal/agent"
	"backend/internal/config"
	"backend/internal/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// AsyncWorker 异步任务 Worker
// 从队列取出执行任务，加载 Agent 定义后交给 Tracker 执行
type AsyncWorker struct {
	server  *asynq.Server
	store   *agent.AgentStore
	tracker *Tracker
}

// NewAsyncWorker 创建 Worker
func NewAsyncWorker(redisCfg config.RedisConfig, concurrency int, store *agent.AgentStore, tracker *Tracker) *AsyncWorker {
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisCfg.Addr(),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	return &AsyncWorker{server: srv, store: store, tracker: tracker}
}

// Start 启动 Worker
func (w *AsyncWorker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAgentTask, w.HandleAgentTask)

	go func() {
		if err := w.server.Run(mux); err != nil {
			logger.Error("asynq server 退出", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止 Worker
func (w *AsyncWorker) Stop() {
	w.server.Shutdown()
}

// HandleAgentTask 处理异步执行任务
// Agent 已被删除时跳过重试；执行失败由 Tracker 落 failed 记录，不触发队列重试
func (w *AsyncWorker) HandleAgentTask(ctx context.Context, t *asynq.Task) error {
	var p AgentTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("解析任务载荷失败: %v: %w", err, asynq.SkipRetry)
	}

	def, err := w.store.Get(ctx, p.AgentID)
	if err != nil {
		if errors.Is(err, agent.ErrAgentNotFound) {
			logger.Warn("异步任务对应的 Agent 已删除，跳过", zap.String("agent_id", p.AgentID))
			return fmt.Errorf("agent 不存在: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("加载 Agent 失败: %w", err)
	}

	outcome, err := w.tracker.ExecuteTask(ctx, def, p.Task)
	if err != nil {
		return fmt.Errorf("执行任务失败: %w", err)
	}

	logger.Info("异步任务执行完成",
		zap.String("agent_id", p.AgentID),
		zap.String("execution_id", outcome.ExecutionID),
		zap.String("status", outcome.Status),
	)
	return nil
}
