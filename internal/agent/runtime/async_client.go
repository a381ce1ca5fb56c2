package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/config"

	"github.com/hibiken/asynq"
)

const (
	// TypeAgentTask 异步执行任务类型
	TypeAgentTask = "agent:task"
)

// AgentTaskPayload 异步任务载荷
type AgentTaskPayload struct {
	AgentID string         `json:"agent_id"`
	Task    map[string]any `json:"task"`
}

// AsyncClient 异步任务客户端
type AsyncClient struct {
	client *asynq.Client
}

// NewAsyncClient 创建异步客户端
func NewAsyncClient(redisCfg config.RedisConfig) *AsyncClient {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisCfg.Addr(),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	return &AsyncClient{client: client}
}

// EnqueueAgentTask 将执行任务加入队列，返回队列任务 ID
func (c *AsyncClient) EnqueueAgentTask(ctx context.Context, payload *AgentTaskPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TypeAgentTask, data)

	// 任务默认保留 1 小时，超时 10 分钟
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Retention(1*time.Hour),
		asynq.Timeout(10*time.Minute))
	if err != nil {
		return "", fmt.Errorf("任务入队失败: %w", err)
	}

	return info.ID, nil
}

// Close 关闭客户端
func (c *AsyncClient) Close() error {
	return c.client.Close()
}
