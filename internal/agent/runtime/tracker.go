package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/agent"
	"backend/internal/logger"
	"backend/internal/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrExecutionNotFound 执行记录不存在
var ErrExecutionNotFound = errors.New("执行记录不存在")

// tracer 执行链路追踪
var tracer = otel.Tracer("agent-runtime")

// ExecutionOutcome 单次执行的结果摘要
type ExecutionOutcome struct {
	ExecutionID string            `json:"execution_id"`
	Status      string            `json:"status"`
	Result      datatypes.JSONMap `json:"result,omitempty"`
	Error       *string           `json:"error,omitempty"`
}

// StatusCount 按状态统计
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// RuntimeStats 执行统计
// 空表返回全零，平均耗时只统计 completed 记录
type RuntimeStats struct {
	TotalExecutions         int64         `json:"total_executions"`
	ExecutionsByStatus      []StatusCount `json:"executions_by_status"`
	RecentExecutions        int64         `json:"recent_executions"` // 最近 24 小时
	AverageExecutionSeconds float64       `json:"average_execution_time_seconds"`
}

// Tracker Agent 执行追踪器
// 维护执行记录的状态机：running → {completed | failed | cancelled}，终态不可逆
type Tracker struct {
	db       *gorm.DB
	handlers HandlerSet
}

// NewTracker 创建 Tracker 实例
// handlers 为 nil 时使用内置模拟处理函数
func NewTracker(db *gorm.DB, handlers HandlerSet) *Tracker {
	if handlers == nil {
		handlers = DefaultHandlers()
	}
	return &Tracker{db: db, handlers: handlers}
}

// ExecuteTask 同步执行一次任务
// 先落 running 记录再执行；处理函数成功写 completed + result，
// 失败写 failed + error_message，两条路径都回填 completed_at
func (t *Tracker) ExecuteTask(ctx context.Context, def *agent.AgentDefinition, task map[string]any) (*ExecutionOutcome, error) {
	ctx, span := tracer.Start(ctx, "tracker.ExecuteTask")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", def.ID),
		attribute.String("agent.role", def.Role),
	)

	record := &agent.ExecutionRecord{
		ID:        uuid.New().String(),
		AgentID:   def.ID,
		Task:      datatypes.JSONMap(task),
		Status:    agent.ExecutionStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if record.Task == nil {
		record.Task = datatypes.JSONMap{}
	}
	if err := t.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("创建执行记录失败: %w", err)
	}

	handler, err := t.handlers.Resolve(def.Role)
	if err != nil {
		return t.markFailed(ctx, record, def, err)
	}

	response, err := handler(ctx, def, task)
	if err != nil {
		return t.markFailed(ctx, record, def, err)
	}

	result := datatypes.JSONMap{
		"agent_name": def.Name,
		"agent_role": def.Role,
		"task_type":  taskType(task),
		"response":   response,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	completedAt := time.Now().UTC()
	// 仅从 running 迁移，避免覆盖期间被取消的记录
	update := t.db.WithContext(ctx).
		Model(&agent.ExecutionRecord{}).
		Where("id = ? AND status = ?", record.ID, agent.ExecutionStatusRunning).
		Updates(map[string]any{
			"status":       agent.ExecutionStatusCompleted,
			"result":       result,
			"completed_at": completedAt,
		})
	if update.Error != nil {
		return nil, fmt.Errorf("更新执行记录失败: %w", update.Error)
	}
	if update.RowsAffected == 0 {
		return t.loadOutcome(ctx, record.ID)
	}

	metrics.AgentExecutionsTotal.WithLabelValues(def.Role, agent.ExecutionStatusCompleted).Inc()
	metrics.AgentExecutionDuration.WithLabelValues(def.Role).Observe(completedAt.Sub(record.StartedAt).Seconds())

	return &ExecutionOutcome{
		ExecutionID: record.ID,
		Status:      agent.ExecutionStatusCompleted,
		Result:      result,
	}, nil
}

// markFailed 把执行记录迁移到 failed 终态
// 执行失败属于业务结果而非系统错误，返回摘要而不是 error
func (t *Tracker) markFailed(ctx context.Context, record *agent.ExecutionRecord, def *agent.AgentDefinition, cause error) (*ExecutionOutcome, error) {
	msg := cause.Error()
	completedAt := time.Now().UTC()

	update := t.db.WithContext(ctx).
		Model(&agent.ExecutionRecord{}).
		Where("id = ? AND status = ?", record.ID, agent.ExecutionStatusRunning).
		Updates(map[string]any{
			"status":        agent.ExecutionStatusFailed,
			"error_message": msg,
			"completed_at":  completedAt,
		})
	if update.Error != nil {
		return nil, fmt.Errorf("更新执行记录失败: %w", update.Error)
	}
	if update.RowsAffected == 0 {
		return t.loadOutcome(ctx, record.ID)
	}

	metrics.AgentExecutionsTotal.WithLabelValues(def.Role, agent.ExecutionStatusFailed).Inc()
	logger.Warn("Agent 任务执行失败",
		zap.String("execution_id", record.ID),
		zap.String("agent_id", def.ID),
		zap.Error(cause),
	)

	return &ExecutionOutcome{
		ExecutionID: record.ID,
		Status:      agent.ExecutionStatusFailed,
		Error:       &msg,
	}, nil
}

// loadOutcome 从数据库重读执行记录并生成摘要
// 完成路径与取消竞争失败时走这里，返回记录的当前终态
func (t *Tracker) loadOutcome(ctx context.Context, executionID string) (*ExecutionOutcome, error) {
	record, err := t.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return &ExecutionOutcome{
		ExecutionID: record.ID,
		Status:      record.Status,
		Result:      record.Result,
		Error:       record.ErrorMessage,
	}, nil
}

// GetExecution 按 ID 查询执行记录
func (t *Tracker) GetExecution(ctx context.Context, executionID string) (*agent.ExecutionRecord, error) {
	var record agent.ExecutionRecord
	if err := t.db.WithContext(ctx).Where("id = ?", executionID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("查询执行记录失败: %w", err)
	}
	return &record, nil
}

// CancelExecution 取消执行
// 条件更新只命中 running 记录，受影响行数为准；
// 记录不存在或已处于终态都返回 false
func (t *Tracker) CancelExecution(ctx context.Context, executionID string) (bool, error) {
	result := t.db.WithContext(ctx).
		Model(&agent.ExecutionRecord{}).
		Where("id = ? AND status = ?", executionID, agent.ExecutionStatusRunning).
		Updates(map[string]any{
			"status":       agent.ExecutionStatusCancelled,
			"completed_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("取消执行失败: %w", result.Error)
	}
	cancelled := result.RowsAffected > 0
	if cancelled {
		logger.Info("执行已取消", zap.String("execution_id", executionID))
	}
	return cancelled, nil
}

// GetHistory 查询 Agent 的执行历史
// 按开始时间倒序，limit 缺省 10
func (t *Tracker) GetHistory(ctx context.Context, agentID string, limit int) ([]*agent.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	var records []*agent.ExecutionRecord
	if err := t.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询执行历史失败: %w", err)
	}
	return records, nil
}

// GetRuntimeStats 查询执行统计
func (t *Tracker) GetRuntimeStats(ctx context.Context) (*RuntimeStats, error) {
	db := t.db.WithContext(ctx)

	var total int64
	if err := db.Model(&agent.ExecutionRecord{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("统计执行总数失败: %w", err)
	}

	var byStatus []StatusCount
	if err := db.Model(&agent.ExecutionRecord{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("count DESC").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("按状态统计失败: %w", err)
	}
	if byStatus == nil {
		byStatus = []StatusCount{}
	}

	var recent int64
	dayAgo := time.Now().UTC().Add(-24 * time.Hour)
	if err := db.Model(&agent.ExecutionRecord{}).
		Where("started_at >= ?", dayAgo).
		Count(&recent).Error; err != nil {
		return nil, fmt.Errorf("统计近期执行失败: %w", err)
	}

	// 平均耗时在应用侧计算，postgres 与 sqlite 的时间函数不兼容
	var completed []agent.ExecutionRecord
	if err := db.
		Select("started_at, completed_at").
		Where("status = ? AND completed_at IS NOT NULL", agent.ExecutionStatusCompleted).
		Find(&completed).Error; err != nil {
		return nil, fmt.Errorf("查询已完成执行失败: %w", err)
	}

	var avgSeconds float64
	if len(completed) > 0 {
		var sum float64
		for _, r := range completed {
			sum += r.CompletedAt.Sub(r.StartedAt).Seconds()
		}
		avgSeconds = sum / float64(len(completed))
	}

	return &RuntimeStats{
		TotalExecutions:         total,
		ExecutionsByStatus:      byStatus,
		RecentExecutions:        recent,
		AverageExecutionSeconds: avgSeconds,
	}, nil
}
