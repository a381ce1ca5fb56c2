package runtime

import (
	"context"
	"fmt"
	"time"

	"backend/internal/agent"
)

// TaskHandler 按角色执行任务的处理函数
// 返回文本响应；错误会把执行记录置为 failed
type TaskHandler func(ctx context.Context, def *agent.AgentDefinition, task map[string]any) (string, error)

// GenericHandlerKey 未注册角色的兜底处理键
const GenericHandlerKey = "generic"

// HandlerSet 角色到处理函数的路由表
type HandlerSet map[string]TaskHandler

// Resolve 按角色取处理函数，未命中时回退到 generic
func (h HandlerSet) Resolve(role string) (TaskHandler, error) {
	if handler, ok := h[role]; ok {
		return handler, nil
	}
	if handler, ok := h[GenericHandlerKey]; ok {
		return handler, nil
	}
	return nil, fmt.Errorf("没有可用的任务处理函数: %s", role)
}

// DefaultHandlers 内置模拟处理函数
// 按角色返回固定文案并模拟处理耗时，后续对接真实模型运行时
func DefaultHandlers() HandlerSet {
	return HandlerSet{
		agent.RoleAssistant: func(ctx context.Context, _ *agent.AgentDefinition, task map[string]any) (string, error) {
			if err := simulateDelay(ctx, 500*time.Millisecond); err != nil {
				return "", err
			}
			return fmt.Sprintf("As your assistant, I've processed your request: '%s'. I'm ready to help with any follow-up questions or tasks you might have.", taskContent(task)), nil
		},
		agent.RoleCoder: func(ctx context.Context, _ *agent.AgentDefinition, task map[string]any) (string, error) {
			if err := simulateDelay(ctx, 1*time.Second); err != nil {
				return "", err
			}
			return fmt.Sprintf("I've analyzed your coding request: '%s'. Here's a structured approach I would take: 1) Understand requirements, 2) Design solution, 3) Implement code, 4) Test and validate. Would you like me to proceed with any specific part?", taskContent(task)), nil
		},
		agent.RoleResearcher: func(ctx context.Context, _ *agent.AgentDefinition, task map[string]any) (string, error) {
			if err := simulateDelay(ctx, 1500*time.Millisecond); err != nil {
				return "", err
			}
			return fmt.Sprintf("I've initiated research on: '%s'. My research methodology includes: gathering sources, analyzing data, synthesizing findings, and providing citations. I'll deliver comprehensive insights based on available information.", taskContent(task)), nil
		},
		GenericHandlerKey: func(ctx context.Context, _ *agent.AgentDefinition, task map[string]any) (string, error) {
			if err := simulateDelay(ctx, 800*time.Millisecond); err != nil {
				return "", err
			}
			return fmt.Sprintf("I've received your task: '%s'. I'm processing this request according to my capabilities and will provide the best possible response.", taskContent(task)), nil
		},
	}
}

// taskContent 取任务文本内容，缺省为空串
func taskContent(task map[string]any) string {
	if content, ok := task["content"].(string); ok {
		return content
	}
	return ""
}

// taskType 取任务类型，缺省 unknown
func taskType(task map[string]any) string {
	if t, ok := task["type"].(string); ok && t != "" {
		return t
	}
	return "unknown"
}

// simulateDelay 可取消的模拟耗时
func simulateDelay(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
