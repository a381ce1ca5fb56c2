package agent

import (
	"errors"
	"fmt"
	"strings"
)

// 哨兵错误
var (
	// ErrAgentNotFound Agent 不存在
	ErrAgentNotFound = errors.New("Agent 不存在")

	// ErrTemplateNotFound 模板不存在
	ErrTemplateNotFound = errors.New("模板不存在")

	// ErrBackendUnavailable 远端存储不可用（由降级层捕获，不直接暴露给调用方）
	ErrBackendUnavailable = errors.New("后端存储不可用")
)

// DuplicateNameError Agent 名称冲突错误
type DuplicateNameError struct {
	Name string
}

// Error 实现 error 接口
func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("Agent with name '%s' already exists", e.Name)
}

// ValidationError 配置校验错误
// 聚合所有违反的规则，一次返回给调用方
type ValidationError struct {
	Errors []string
}

// Error 实现 error 接口
func (e *ValidationError) Error() string {
	return "agent 配置校验失败: " + strings.Join(e.Errors, "; ")
}

// IsNotFound 判断是否为"不存在"类错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAgentNotFound) || errors.Is(err, ErrTemplateNotFound)
}
