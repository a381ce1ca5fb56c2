package agent

import (
	"context"
	"errors"

	"backend/internal/logger"

	"go.uber.org/zap"
)

// FallbackService 双层持久化门面
// 优先走数据库工厂，后端不可用时自动降级到本地文件存储；
// 业务类错误（校验失败、不存在、重名）原样透出，不触发降级
type FallbackService struct {
	factory *AgentFactory // 可为 nil，表示纯文件模式
	local   *LocalStore
}

// NewFallbackService 创建 FallbackService 实例
func NewFallbackService(factory *AgentFactory, local *LocalStore) *FallbackService {
	return &FallbackService{factory: factory, local: local}
}

// isBusinessError 判断错误是否属于业务语义而非后端故障
func isBusinessError(err error) bool {
	var vErr *ValidationError
	var dErr *DuplicateNameError
	return IsNotFound(err) || errors.As(err, &vErr) || errors.As(err, &dErr)
}

// CreateAgent 创建 Agent，失败时降级到本地文件
func (s *FallbackService) CreateAgent(ctx context.Context, input *CreateAgentInput) (*AgentDefinition, error) {
	if s.factory != nil {
		record, err := s.factory.CreateAgent(ctx, input)
		if err == nil || isBusinessError(err) {
			return record, err
		}
		logger.Warn("数据库创建 Agent 失败，降级到本地文件", zap.Error(err))
	}
	return s.local.CreateAgent(ctx, input)
}

// ListAgents 查询 Agent 列表，失败时降级到本地文件
func (s *FallbackService) ListAgents(ctx context.Context, skip, limit int) ([]*AgentDefinition, error) {
	if s.factory != nil {
		records, err := s.factory.Store().List(ctx, skip, limit)
		if err == nil {
			return records, nil
		}
		logger.Warn("数据库查询 Agent 列表失败，降级到本地文件", zap.Error(err))
	}
	return s.local.List(ctx, skip, limit)
}

// GetAgentByName 按名称查询 Agent，失败时降级到本地文件
func (s *FallbackService) GetAgentByName(ctx context.Context, name string) (*AgentDefinition, error) {
	if s.factory != nil {
		record, err := s.factory.Store().GetByName(ctx, name)
		if err == nil || isBusinessError(err) {
			return record, err
		}
		logger.Warn("数据库查询 Agent 失败，降级到本地文件", zap.Error(err))
	}
	return s.local.GetByName(ctx, name)
}

// GetAgentCode 按名称取 Agent 的生成代码
func (s *FallbackService) GetAgentCode(ctx context.Context, name string) (string, error) {
	record, err := s.GetAgentByName(ctx, name)
	if err != nil {
		return "", err
	}
	if record.GeneratedCode == nil {
		// 历史记录可能没有回填代码，现场生成保证幂等
		return GenerateCode(record), nil
	}
	return *record.GeneratedCode, nil
}

// CreateFromTemplate 基于模板创建 Agent，失败时降级到本地文件
func (s *FallbackService) CreateFromTemplate(ctx context.Context, templateName, agentName string, custom *TemplateCustomizations) (*AgentDefinition, error) {
	if s.factory != nil {
		record, err := s.factory.CreateFromTemplate(ctx, templateName, agentName, custom)
		if err == nil || isBusinessError(err) {
			return record, err
		}
		logger.Warn("数据库基于模板创建失败，降级到本地文件", zap.Error(err))
	}
	return s.local.CreateFromTemplate(ctx, templateName, agentName, custom)
}

// ListTemplates 查询模板列表，失败时降级到本地文件
func (s *FallbackService) ListTemplates(ctx context.Context) ([]*AgentTemplate, error) {
	if s.factory != nil {
		templates, err := s.factory.Templates().List(ctx)
		if err == nil {
			return templates, nil
		}
		logger.Warn("数据库查询模板列表失败，降级到本地文件", zap.Error(err))
	}
	return s.local.ListTemplates(ctx)
}
