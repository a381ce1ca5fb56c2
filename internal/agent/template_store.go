package agent

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TemplateStore Agent 模板存储
type TemplateStore struct {
	db *gorm.DB
}

// NewTemplateStore 创建 TemplateStore 实例
func NewTemplateStore(db *gorm.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// DefaultTemplates 内置模板定义
// 与降级文件存储共用同一份种子数据
func DefaultTemplates() []AgentTemplate {
	return []AgentTemplate{
		{
			Name:          "generic_assistant",
			Role:          RoleAssistant,
			SystemMessage: "You are a helpful AI assistant. Provide clear, accurate, and friendly responses.",
			Capabilities:  []string{},
			Description:   "General purpose AI assistant for various tasks",
			IsDefault:     true,
		},
		{
			Name:          "code_specialist",
			Role:          RoleCoder,
			SystemMessage: "You are a coding specialist. Write clean, efficient, well-documented code. Explain your implementations.",
			Capabilities:  []string{"python", "javascript", "debugging"},
			Description:   "Specialized agent for coding and software development tasks",
			IsDefault:     true,
		},
		{
			Name:          "research_analyst",
			Role:          RoleResearcher,
			SystemMessage: "You are a research analyst. Gather information, analyze data, and provide detailed insights with citations.",
			Capabilities:  []string{"web_search", "data_analysis", "report_generation"},
			Description:   "Research-focused agent for analysis and information gathering",
			IsDefault:     true,
		},
	}
}

// SeedDefaults 幂等写入内置模板
// 同名模板已存在时保持原样（first-write-wins），重复调用是空操作
func (s *TemplateStore) SeedDefaults(ctx context.Context) error {
	for _, tpl := range DefaultTemplates() {
		var existing AgentTemplate
		err := s.db.WithContext(ctx).Where("name = ?", tpl.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("查询模板失败: %w", err)
		}

		record := tpl
		record.ID = uuid.New().String()
		record.Capabilities = NormalizeCapabilities(record.Capabilities)
		if record.Metadata == nil {
			record.Metadata = map[string]any{}
		}

		if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
			// 并发种子竞争时以先写入者为准
			if isUniqueViolation(err) {
				continue
			}
			return fmt.Errorf("写入模板失败 [%s]: %w", tpl.Name, err)
		}
		logger.Info("已写入内置模板", zap.String("name", tpl.Name))
	}
	return nil
}

// List 查询全部模板
// 内置模板在前，其余按名称字母序
func (s *TemplateStore) List(ctx context.Context) ([]*AgentTemplate, error) {
	var templates []*AgentTemplate
	if err := s.db.WithContext(ctx).
		Order("is_default DESC, name ASC").
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("查询模板列表失败: %w", err)
	}
	return templates, nil
}

// GetByName 按名称查询模板
func (s *TemplateStore) GetByName(ctx context.Context, name string) (*AgentTemplate, error) {
	var template AgentTemplate
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&template).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("查询模板失败: %w", err)
	}
	return &template, nil
}
