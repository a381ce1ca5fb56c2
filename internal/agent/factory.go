package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"backend/internal/logger"
	"backend/internal/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// agentNameRe Agent 名称字符集：字母、数字、连字符、下划线
var agentNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// statsCacheKey Agent 统计缓存键
const statsCacheKey = "agent_factory:stats"

// statsCacheTTL 统计缓存有效期
const statsCacheTTL = 30 * time.Second

// CreateAgentInput 创建 Agent 的输入
type CreateAgentInput struct {
	Name          string         `json:"name"`
	Role          string         `json:"role"`
	SystemMessage string         `json:"system_message"`
	Capabilities  []string       `json:"capabilities"`
	Model         string         `json:"model"`
	Provider      string         `json:"provider"`
	Metadata      map[string]any `json:"metadata"`
}

// ValidationResult 校验结果
// Errors 聚合全部违反的规则，调用方一次往返即可拿到完整清单
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// TemplateCustomizations 基于模板创建时的定制项
// system_message/role 整体替换模板值；capabilities 与模板取并集；metadata 逐键合并
type TemplateCustomizations struct {
	SystemMessage *string        `json:"system_message"`
	Role          *string        `json:"role"`
	Capabilities  []string       `json:"capabilities"`
	Metadata      map[string]any `json:"metadata"`
}

// RoleCount 按角色统计
type RoleCount struct {
	Role  string `json:"role"`
	Count int64  `json:"count"`
}

// AgentStats Agent 统计信息
type AgentStats struct {
	TotalAgents  int64       `json:"total_agents"`
	AgentsByRole []RoleCount `json:"agents_by_role"`
	RecentAgents int64       `json:"recent_agents"` // 最近 7 天创建数
}

// AgentFactory Agent 工厂
// 组合模板存储、Agent 存储与代码生成器；统计结果经 Redis 短期缓存
type AgentFactory struct {
	store     *AgentStore
	templates *TemplateStore
	rdb       redis.UniversalClient // 可为 nil，缓存自动停用
}

// NewAgentFactory 创建 AgentFactory 实例
func NewAgentFactory(store *AgentStore, templates *TemplateStore, rdb redis.UniversalClient) *AgentFactory {
	return &AgentFactory{store: store, templates: templates, rdb: rdb}
}

// Store 返回底层 Agent 存储
func (f *AgentFactory) Store() *AgentStore {
	return f.store
}

// Templates 返回底层模板存储
func (f *AgentFactory) Templates() *TemplateStore {
	return f.templates
}

// validateBasics 与存储无关的配置规则校验
// 错误文案属于对外契约，原样透出给调用方
func validateBasics(input *CreateAgentInput) []string {
	var errs []string

	if input.Name == "" {
		errs = append(errs, "Missing required field: name")
	}
	if input.Role == "" {
		errs = append(errs, "Missing required field: role")
	}
	if input.SystemMessage == "" {
		errs = append(errs, "Missing required field: system_message")
	}

	if input.Role != "" && !isValidRole(input.Role) {
		errs = append(errs, fmt.Sprintf("Invalid role. Must be one of: %s", joinRoles()))
	}

	if input.Name != "" && !agentNameRe.MatchString(input.Name) {
		errs = append(errs, "Agent name must contain only letters, numbers, hyphens, and underscores")
	}

	return errs
}

// Validate 校验 Agent 配置
// 一次性报告全部违规项；名称占用检查需要访问存储
func (f *AgentFactory) Validate(ctx context.Context, input *CreateAgentInput) (*ValidationResult, error) {
	errs := validateBasics(input)

	if input.Name != "" && agentNameRe.MatchString(input.Name) {
		_, err := f.store.GetByName(ctx, input.Name)
		switch {
		case err == nil:
			errs = append(errs, fmt.Sprintf("Agent with name '%s' already exists", input.Name))
		case errors.Is(err, ErrAgentNotFound):
			// 名称可用
		default:
			return nil, err
		}
	}

	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}, nil
}

// CreateAgent 创建 Agent
// 校验 → 持久化 → 生成代码 → 回填代码，返回完整记录
func (f *AgentFactory) CreateAgent(ctx context.Context, input *CreateAgentInput) (*AgentDefinition, error) {
	result, err := f.Validate(ctx, input)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, &ValidationError{Errors: result.Errors}
	}

	record, err := f.store.Create(ctx, &AgentDefinition{
		Name:          input.Name,
		Role:          input.Role,
		SystemMessage: input.SystemMessage,
		Capabilities:  input.Capabilities,
		Model:         input.Model,
		Provider:      input.Provider,
		Metadata:      input.Metadata,
	})
	if err != nil {
		return nil, err
	}

	code := GenerateCode(record)
	record, err = f.store.Update(ctx, record.ID, map[string]any{"code": code})
	if err != nil {
		return nil, fmt.Errorf("回填生成代码失败: %w", err)
	}

	metrics.AgentsCreatedTotal.WithLabelValues(record.Role).Inc()
	f.invalidateStatsCache(ctx)

	logger.Info("Agent 创建成功",
		zap.String("id", record.ID),
		zap.String("name", record.Name),
		zap.String("role", record.Role),
	)
	return record, nil
}

// CreateFromTemplate 基于模板创建 Agent
// 定制项优先级：system_message/role 替换、capabilities 并集、metadata 合并；
// metadata 始终记录 created_from_template 与源模板 id
func (f *AgentFactory) CreateFromTemplate(ctx context.Context, templateName, agentName string, custom *TemplateCustomizations) (*AgentDefinition, error) {
	template, err := f.templates.GetByName(ctx, templateName)
	if err != nil {
		return nil, err
	}

	input := &CreateAgentInput{
		Name:          agentName,
		Role:          template.Role,
		SystemMessage: template.SystemMessage,
		Capabilities:  append([]string(nil), template.Capabilities...),
		Model:         DefaultModel,
		Provider:      DefaultProvider,
		Metadata: map[string]any{
			"created_from_template": template.Name,
			"template_id":           template.ID,
		},
	}

	if custom != nil {
		if custom.SystemMessage != nil {
			input.SystemMessage = *custom.SystemMessage
		}
		if custom.Role != nil {
			input.Role = *custom.Role
		}
		if len(custom.Capabilities) > 0 {
			input.Capabilities = append(input.Capabilities, custom.Capabilities...)
		}
		for k, v := range custom.Metadata {
			input.Metadata[k] = v
		}
	}

	return f.CreateAgent(ctx, input)
}

// GetStats 查询 Agent 统计
// 命中 Redis 缓存直接返回；未命中时计算并以 30s TTL 写回
func (f *AgentFactory) GetStats(ctx context.Context) (*AgentStats, error) {
	if f.rdb != nil {
		if cached, err := f.rdb.Get(ctx, statsCacheKey).Bytes(); err == nil {
			var stats AgentStats
			if err := json.Unmarshal(cached, &stats); err == nil {
				return &stats, nil
			}
		}
	}

	stats, err := f.computeStats(ctx)
	if err != nil {
		return nil, err
	}

	if f.rdb != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := f.rdb.Set(ctx, statsCacheKey, data, statsCacheTTL).Err(); err != nil {
				logger.Warn("写入统计缓存失败", zap.Error(err))
			}
		}
	}
	return stats, nil
}

// computeStats 从数据库计算统计
func (f *AgentFactory) computeStats(ctx context.Context) (*AgentStats, error) {
	db := f.store.db.WithContext(ctx)

	var total int64
	if err := db.Model(&AgentDefinition{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("统计 Agent 总数失败: %w", err)
	}

	var byRole []RoleCount
	if err := db.Model(&AgentDefinition{}).
		Select("role, COUNT(*) as count").
		Group("role").
		Order("count DESC").
		Scan(&byRole).Error; err != nil {
		return nil, fmt.Errorf("按角色统计失败: %w", err)
	}
	if byRole == nil {
		byRole = []RoleCount{}
	}

	var recent int64
	weekAgo := time.Now().UTC().AddDate(0, 0, -7)
	if err := db.Model(&AgentDefinition{}).
		Where("created_at >= ?", weekAgo).
		Count(&recent).Error; err != nil {
		return nil, fmt.Errorf("统计近期 Agent 失败: %w", err)
	}

	return &AgentStats{TotalAgents: total, AgentsByRole: byRole, RecentAgents: recent}, nil
}

// invalidateStatsCache 创建后失效统计缓存
func (f *AgentFactory) invalidateStatsCache(ctx context.Context) {
	if f.rdb == nil {
		return
	}
	if err := f.rdb.Del(ctx, statsCacheKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn("失效统计缓存失败", zap.Error(err))
	}
}

// isValidRole 判断角色是否合法
func isValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// joinRoles 角色枚举提示串
func joinRoles() string {
	out := ""
	for i, r := range ValidRoles {
		if i > 0 {
			out += ", "
		}
		out += r
	}
	return out
}
