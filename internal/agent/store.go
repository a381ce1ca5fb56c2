package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AgentStore Agent 定义持久化存储
type AgentStore struct {
	db *gorm.DB
}

// NewAgentStore 创建 AgentStore 实例
func NewAgentStore(db *gorm.DB) *AgentStore {
	return &AgentStore{db: db}
}

// Create 创建 Agent 定义
// 先按名称预检，唯一索引作为最后防线；重名返回 DuplicateNameError
func (s *AgentStore) Create(ctx context.Context, def *AgentDefinition) (*AgentDefinition, error) {
	if _, err := s.GetByName(ctx, def.Name); err == nil {
		return nil, &DuplicateNameError{Name: def.Name}
	} else if !errors.Is(err, ErrAgentNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	record := &AgentDefinition{
		ID:            uuid.New().String(),
		Name:          def.Name,
		Role:          def.Role,
		SystemMessage: def.SystemMessage,
		Capabilities:  NormalizeCapabilities(def.Capabilities),
		Model:         defaultIfEmpty(def.Model, DefaultModel),
		Provider:      defaultIfEmpty(def.Provider, DefaultProvider),
		Status:        StatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
		Metadata:      def.Metadata,
	}
	if record.Metadata == nil {
		record.Metadata = map[string]any{}
	}
	if record.Capabilities == nil {
		record.Capabilities = []string{}
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, &DuplicateNameError{Name: def.Name}
		}
		return nil, fmt.Errorf("创建 Agent 失败: %w", err)
	}

	return record, nil
}

// Get 按 ID 查询 Agent
func (s *AgentStore) Get(ctx context.Context, id string) (*AgentDefinition, error) {
	var record AgentDefinition
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("查询 Agent 失败: %w", err)
	}
	return &record, nil
}

// GetByName 按名称查询 Agent（用于唯一性预检）
func (s *AgentStore) GetByName(ctx context.Context, name string) (*AgentDefinition, error) {
	var record AgentDefinition
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("查询 Agent 失败: %w", err)
	}
	return &record, nil
}

// List 分页查询 Agent 列表
// 按创建时间倒序（同刻按 id 倒序兜底）；新插入的记录只会出现在更前的页，
// 已返回的页在并发插入下保持稳定
func (s *AgentStore) List(ctx context.Context, skip, limit int) ([]*AgentDefinition, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}

	var records []*AgentDefinition
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Offset(skip).
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询 Agent 列表失败: %w", err)
	}
	return records, nil
}

// Update 部分更新 Agent
// 合并提供的字段并刷新 updated_at；capabilities 去重排序后写入
func (s *AgentStore) Update(ctx context.Context, id string, updates map[string]any) (*AgentDefinition, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	if caps, ok := updates["capabilities"].([]string); ok {
		updates["capabilities"] = NormalizeCapabilities(caps)
	}
	updates["updated_at"] = time.Now().UTC()

	if err := s.db.WithContext(ctx).
		Model(&AgentDefinition{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新 Agent 失败: %w", err)
	}

	return s.Get(ctx, id)
}

// Delete 删除 Agent 及其全部执行记录（级联所有权）
// 返回是否真正删除了记录；删除不存在的 id 不报错
func (s *AgentStore) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先删执行记录，数据库级联约束在 sqlite 下默认不生效
		if err := tx.Where("agent_id = ?", id).Delete(&ExecutionRecord{}).Error; err != nil {
			return fmt.Errorf("删除执行记录失败: %w", err)
		}

		result := tx.Where("id = ?", id).Delete(&AgentDefinition{})
		if result.Error != nil {
			return fmt.Errorf("删除 Agent 失败: %w", result.Error)
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// NormalizeCapabilities 能力集合归一化：去重并排序
// 排序保证同一集合的任何排列产出相同的存储形态与生成代码
func NormalizeCapabilities(caps []string) []string {
	if caps == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(caps))
	result := make([]string, 0, len(caps))
	for _, c := range caps {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		result = append(result, c)
	}
	sort.Strings(result)
	return result
}

// isUniqueViolation 判断是否为唯一约束冲突
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || // postgres
		strings.Contains(msg, "UNIQUE constraint failed") // sqlite
}

// defaultIfEmpty 返回非空值
func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
