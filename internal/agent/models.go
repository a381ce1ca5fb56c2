package agent

import (
	"time"

	"gorm.io/datatypes"
)

// Agent 角色枚举
const (
	RoleAssistant  = "assistant"
	RoleCoder      = "coder"
	RoleResearcher = "researcher"
	RoleAnalyst    = "analyst"
	RoleSpecialist = "specialist"
)

// ValidRoles 允许的 Agent 角色集合（顺序用于校验错误提示）
var ValidRoles = []string{RoleAssistant, RoleCoder, RoleResearcher, RoleAnalyst, RoleSpecialist}

// 默认模型配置
const (
	DefaultModel    = "llama-3.3-70b-versatile"
	DefaultProvider = "groq"
)

// Agent 生命周期状态
const (
	StatusCreated = "created"
)

// AgentDefinition Agent 定义
// name 全局唯一；capabilities 写入前去重排序，保证集合语义与生成代码的确定性
type AgentDefinition struct {
	ID            string `json:"id" gorm:"primaryKey;type:uuid"`
	Name          string `json:"name" gorm:"size:255;not null;uniqueIndex"`
	Role          string `json:"role" gorm:"size:100;not null"`
	SystemMessage string `json:"system_message" gorm:"type:text;not null"`

	Capabilities []string `json:"capabilities" gorm:"type:jsonb;serializer:json"`

	// 模型配置
	Model    string `json:"model" gorm:"size:100;not null;default:llama-3.3-70b-versatile"`
	Provider string `json:"provider" gorm:"size:50;not null;default:groq"`

	// 生成代码（创建后由代码生成器回填）
	GeneratedCode *string `json:"code" gorm:"column:code;type:text"`

	// 状态
	Status string `json:"status" gorm:"size:50;not null;default:created"`

	// 时间戳
	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;autoUpdateTime"`

	// 扩展元数据
	Metadata datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
}

// TableName 指定表名
func (AgentDefinition) TableName() string {
	return "agents"
}

// AgentTemplate Agent 模板
// 种子模板 first-write-wins：同名模板已存在时不覆盖
type AgentTemplate struct {
	ID            string   `json:"id" gorm:"primaryKey;type:uuid"`
	Name          string   `json:"name" gorm:"size:255;not null;uniqueIndex"`
	Role          string   `json:"role" gorm:"size:100;not null"`
	SystemMessage string   `json:"system_message" gorm:"type:text;not null"`
	Capabilities  []string `json:"capabilities" gorm:"type:jsonb;serializer:json"`
	Description   string   `json:"description" gorm:"type:text"`
	IsDefault     bool     `json:"is_default" gorm:"default:false"`

	CreatedAt time.Time         `json:"created_at" gorm:"not null;autoCreateTime"`
	Metadata  datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
}

// TableName 指定表名
func (AgentTemplate) TableName() string {
	return "agent_templates"
}

// Execution 状态机
// pending → running → {completed | failed | cancelled}，终态后不再变更
const (
	ExecutionStatusPending   = "pending"
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
	ExecutionStatusCancelled = "cancelled"
)

// ExecutionRecord Agent 任务执行记录
// 归属于单个 Agent，删除 Agent 时级联删除
type ExecutionRecord struct {
	ID      string `json:"id" gorm:"primaryKey;type:uuid"`
	AgentID string `json:"agent_id" gorm:"type:uuid;not null;index"`

	Agent *AgentDefinition `json:"-" gorm:"foreignKey:AgentID;constraint:OnDelete:CASCADE"`

	Task   datatypes.JSONMap `json:"task" gorm:"type:jsonb;not null"`
	Result datatypes.JSONMap `json:"result" gorm:"type:jsonb"`

	Status string `json:"status" gorm:"size:50;not null;default:pending"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null;autoCreateTime"`
	CompletedAt *time.Time `json:"completed_at"`

	// 仅 failed 终态写入
	ErrorMessage *string `json:"error_message" gorm:"type:text"`

	Metadata datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
}

// TableName 指定表名
func (ExecutionRecord) TableName() string {
	return "agent_executions"
}

// IsTerminal 判断执行状态是否为终态
func IsTerminal(status string) bool {
	switch status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}
