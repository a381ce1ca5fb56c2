package agents

// createAgentRequest 创建 Agent 请求体
type createAgentRequest struct {
	Name          string         `json:"name"`
	Role          string         `json:"role"`
	SystemMessage string         `json:"system_message"`
	Capabilities  []string       `json:"capabilities"`
	Model         string         `json:"model"`
	Provider      string         `json:"provider"`
	Metadata      map[string]any `json:"metadata"`
}

// fromTemplateRequest 基于模板创建 Agent 请求体
// 定制字段为空时沿用模板值；capabilities 与模板取并集
type fromTemplateRequest struct {
	Template      string         `json:"template" binding:"required"`
	Name          string         `json:"name" binding:"required"`
	SystemMessage *string        `json:"system_message"`
	Role          *string        `json:"role"`
	Capabilities  []string       `json:"capabilities"`
	Metadata      map[string]any `json:"metadata"`
}

// updateAgentRequest 部分更新 Agent 请求体，nil 字段不修改
type updateAgentRequest struct {
	SystemMessage *string        `json:"system_message"`
	Capabilities  *[]string      `json:"capabilities"`
	Model         *string        `json:"model"`
	Provider      *string        `json:"provider"`
	Metadata      map[string]any `json:"metadata"`
}

// executeTaskRequest 执行任务请求体
type executeTaskRequest struct {
	Task map[string]any `json:"task" binding:"required"`
}
