package agents

import (
	"errors"
	"net/http"
	"strconv"

	response "backend/api/handlers/common"
	"backend/internal/agent"

	"github.com/gin-gonic/gin"
)

// AgentHandler Agent 定义管理 Handler
type AgentHandler struct {
	factory *agent.AgentFactory
}

// NewAgentHandler 创建 AgentHandler 实例
func NewAgentHandler(factory *agent.AgentFactory) *AgentHandler {
	return &AgentHandler{factory: factory}
}

// writeServiceError 业务错误到 HTTP 状态码的统一映射
func writeServiceError(c *gin.Context, err error) {
	var vErr *agent.ValidationError
	var dErr *agent.DuplicateNameError

	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Success: false,
			Message: "Agent validation failed",
			Errors:  vErr.Errors,
		})
	case errors.As(err, &dErr):
		c.JSON(http.StatusConflict, response.ErrorResponse{Success: false, Message: err.Error()})
	case agent.IsNotFound(err):
		c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: err.Error()})
	}
}

// CreateAgent 创建 Agent
// @Summary 创建 Agent
// @Tags Agents
// @Accept json
// @Produce json
// @Param request body createAgentRequest true "Agent 定义"
// @Success 201 {object} agent.AgentDefinition
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/agents [post]
func (h *AgentHandler) CreateAgent(c *gin.Context) {
	var body createAgentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	record, err := h.factory.CreateAgent(c.Request.Context(), &agent.CreateAgentInput{
		Name:          body.Name,
		Role:          body.Role,
		SystemMessage: body.SystemMessage,
		Capabilities:  body.Capabilities,
		Model:         body.Model,
		Provider:      body.Provider,
		Metadata:      body.Metadata,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// CreateFromTemplate 基于模板创建 Agent
// @Summary 基于模板创建 Agent
// @Tags Agents
// @Accept json
// @Produce json
// @Param request body fromTemplateRequest true "模板与定制项"
// @Success 201 {object} agent.AgentDefinition
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/agents/from-template [post]
func (h *AgentHandler) CreateFromTemplate(c *gin.Context) {
	var body fromTemplateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	record, err := h.factory.CreateFromTemplate(c.Request.Context(), body.Template, body.Name, &agent.TemplateCustomizations{
		SystemMessage: body.SystemMessage,
		Role:          body.Role,
		Capabilities:  body.Capabilities,
		Metadata:      body.Metadata,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// ListAgents 分页查询 Agent 列表
// @Summary 查询 Agent 列表
// @Tags Agents
// @Produce json
// @Param skip query int false "跳过条数"
// @Param limit query int false "返回条数上限"
// @Success 200 {object} response.ListResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/agents [get]
func (h *AgentHandler) ListAgents(c *gin.Context) {
	skip := parseIntQuery(c, "skip", 0)
	limit := parseIntQuery(c, "limit", 100)

	records, err := h.factory.Store().List(c.Request.Context(), skip, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.ListResponse{
		Items: records,
		Skip:  skip,
		Limit: limit,
		Count: len(records),
	})
}

// GetAgent 查询单个 Agent
// @Summary 查询 Agent 详情
// @Tags Agents
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} agent.AgentDefinition
// @Failure 404 {object} response.ErrorResponse
// @Router /api/agents/{id} [get]
func (h *AgentHandler) GetAgent(c *gin.Context) {
	record, err := h.factory.Store().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// UpdateAgent 部分更新 Agent
// @Summary 更新 Agent
// @Tags Agents
// @Accept json
// @Produce json
// @Param id path string true "Agent ID"
// @Param request body updateAgentRequest true "更新字段"
// @Success 200 {object} agent.AgentDefinition
// @Failure 404 {object} response.ErrorResponse
// @Router /api/agents/{id} [patch]
func (h *AgentHandler) UpdateAgent(c *gin.Context) {
	var body updateAgentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	updates := map[string]any{}
	regenerate := false
	if body.SystemMessage != nil {
		updates["system_message"] = *body.SystemMessage
		regenerate = true
	}
	if body.Capabilities != nil {
		updates["capabilities"] = *body.Capabilities
		regenerate = true
	}
	if body.Model != nil {
		updates["model"] = *body.Model
		regenerate = true
	}
	if body.Provider != nil {
		updates["provider"] = *body.Provider
	}
	if body.Metadata != nil {
		updates["metadata"] = body.Metadata
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "没有可更新的字段"})
		return
	}

	record, err := h.factory.Store().Update(c.Request.Context(), c.Param("id"), updates)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	// 影响生成代码的字段变更后重新生成并回填
	if regenerate {
		code := agent.GenerateCode(record)
		record, err = h.factory.Store().Update(c.Request.Context(), record.ID, map[string]any{"code": code})
		if err != nil {
			writeServiceError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, record)
}

// DeleteAgent 删除 Agent 及其执行记录
// @Summary 删除 Agent
// @Tags Agents
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/agents/{id} [delete]
func (h *AgentHandler) DeleteAgent(c *gin.Context) {
	deleted, err := h.factory.Store().Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: agent.ErrAgentNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Message: "Agent 已删除"})
}

// GetAgentStats 查询 Agent 统计
// @Summary 查询 Agent 统计
// @Tags Stats
// @Produce json
// @Success 200 {object} agent.AgentStats
// @Failure 500 {object} response.ErrorResponse
// @Router /api/stats/agents [get]
func (h *AgentHandler) GetAgentStats(c *gin.Context) {
	stats, err := h.factory.GetStats(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// parseIntQuery 读取整数查询参数，解析失败返回默认值
func parseIntQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
