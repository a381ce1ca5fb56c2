package agents

import (
	"net/http"

	response "backend/api/handlers/common"
	"backend/internal/agent"
	"backend/internal/agent/runtime"

	"github.com/gin-gonic/gin"
)

// ExecuteHandler Agent 执行相关 Handler
// asyncClient 为 nil 时异步接口返回 503
type ExecuteHandler struct {
	factory     *agent.AgentFactory
	tracker     *runtime.Tracker
	asyncClient *runtime.AsyncClient
}

// NewExecuteHandler 创建 ExecuteHandler 实例
func NewExecuteHandler(factory *agent.AgentFactory, tracker *runtime.Tracker, asyncClient *runtime.AsyncClient) *ExecuteHandler {
	return &ExecuteHandler{factory: factory, tracker: tracker, asyncClient: asyncClient}
}

// ExecuteTask 同步执行任务
// @Summary 同步执行 Agent 任务
// @Tags Executions
// @Accept json
// @Produce json
// @Param id path string true "Agent ID"
// @Param request body executeTaskRequest true "任务内容"
// @Success 200 {object} runtime.ExecutionOutcome
// @Failure 404 {object} response.ErrorResponse
// @Router /api/agents/{id}/execute [post]
func (h *ExecuteHandler) ExecuteTask(c *gin.Context) {
	var body executeTaskRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	def, err := h.factory.Store().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	outcome, err := h.tracker.ExecuteTask(c.Request.Context(), def, body.Task)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// RunTaskAsync 异步执行任务
// @Summary 异步执行 Agent 任务
// @Tags Executions
// @Accept json
// @Produce json
// @Param id path string true "Agent ID"
// @Param request body executeTaskRequest true "任务内容"
// @Success 202 {object} response.APIResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse
// @Router /api/agents/{id}/run [post]
func (h *ExecuteHandler) RunTaskAsync(c *gin.Context) {
	if h.asyncClient == nil {
		c.JSON(http.StatusServiceUnavailable, response.ErrorResponse{Success: false, Message: "异步任务队列不可用"})
		return
	}

	var body executeTaskRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	def, err := h.factory.Store().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	taskID, err := h.asyncClient.EnqueueAgentTask(c.Request.Context(), &runtime.AgentTaskPayload{
		AgentID: def.ID,
		Task:    body.Task,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, response.APIResponse{
		Success: true,
		Message: "任务已入队",
		Data:    gin.H{"task_id": taskID},
	})
}

// CancelExecution 取消执行
// @Summary 取消运行中的执行
// @Tags Executions
// @Produce json
// @Param id path string true "Execution ID"
// @Success 200 {object} response.APIResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/executions/{id}/cancel [post]
func (h *ExecuteHandler) CancelExecution(c *gin.Context) {
	cancelled, err := h.tracker.CancelExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Success: false,
			Message: "执行不存在或已结束，无法取消",
		})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Message: "执行已取消"})
}

// GetHistory 查询 Agent 执行历史
// @Summary 查询执行历史
// @Tags Executions
// @Produce json
// @Param id path string true "Agent ID"
// @Param limit query int false "返回条数上限"
// @Success 200 {object} response.ListResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/agents/{id}/executions [get]
func (h *ExecuteHandler) GetHistory(c *gin.Context) {
	def, err := h.factory.Store().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	limit := parseIntQuery(c, "limit", 10)
	records, err := h.tracker.GetHistory(c.Request.Context(), def.ID, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.ListResponse{
		Items: records,
		Limit: limit,
		Count: len(records),
	})
}

// GetRuntimeStats 查询执行统计
// @Summary 查询执行统计
// @Tags Stats
// @Produce json
// @Success 200 {object} runtime.RuntimeStats
// @Failure 500 {object} response.ErrorResponse
// @Router /api/stats/runtime [get]
func (h *ExecuteHandler) GetRuntimeStats(c *gin.Context) {
	stats, err := h.tracker.GetRuntimeStats(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
