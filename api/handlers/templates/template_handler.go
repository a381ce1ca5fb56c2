package templates

import (
	"net/http"

	response "backend/api/handlers/common"
	"backend/internal/agent"

	"github.com/gin-gonic/gin"
)

// TemplateHandler Agent 模板查询 Handler
type TemplateHandler struct {
	store *agent.TemplateStore
}

// NewTemplateHandler 创建 TemplateHandler 实例
func NewTemplateHandler(store *agent.TemplateStore) *TemplateHandler {
	return &TemplateHandler{store: store}
}

// ListTemplates 查询模板列表
// @Summary 查询 Agent 模板列表
// @Tags Templates
// @Produce json
// @Success 200 {object} response.ListResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/templates [get]
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	templates, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.ListResponse{
		Items: templates,
		Count: len(templates),
	})
}
