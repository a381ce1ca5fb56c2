package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend/internal/agent"
	"backend/internal/agent/runtime"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupHandlerTest(t *testing.T) (*gin.Engine, *agent.AgentFactory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&agent.AgentDefinition{}, &agent.AgentTemplate{}, &agent.ExecutionRecord{}))

	templates := agent.NewTemplateStore(db)
	require.NoError(t, templates.SeedDefaults(context.Background()))
	factory := agent.NewAgentFactory(agent.NewAgentStore(db), templates, nil)

	tracker := runtime.NewTracker(db, runtime.HandlerSet{
		runtime.GenericHandlerKey: func(_ context.Context, _ *agent.AgentDefinition, task map[string]any) (string, error) {
			return "ok", nil
		},
	})

	agentHandler := NewAgentHandler(factory)
	executeHandler := NewExecuteHandler(factory, tracker, nil)

	router := gin.New()
	apiGroup := router.Group("/api")
	apiGroup.POST("/agents", agentHandler.CreateAgent)
	apiGroup.GET("/agents", agentHandler.ListAgents)
	apiGroup.POST("/agents/from-template", agentHandler.CreateFromTemplate)
	apiGroup.GET("/agents/:id", agentHandler.GetAgent)
	apiGroup.PATCH("/agents/:id", agentHandler.UpdateAgent)
	apiGroup.DELETE("/agents/:id", agentHandler.DeleteAgent)
	apiGroup.POST("/agents/:id/execute", executeHandler.ExecuteTask)
	apiGroup.POST("/agents/:id/run", executeHandler.RunTaskAsync)
	apiGroup.GET("/agents/:id/executions", executeHandler.GetHistory)
	apiGroup.POST("/executions/:id/cancel", executeHandler.CancelExecution)
	apiGroup.GET("/stats/agents", agentHandler.GetAgentStats)
	apiGroup.GET("/stats/runtime", executeHandler.GetRuntimeStats)

	return router, factory
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAgentEndpoint(t *testing.T) {
	router, _ := setupHandlerTest(t)

	t.Run("成功_201并返回生成代码", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/agents", gin.H{
			"name":           "http_agent",
			"role":           "assistant",
			"system_message": "You serve HTTP tests.",
			"capabilities":   []string{"email"},
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var record agent.AgentDefinition
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
		assert.Equal(t, "http_agent", record.Name)
		require.NotNil(t, record.GeneratedCode)
		assert.Contains(t, *record.GeneratedCode, "http_agent = AssistantAgent(")
	})

	t.Run("失败_400返回违规清单", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/agents", gin.H{
			"name": "bad name!",
			"role": "wizard",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp struct {
			Errors []string `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Errors, "Missing required field: system_message")
		assert.Contains(t, resp.Errors, "Agent name must contain only letters, numbers, hyphens, and underscores")
	})

	t.Run("失败_同名返回400并提示占用", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/agents", gin.H{
			"name":           "http_agent",
			"role":           "assistant",
			"system_message": "duplicate",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp struct {
			Errors []string `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Errors, "Agent with name 'http_agent' already exists")
	})
}

func TestAgentCRUDEndpoints(t *testing.T) {
	router, factory := setupHandlerTest(t)
	ctx := context.Background()

	created, err := factory.CreateAgent(ctx, &agent.CreateAgentInput{
		Name: "crud_agent", Role: agent.RoleCoder, SystemMessage: "x",
	})
	require.NoError(t, err)

	t.Run("成功_列表", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/agents?skip=0&limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Items []agent.AgentDefinition `json:"items"`
			Count int                     `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
	})

	t.Run("成功_详情", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/agents/"+created.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("失败_详情404", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/agents/missing-id", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("成功_PATCH更新并重新生成代码", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPatch, "/api/agents/"+created.ID, gin.H{
			"system_message": "Updated instructions.",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var record agent.AgentDefinition
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
		assert.Equal(t, "Updated instructions.", record.SystemMessage)
		require.NotNil(t, record.GeneratedCode)
		assert.Contains(t, *record.GeneratedCode, "Updated instructions.")
	})

	t.Run("成功_删除后404", func(t *testing.T) {
		w := doRequest(t, router, http.MethodDelete, "/api/agents/"+created.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = doRequest(t, router, http.MethodDelete, "/api/agents/"+created.ID, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCreateFromTemplateEndpoint(t *testing.T) {
	router, _ := setupHandlerTest(t)

	t.Run("成功_201沿用模板角色", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/agents/from-template", gin.H{
			"template":     "research_analyst",
			"name":         "tpl_agent",
			"capabilities": []string{"citation_tracking"},
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var record agent.AgentDefinition
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
		assert.Equal(t, agent.RoleResearcher, record.Role)
		assert.Contains(t, record.Capabilities, "citation_tracking")
		assert.Contains(t, record.Capabilities, "web_search")
	})

	t.Run("失败_模板不存在404", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/agents/from-template", gin.H{
			"template": "ghost_template",
			"name":     "whatever",
		})
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestExecuteEndpoints(t *testing.T) {
	router, factory := setupHandlerTest(t)
	ctx := context.Background()

	created, err := factory.CreateAgent(ctx, &agent.CreateAgentInput{
		Name: "exec_agent", Role: agent.RoleAssistant, SystemMessage: "x",
	})
	require.NoError(t, err)

	var executionID string

	t.Run("成功_同步执行返回completed", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/agents/"+created.ID+"/execute", gin.H{
			"task": gin.H{"type": "chat", "content": "hello"},
		})
		require.Equal(t, http.StatusOK, w.Code)

		var outcome runtime.ExecutionOutcome
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
		assert.Equal(t, agent.ExecutionStatusCompleted, outcome.Status)
		executionID = outcome.ExecutionID
	})

	t.Run("失败_取消终态执行409", func(t *testing.T) {
		require.NotEmpty(t, executionID)
		w := doRequest(t, router, http.MethodPost, "/api/executions/"+executionID+"/cancel", nil)
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("成功_执行历史", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/agents/"+created.ID+"/executions?limit=5", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Items []agent.ExecutionRecord `json:"items"`
			Count int                     `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
	})

	t.Run("失败_不存在的Agent执行404", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/agents/missing-id/execute", gin.H{
			"task": gin.H{"content": "x"},
		})
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("失败_无队列时异步执行503", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/agents/"+created.ID+"/run", gin.H{
			"task": gin.H{"content": "x"},
		})
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

}

func TestStatsEndpoints(t *testing.T) {
	router, factory := setupHandlerTest(t)
	ctx := context.Background()

	_, err := factory.CreateAgent(ctx, &agent.CreateAgentInput{
		Name: "stats_agent", Role: agent.RoleAnalyst, SystemMessage: "x",
	})
	require.NoError(t, err)

	t.Run("成功_Agent统计", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/stats/agents", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var stats agent.AgentStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, int64(1), stats.TotalAgents)
		require.Len(t, stats.AgentsByRole, 1)
		assert.Equal(t, agent.RoleAnalyst, stats.AgentsByRole[0].Role)
	})

	t.Run("成功_执行统计空库全零", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/stats/runtime", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var stats runtime.RuntimeStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Zero(t, stats.TotalExecutions)
	})
}
