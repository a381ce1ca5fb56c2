package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupFallback(t *testing.T, factory *AgentFactory) *FallbackService {
	t.Helper()
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, local.SeedDefaults(context.Background()))
	return NewFallbackService(factory, local)
}

// breakDB 关闭底层连接，后续查询全部报错
func breakDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestFallbackPrefersDatabase(t *testing.T) {
	ctx := context.Background()
	db := setupAgentTestDB(t)
	templates := NewTemplateStore(db)
	require.NoError(t, templates.SeedDefaults(ctx))
	factory := NewAgentFactory(NewAgentStore(db), templates, nil)
	svc := setupFallback(t, factory)

	record, err := svc.CreateAgent(ctx, &CreateAgentInput{
		Name: "db_agent", Role: RoleAssistant, SystemMessage: "x",
	})
	require.NoError(t, err)

	// 记录应落在数据库而不是本地文件
	fromDB, err := factory.Store().GetByName(ctx, "db_agent")
	require.NoError(t, err)
	assert.Equal(t, record.ID, fromDB.ID)

	agents, err := svc.ListAgents(ctx, 0, 100)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func TestFallbackDegradesToLocalStore(t *testing.T) {
	ctx := context.Background()
	db := setupAgentTestDB(t)
	templates := NewTemplateStore(db)
	require.NoError(t, templates.SeedDefaults(ctx))
	factory := NewAgentFactory(NewAgentStore(db), templates, nil)
	svc := setupFallback(t, factory)

	breakDB(t, db)

	t.Run("成功_创建降级到文件", func(t *testing.T) {
		record, err := svc.CreateAgent(ctx, &CreateAgentInput{
			Name: "degraded_agent", Role: RoleAssistant, SystemMessage: "x",
		})
		require.NoError(t, err)
		assert.NotNil(t, record.GeneratedCode)
	})

	t.Run("成功_查询降级到文件", func(t *testing.T) {
		agents, err := svc.ListAgents(ctx, 0, 100)
		require.NoError(t, err)
		assert.Len(t, agents, 1)

		code, err := svc.GetAgentCode(ctx, "degraded_agent")
		require.NoError(t, err)
		assert.Contains(t, code, "degraded_agent = AssistantAgent(")
	})

	t.Run("成功_模板查询降级到文件", func(t *testing.T) {
		tpls, err := svc.ListTemplates(ctx)
		require.NoError(t, err)
		assert.Len(t, tpls, 3)
	})
}

func TestFallbackPureFileMode(t *testing.T) {
	ctx := context.Background()
	svc := setupFallback(t, nil)

	record, err := svc.CreateFromTemplate(ctx, "generic_assistant", "file_only", nil)
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, record.Role)

	found, err := svc.GetAgentByName(ctx, "file_only")
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)
}

func TestFallbackBusinessErrorsDoNotDegrade(t *testing.T) {
	ctx := context.Background()
	db := setupAgentTestDB(t)
	templates := NewTemplateStore(db)
	require.NoError(t, templates.SeedDefaults(ctx))
	factory := NewAgentFactory(NewAgentStore(db), templates, nil)
	svc := setupFallback(t, factory)

	// 校验错误原样透出，不会写本地文件
	_, err := svc.CreateAgent(ctx, &CreateAgentInput{Name: "bad name!"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = svc.GetAgentByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
