package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateStoreSeedDefaults(t *testing.T) {
	ctx := context.Background()
	db := setupAgentTestDB(t)
	store := NewTemplateStore(db)

	t.Run("成功_写入三个内置模板", func(t *testing.T) {
		require.NoError(t, store.SeedDefaults(ctx))

		var count int64
		require.NoError(t, db.Model(&AgentTemplate{}).Count(&count).Error)
		assert.Equal(t, int64(3), count)
	})

	t.Run("成功_重复调用是空操作", func(t *testing.T) {
		require.NoError(t, store.SeedDefaults(ctx))
		require.NoError(t, store.SeedDefaults(ctx))

		var count int64
		require.NoError(t, db.Model(&AgentTemplate{}).Count(&count).Error)
		assert.Equal(t, int64(3), count)
	})

	t.Run("成功_已有同名模板不覆盖", func(t *testing.T) {
		require.NoError(t, db.Model(&AgentTemplate{}).
			Where("name = ?", "generic_assistant").
			Update("system_message", "customized").Error)

		require.NoError(t, store.SeedDefaults(ctx))
		tpl, err := store.GetByName(ctx, "generic_assistant")
		require.NoError(t, err)
		assert.Equal(t, "customized", tpl.SystemMessage)
	})
}

func TestTemplateStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewTemplateStore(setupAgentTestDB(t))
	require.NoError(t, store.SeedDefaults(ctx))

	templates, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 3)

	// 内置模板按名称字母序
	assert.Equal(t, "code_specialist", templates[0].Name)
	assert.Equal(t, "generic_assistant", templates[1].Name)
	assert.Equal(t, "research_analyst", templates[2].Name)
}

func TestTemplateStoreGetByName(t *testing.T) {
	ctx := context.Background()
	store := NewTemplateStore(setupAgentTestDB(t))
	require.NoError(t, store.SeedDefaults(ctx))

	t.Run("成功_查询内置模板", func(t *testing.T) {
		tpl, err := store.GetByName(ctx, "code_specialist")
		require.NoError(t, err)
		assert.Equal(t, RoleCoder, tpl.Role)
		assert.Equal(t, []string{"debugging", "javascript", "python"}, tpl.Capabilities)
		assert.True(t, tpl.IsDefault)
	})

	t.Run("失败_模板不存在", func(t *testing.T) {
		_, err := store.GetByName(ctx, "missing_template")
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})
}
