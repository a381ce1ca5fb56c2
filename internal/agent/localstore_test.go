package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SeedDefaults(context.Background()))
	return store
}

func TestLocalStoreSeedDefaults(t *testing.T) {
	ctx := context.Background()
	store := setupLocalStore(t)

	t.Run("成功_模板文件落盘", func(t *testing.T) {
		for _, name := range []string{"generic_assistant", "code_specialist", "research_analyst"} {
			_, err := os.Stat(filepath.Join(store.Dir(), "templates", name+".json"))
			assert.NoError(t, err)
		}
	})

	t.Run("成功_重复调用不覆盖", func(t *testing.T) {
		before, err := store.GetTemplate(ctx, "generic_assistant")
		require.NoError(t, err)
		require.NoError(t, store.SeedDefaults(ctx))
		after, err := store.GetTemplate(ctx, "generic_assistant")
		require.NoError(t, err)
		assert.Equal(t, before.ID, after.ID)
	})
}

func TestLocalStoreCreateAgent(t *testing.T) {
	ctx := context.Background()
	store := setupLocalStore(t)

	t.Run("成功_创建并生成代码", func(t *testing.T) {
		record, err := store.CreateAgent(ctx, &CreateAgentInput{
			Name:          "file_agent",
			Role:          RoleAssistant,
			SystemMessage: "You help with files.",
			Capabilities:  []string{"b", "a", "b"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, record.Capabilities)
		require.NotNil(t, record.GeneratedCode)
		assert.Contains(t, *record.GeneratedCode, "file_agent = AssistantAgent(")

		_, err = os.Stat(filepath.Join(store.Dir(), "file_agent.json"))
		assert.NoError(t, err)
	})

	t.Run("失败_校验规则与工厂一致", func(t *testing.T) {
		_, err := store.CreateAgent(ctx, &CreateAgentInput{Name: "bad name!", Role: "wizard"})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Errors, "Missing required field: system_message")
		assert.Contains(t, vErr.Errors, "Invalid role. Must be one of: assistant, coder, researcher, analyst, specialist")
		assert.Contains(t, vErr.Errors, "Agent name must contain only letters, numbers, hyphens, and underscores")
	})

	t.Run("失败_名称重复", func(t *testing.T) {
		_, err := store.CreateAgent(ctx, &CreateAgentInput{
			Name:          "file_agent",
			Role:          RoleAssistant,
			SystemMessage: "x",
		})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Errors, "Agent with name 'file_agent' already exists")
	})
}

func TestLocalStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := setupLocalStore(t)

	var ids []string
	for _, name := range []string{"one", "two", "three"} {
		record, err := store.CreateAgent(ctx, &CreateAgentInput{
			Name: name, Role: RoleAssistant, SystemMessage: "x",
		})
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}

	t.Run("成功_列表与分页", func(t *testing.T) {
		all, err := store.List(ctx, 0, 100)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		page, err := store.List(ctx, 1, 1)
		require.NoError(t, err)
		assert.Len(t, page, 1)
	})

	t.Run("成功_按ID查询", func(t *testing.T) {
		record, err := store.Get(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, "one", record.Name)
	})

	t.Run("成功_删除后文件移除", func(t *testing.T) {
		deleted, err := store.Delete(ctx, ids[0])
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = os.Stat(filepath.Join(store.Dir(), "one.json"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("成功_删除不存在的ID返回false", func(t *testing.T) {
		deleted, err := store.Delete(ctx, "missing-id")
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestLocalStoreRejectsPathTraversalNames(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	// 存储目录之外放一个诱饵文件，穿越名不应读到它
	decoy := AgentDefinition{ID: "decoy", Name: "decoy", Role: RoleAssistant}
	require.NoError(t, writeJSONFile(filepath.Join(root, "decoy.json"), &decoy))

	store, err := NewLocalStore(filepath.Join(root, "agents"))
	require.NoError(t, err)
	require.NoError(t, store.SeedDefaults(ctx))

	t.Run("失败_Agent名含路径分隔符", func(t *testing.T) {
		_, err := store.GetByName(ctx, "../decoy")
		assert.ErrorIs(t, err, ErrAgentNotFound)
	})

	t.Run("失败_模板名含路径分隔符", func(t *testing.T) {
		_, err := store.GetTemplate(ctx, "../../decoy")
		assert.ErrorIs(t, err, ErrTemplateNotFound)

		_, err = store.CreateFromTemplate(ctx, "../../decoy", "whatever", nil)
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})
}

func TestLocalStoreCreateFromTemplate(t *testing.T) {
	ctx := context.Background()
	store := setupLocalStore(t)

	record, err := store.CreateFromTemplate(ctx, "research_analyst", "my_researcher", &TemplateCustomizations{
		Capabilities: []string{"citation_tracking"},
	})
	require.NoError(t, err)
	assert.Equal(t, RoleResearcher, record.Role)
	assert.Equal(t, []string{"citation_tracking", "data_analysis", "report_generation", "web_search"}, record.Capabilities)
	assert.Equal(t, "research_analyst", record.Metadata["created_from_template"])
}
