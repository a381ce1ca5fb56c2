package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCode(t *testing.T) {
	def := &AgentDefinition{
		ID:            "deadbeef-0000-0000-0000-000000000000",
		Name:          "crm_specialist",
		Role:          RoleAssistant,
		SystemMessage: "You are a CRM expert. Help manage customer data.",
		Capabilities:  []string{"database_access", "email"},
		Model:         DefaultModel,
		Provider:      DefaultProvider,
	}

	t.Run("成功_包含定义的全部要素", func(t *testing.T) {
		code := GenerateCode(def)
		assert.Contains(t, code, "# Agent: crm_specialist")
		assert.Contains(t, code, "# Role: assistant")
		assert.Contains(t, code, `model="llama-3.3-70b-versatile"`)
		assert.Contains(t, code, `crm_specialist = AssistantAgent(`)
		assert.Contains(t, code, "Your capabilities: database_access, email")
		assert.Contains(t, code, `"capabilities": ['database_access', 'email']`)
		assert.Contains(t, code, `print(f"✅ Agent '{agent_metadata['name']}' initialized successfully")`)
		assert.Contains(t, code, `print(f"Role: {agent_metadata['role']}")`)
		assert.Contains(t, code, `print(f"Capabilities: {agent_metadata['capabilities']}")`)
		assert.Contains(t, code, `__all__ = ["crm_specialist", "agent_metadata"]`)
	})

	t.Run("成功_相同输入输出字节级一致", func(t *testing.T) {
		assert.Equal(t, GenerateCode(def), GenerateCode(def))
	})

	t.Run("成功_空能力集合回退文案", func(t *testing.T) {
		empty := *def
		empty.Capabilities = nil
		code := GenerateCode(&empty)
		assert.Contains(t, code, "Your capabilities: general assistance")
		assert.Contains(t, code, `"capabilities": []`)
	})
}

func TestRenderCapabilityList(t *testing.T) {
	assert.Equal(t, "[]", renderCapabilityList(nil))
	assert.Equal(t, "['python']", renderCapabilityList([]string{"python"}))
	assert.Equal(t, "['a', 'b']", renderCapabilityList([]string{"a", "b"}))
}
