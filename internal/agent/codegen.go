package agent

import (
	"fmt"
	"strings"
)

// GenerateCode 根据 Agent 定义渲染可执行的 Python Agent 源码
// 纯函数：相同输入字节级相同输出，不包含时间戳或随机量
func GenerateCode(def *AgentDefinition) string {
	capabilities := renderCapabilityPhrase(def.Capabilities)

	return fmt.Sprintf(`
# Agent: %s
# Role: %s
# Created by Agent Factory

from autogen_agentchat.agents import AssistantAgent
from autogen_ext.models.groq import GroqChatCompletionClient
import os

# Initialize Groq model client
model_client = GroqChatCompletionClient(
    model="%s",
    api_key=os.getenv("GROQ_API_KEY")
)

# Create the agent
%s = AssistantAgent(
    name="%s",
    model_client=model_client,
    system_message="""
%s

Your capabilities: %s
""",
    description="Agent created by Self-Building Agent System"
)

# Agent metadata
agent_metadata = {
    "id": "%s",
    "name": "%s",
    "role": "%s",
    "capabilities": %s,
    "created_by": "agent_factory"
}

print(f"✅ Agent '{agent_metadata['name']}' initialized successfully")
print(f"Role: {agent_metadata['role']}")
print(f"Capabilities: {agent_metadata['capabilities']}")

# Export agent for use
__all__ = ["%s", "agent_metadata"]
`,
		def.Name,
		def.Role,
		def.Model,
		def.Name,
		def.Name,
		def.SystemMessage,
		capabilities,
		def.ID,
		def.Name,
		def.Role,
		renderCapabilityList(def.Capabilities),
		def.Name,
	)
}

// renderCapabilityPhrase 能力短语：逗号拼接，空集合回退到固定文案
func renderCapabilityPhrase(caps []string) string {
	if len(caps) == 0 {
		return "general assistance"
	}
	return strings.Join(caps, ", ")
}

// renderCapabilityList 渲染 Python 列表字面量
func renderCapabilityList(caps []string) string {
	if len(caps) == 0 {
		return "[]"
	}
	quoted := make([]string, len(caps))
	for i, c := range caps {
		quoted[i] = "'" + c + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
