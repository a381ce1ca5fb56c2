package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"backend/internal/agent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	local, err := agent.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, local.SeedDefaults(context.Background()))
	return NewServer(agent.NewFallbackService(nil, local))
}

// roundTrip 把多条请求按行写入，返回按行解析的响应
func roundTrip(t *testing.T, server *Server, requests ...string) []map[string]any {
	t.Helper()

	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	var out bytes.Buffer
	require.NoError(t, server.Run(context.Background(), in, &out))

	var responses []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		responses = append(responses, resp)
	}
	return responses
}

// toolText 取 tools/call 响应里的文本内容
func toolText(t *testing.T, resp map[string]any) (string, bool) {
	t.Helper()
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok, "响应缺少 result: %v", resp)
	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, content)
	block := content[0].(map[string]any)
	isError, _ := result["isError"].(bool)
	return block["text"].(string), isError
}

func TestServerInitialize(t *testing.T) {
	server := setupServer(t)
	responses := roundTrip(t, server,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
	)
	require.Len(t, responses, 1)

	result := responses[0]["result"].(map[string]any)
	serverInfo := result["serverInfo"].(map[string]any)
	assert.Equal(t, "AgentFactory", serverInfo["name"])
	assert.NotEmpty(t, result["protocolVersion"])
}

func TestServerToolsList(t *testing.T) {
	server := setupServer(t)
	responses := roundTrip(t, server,
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
	)
	require.Len(t, responses, 1)

	result := responses[0]["result"].(map[string]any)
	tools := result["tools"].([]any)
	require.Len(t, tools, 3)

	var names []string
	for _, tool := range tools {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t, []string{"create_new_agent", "list_agents", "get_agent_code"}, names)
}

func TestServerToolCalls(t *testing.T) {
	server := setupServer(t)

	createReq := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"create_new_agent","arguments":{"name":"mcp_agent","role":"assistant","system_message":"You help via MCP.","capabilities":["email"]}}}`
	listReq := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"list_agents","arguments":{}}}`
	codeReq := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_agent_code","arguments":{"name":"mcp_agent"}}}`

	responses := roundTrip(t, server, createReq, listReq, codeReq)
	require.Len(t, responses, 3)

	t.Run("成功_创建Agent", func(t *testing.T) {
		text, isError := toolText(t, responses[0])
		assert.False(t, isError)
		assert.Contains(t, text, "Agent 'mcp_agent' created successfully")
		assert.Contains(t, text, "AssistantAgent")
	})

	t.Run("成功_列出Agent", func(t *testing.T) {
		text, isError := toolText(t, responses[1])
		assert.False(t, isError)

		var payload struct {
			Total  int `json:"total"`
			Agents []struct {
				Name string `json:"name"`
				Role string `json:"role"`
			} `json:"agents"`
		}
		require.NoError(t, json.Unmarshal([]byte(text), &payload))
		assert.Equal(t, 1, payload.Total)
		require.Len(t, payload.Agents, 1)
		assert.Equal(t, "mcp_agent", payload.Agents[0].Name)
	})

	t.Run("成功_取回生成代码", func(t *testing.T) {
		text, isError := toolText(t, responses[2])
		assert.False(t, isError)
		assert.Contains(t, text, "mcp_agent = AssistantAgent(")
	})
}

func TestServerToolErrors(t *testing.T) {
	server := setupServer(t)

	t.Run("失败_校验错误以isError返回", func(t *testing.T) {
		responses := roundTrip(t, server,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"create_new_agent","arguments":{"name":"bad name!","role":"wizard"}}}`,
		)
		require.Len(t, responses, 1)
		text, isError := toolText(t, responses[0])
		assert.True(t, isError)
		assert.Contains(t, text, "Missing required field: system_message")
	})

	t.Run("失败_不存在的Agent", func(t *testing.T) {
		responses := roundTrip(t, server,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_agent_code","arguments":{"name":"ghost"}}}`,
		)
		text, isError := toolText(t, responses[0])
		assert.True(t, isError)
		assert.Contains(t, text, "Agent 'ghost' not found")
	})

	t.Run("失败_名称含路径分隔符按未找到处理", func(t *testing.T) {
		responses := roundTrip(t, server,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_agent_code","arguments":{"name":"../../outside"}}}`,
		)
		text, isError := toolText(t, responses[0])
		assert.True(t, isError)
		assert.Contains(t, text, "not found")
	})

	t.Run("失败_未知工具返回协议错误", func(t *testing.T) {
		responses := roundTrip(t, server,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"no_such_tool"}}`,
		)
		rpcErr := responses[0]["error"].(map[string]any)
		assert.Equal(t, float64(-32602), rpcErr["code"])
	})

	t.Run("失败_未知方法", func(t *testing.T) {
		responses := roundTrip(t, server,
			`{"jsonrpc":"2.0","id":9,"method":"bogus/method"}`,
		)
		rpcErr := responses[0]["error"].(map[string]any)
		assert.Equal(t, float64(-32601), rpcErr["code"])
		assert.Contains(t, rpcErr["message"], "bogus/method")
	})
}

func TestServerMalformedInput(t *testing.T) {
	server := setupServer(t)
	responses := roundTrip(t, server,
		`{not json`,
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
	)
	require.Len(t, responses, 2)

	rpcErr := responses[0]["error"].(map[string]any)
	assert.Equal(t, float64(-32700), rpcErr["code"])

	_, hasResult := responses[1]["result"]
	assert.True(t, hasResult)
}
