package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"backend/internal/agent"
	"backend/internal/logger"

	"go.uber.org/zap"
)

// 协议常量
const (
	jsonrpcVersion  = "2.0"
	protocolVersion = "2024-11-05"
	serverName      = "AgentFactory"
	serverVersion   = "1.0.0"
)

// JSON-RPC 错误码
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// request JSON-RPC 2.0 请求
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// response JSON-RPC 2.0 响应
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolDescriptor 工具元数据，tools/list 返回
type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// textContent MCP 文本内容块
type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolResult tools/call 返回
type toolResult struct {
	Content []textContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Server MCP stdio 服务端
// 按行读取 JSON-RPC 请求，工具调用经由降级服务执行；
// stdout 是协议通道，日志只允许走 stderr
type Server struct {
	svc *agent.FallbackService

	mu  sync.Mutex // 串行化写出
	out io.Writer
}

// NewServer 创建 Server 实例
func NewServer(svc *agent.FallbackService) *Server {
	return &Server{svc: svc}
}

// Run 处理请求直到输入流结束
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeError(nil, codeParseError, "parse error")
			continue
		}

		s.dispatch(ctx, &req)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("读取请求失败: %w", err)
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, req *request) {
	switch req.Method {
	case "initialize":
		s.writeResult(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
		})
	case "notifications/initialized":
		// 通知无需应答
	case "tools/list":
		s.writeResult(req.ID, map[string]any{"tools": toolDescriptors()})
	case "tools/call":
		s.handleToolCall(ctx, req)
	case "ping":
		s.writeResult(req.ID, map[string]any{})
	default:
		if req.ID == nil {
			return
		}
		s.writeError(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// toolDescriptors 工具清单
func toolDescriptors() []toolDescriptor {
	return []toolDescriptor{
		{
			Name:        "create_new_agent",
			Description: "Create a new AI agent with specified capabilities. Returns the generated agent code.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":           map[string]any{"type": "string", "description": "Unique agent name (e.g., \"crm_specialist\")"},
					"role":           map[string]any{"type": "string", "description": "Agent role: assistant, coder, researcher, analyst or specialist"},
					"system_message": map[string]any{"type": "string", "description": "Instructions defining agent's purpose and behavior"},
					"capabilities":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Optional list of special capabilities"},
				},
				"required": []string{"name", "role", "system_message"},
			},
		},
		{
			Name:        "list_agents",
			Description: "List all agents that have been created.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "get_agent_code",
			Description: "Retrieve the generated code for a previously created agent.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{"type": "string", "description": "Name of the agent"},
				},
				"required": []string{"name"},
			},
		},
	}
}

// handleToolCall 分发工具调用
// 业务失败通过 isError 文本内容返回，协议层错误才走 JSON-RPC error
func (s *Server) handleToolCall(ctx context.Context, req *request) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(req.ID, codeInvalidParams, "invalid params")
		return
	}

	var (
		payload any
		err     error
	)
	switch params.Name {
	case "create_new_agent":
		payload, err = s.toolCreateAgent(ctx, params.Arguments)
	case "list_agents":
		payload, err = s.toolListAgents(ctx)
	case "get_agent_code":
		payload, err = s.toolGetAgentCode(ctx, params.Arguments)
	default:
		s.writeError(req.ID, codeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name))
		return
	}

	if err != nil {
		logger.Warn("工具调用失败", zap.String("tool", params.Name), zap.Error(err))
		s.writeResult(req.ID, toolResult{
			Content: []textContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
		return
	}

	text, merr := json.MarshalIndent(payload, "", "  ")
	if merr != nil {
		s.writeError(req.ID, codeInternalError, "failed to encode tool result")
		return
	}
	s.writeResult(req.ID, toolResult{
		Content: []textContent{{Type: "text", Text: string(text)}},
	})
}

func (s *Server) toolCreateAgent(ctx context.Context, args json.RawMessage) (any, error) {
	var input struct {
		Name          string   `json:"name"`
		Role          string   `json:"role"`
		SystemMessage string   `json:"system_message"`
		Capabilities  []string `json:"capabilities"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &input); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	record, err := s.svc.CreateAgent(ctx, &agent.CreateAgentInput{
		Name:          input.Name,
		Role:          input.Role,
		SystemMessage: input.SystemMessage,
		Capabilities:  input.Capabilities,
	})
	if err != nil {
		return nil, err
	}

	code := ""
	if record.GeneratedCode != nil {
		code = *record.GeneratedCode
	}
	return map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Agent '%s' created successfully", record.Name),
		"code":    code,
		"agent":   record,
	}, nil
}

func (s *Server) toolListAgents(ctx context.Context) (any, error) {
	records, err := s.svc.ListAgents(ctx, 0, 100)
	if err != nil {
		return nil, err
	}

	agents := make([]map[string]any, 0, len(records))
	for _, r := range records {
		agents = append(agents, map[string]any{
			"name":         r.Name,
			"role":         r.Role,
			"capabilities": r.Capabilities,
			"created_at":   r.CreatedAt,
		})
	}
	return map[string]any{
		"total":  len(agents),
		"agents": agents,
	}, nil
}

func (s *Server) toolGetAgentCode(ctx context.Context, args json.RawMessage) (any, error) {
	var input struct {
		Name string `json:"name"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &input); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	code, err := s.svc.GetAgentCode(ctx, input.Name)
	if err != nil {
		if agent.IsNotFound(err) {
			return nil, fmt.Errorf("Agent '%s' not found", input.Name)
		}
		return nil, err
	}
	return map[string]any{
		"status": "success",
		"code":   code,
	}, nil
}

func (s *Server) writeResult(id json.RawMessage, result any) {
	s.write(&response{JSONRPC: jsonrpcVersion, ID: id, Result: result})
}

func (s *Server) writeError(id json.RawMessage, code int, message string) {
	s.write(&response{JSONRPC: jsonrpcVersion, ID: id, Error: &rpcError{Code: code, Message: message}})
}

// write 单行 JSON 写出，互斥保证消息不交错
func (s *Server) write(resp *response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error("编码响应失败", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := s.out.Write(data); err != nil {
		logger.Error("写出响应失败", zap.Error(err))
	}
}
