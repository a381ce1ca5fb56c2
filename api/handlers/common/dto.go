package common

// APIResponse 通用响应结构，用于封装成功或失败结果。
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构，包含数据与分页游标。
type ListResponse struct {
	Items interface{} `json:"items"`
	Skip  int         `json:"skip"`
	Limit int         `json:"limit"`
	Count int         `json:"count"`
}

// ErrorResponse 统一错误返回结构。
// Errors 仅在校验失败时填充，逐条列出违反的规则。
type ErrorResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}
