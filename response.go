package spaces

import (
	"net/http"

	"github.com/tokmz/spaces/pkg/errors"
)

// CodeOK 成功响应使用的业务码
const CodeOK = http.StatusOK

// Response HTTP 接口的统一响应体，字段与 WebSocket 直接响应保持一致的命名
type Response struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewResponse 创建响应
func NewResponse(code int, data any, message string) *Response {
	return &Response{Code: code, Data: data, Message: message}
}

// errorResponse 由业务错误生成响应体，原始错误不对外暴露
func errorResponse(e *errors.Error) *Response {
	return &Response{Code: e.Code, Reason: e.Reason, Message: e.Message}
}
