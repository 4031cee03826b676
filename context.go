package spaces

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/spaces/pkg/errors"
)

// Context 包装 gin.Context
type Context struct {
	ctx *gin.Context
}

// NewContext 创建上下文，用于测试
func NewContext(c *gin.Context) *Context {
	return &Context{ctx: c}
}

// Request 返回底层的 *http.Request
func (c *Context) Request() *http.Request {
	return c.ctx.Request
}

// Writer 返回底层的 ResponseWriter
func (c *Context) Writer() gin.ResponseWriter {
	return c.ctx.Writer
}

// FullPath 获取路由模板路径（如 /spaces/:id）
func (c *Context) FullPath() string {
	return c.ctx.FullPath()
}

// Query 获取 URL 查询参数
func (c *Context) Query(key string) string {
	return c.ctx.Query(key)
}

// ClientIP 客户端 IP
func (c *Context) ClientIP() string {
	return c.ctx.ClientIP()
}

// ShouldBindQuery 绑定 URL 查询参数
func (c *Context) ShouldBindQuery(obj any) error {
	return c.ctx.ShouldBindQuery(obj)
}

// ShouldBindUri 绑定路径参数
func (c *Context) ShouldBindUri(obj any) error {
	return c.ctx.ShouldBindUri(obj)
}

// JSON 发送 JSON 响应
func (c *Context) JSON(code int, obj any) {
	c.ctx.JSON(code, obj)
}

// Set 设置上下文键值对
func (c *Context) Set(key string, value any) {
	c.ctx.Set(key, value)
}

// Get 获取上下文键值对
func (c *Context) Get(key string) (any, bool) {
	return c.ctx.Get(key)
}

// GetString 获取字符串类型的上下文值
func (c *Context) GetString(key string) string {
	return c.ctx.GetString(key)
}

// Next 执行后续处理
func (c *Context) Next() {
	c.ctx.Next()
}

// Abort 中止后续处理
func (c *Context) Abort() {
	c.ctx.Abort()
}

// Header 设置响应头
func (c *Context) Header(key, value string) {
	c.ctx.Header(key, value)
}

// Success 以 200 返回 data
func (c *Context) Success(data any) {
	c.Respond(http.StatusOK, NewResponse(CodeOK, data, "success"))
}

// Fail 以 httpCode 返回业务码与信息
func (c *Context) Fail(httpCode, code int, message string) {
	c.Respond(httpCode, NewResponse(code, nil, message))
}

// RespondError 输出错误。业务错误沿用自身的 HTTP 状态码，其余错误按 ErrServer 处理
func (c *Context) RespondError(err error) {
	var bizErr *errors.Error
	if !errors.As(err, &bizErr) {
		bizErr = errors.ErrServer
		if err != nil {
			bizErr = bizErr.WithMessage(err.Error())
		}
	}
	c.Respond(bizErr.HttpCode, errorResponse(bizErr))
}

// Respond 写出响应体，请求处于追踪中时附带 trace_id
func (c *Context) Respond(status int, resp *Response) {
	if resp.TraceID == "" {
		resp.TraceID = GetContextTraceID(c)
	}
	c.JSON(status, resp)
}

// RequestContext 返回请求的 context.Context，认证用户写入其中
func (c *Context) RequestContext() context.Context {
	return c.ctx.Request.Context()
}

// SetRequestContext 更新 Request 的 Context（用于中间件注入 SpanContext）
func (c *Context) SetRequestContext(ctx context.Context) {
	c.ctx.Request = c.ctx.Request.WithContext(ctx)
}
