package spaces

const (
	// ContextTraceIDKey 链路追踪trace_id键
	ContextTraceIDKey = "trace_id"
	// ContextSubjectKey 认证用户键
	ContextSubjectKey = "subject"
)

// GetContextTraceID 获取上下文链路追踪trace_id
func GetContextTraceID(ctx *Context) string {
	return ctx.GetString(ContextTraceIDKey)
}

// SetContextTraceID 设置上下文链路追踪trace_id
func SetContextTraceID(ctx *Context, traceID string) {
	ctx.Set(ContextTraceIDKey, traceID)
}

// GetContextSubject 获取认证用户
func GetContextSubject(ctx *Context) string {
	return ctx.GetString(ContextSubjectKey)
}

// SetContextSubject 设置认证用户
func SetContextSubject(ctx *Context, subject string) {
	ctx.Set(ContextSubjectKey, subject)
}
