package logger

import "context"

type contextKey struct{}

// NewContext 将 Logger 存入 context
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext 从 context 取出 Logger，不存在时返回 fallback
func FromContext(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return fallback
}
