package spaces

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandlerFunc 路由处理函数和中间件函数
// 中间件需要调用 c.Next() 来继续执行后续处理
type HandlerFunc func(*Context)

// wrap 将 HandlerFunc 转换为 gin.HandlerFunc
func wrap(fn HandlerFunc) gin.HandlerFunc {
	if fn == nil {
		panic("spaces: handler/middleware cannot be nil")
	}
	return func(c *gin.Context) {
		fn(&Context{ctx: c})
	}
}

// wrapAll 批量转换
func wrapAll(fns []HandlerFunc) []gin.HandlerFunc {
	wrapped := make([]gin.HandlerFunc, len(fns))
	for i, fn := range fns {
		wrapped[i] = wrap(fn)
	}
	return wrapped
}

// FromHTTP 将 http.Handler 转换为 HandlerFunc
func FromHTTP(h http.Handler) HandlerFunc {
	return func(c *Context) {
		h.ServeHTTP(c.Writer(), c.Request())
	}
}
