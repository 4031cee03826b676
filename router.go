package spaces

import (
	"github.com/gin-gonic/gin"

	"github.com/tokmz/spaces/pkg/errors"
)

// RouterGroup 路由组
type RouterGroup struct {
	group *gin.RouterGroup
}

// Group 创建子路由组
func (rg *RouterGroup) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{group: rg.group.Group(path, wrapAll(middlewares)...)}
}

// Use 注册中间件
func (rg *RouterGroup) Use(middlewares ...HandlerFunc) {
	rg.group.Use(wrapAll(middlewares)...)
}

// BasePath 路由组前缀
func (rg *RouterGroup) BasePath() string {
	return rg.group.BasePath()
}

// GET 注册 GET 路由
func (rg *RouterGroup) GET(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.group.GET(path, append(wrapAll(middlewares), wrap(handler))...)
}

// POST 注册 POST 路由
func (rg *RouterGroup) POST(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.group.POST(path, append(wrapAll(middlewares), wrap(handler))...)
}

// Any 注册所有 HTTP 方法的路由
func (rg *RouterGroup) Any(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.group.Any(path, append(wrapAll(middlewares), wrap(handler))...)
}

// RouteRegister 路由注册函数类型
type RouteRegister func(path string, handler HandlerFunc, middlewares ...HandlerFunc)

// Handle 有请求参数，有响应数据
// 自动绑定路径与查询参数，自动处理响应
func Handle[Req any, Resp any](register RouteRegister, path string, handler func(*Context, *Req) (*Resp, error), middlewares ...HandlerFunc) {
	register(path, func(c *Context) {
		var req Req
		if err := bind(c, &req); err != nil {
			c.RespondError(err)
			return
		}
		resp, err := handler(c, &req)
		if err != nil {
			c.RespondError(err)
			return
		}
		c.Success(resp)
	}, middlewares...)
}

// HandleOnly 无请求参数，有响应数据
func HandleOnly[Resp any](register RouteRegister, path string, handler func(*Context) (*Resp, error), middlewares ...HandlerFunc) {
	register(path, func(c *Context) {
		resp, err := handler(c)
		if err != nil {
			c.RespondError(err)
			return
		}
		c.Success(resp)
	}, middlewares...)
}

// bind 先绑定路径参数再绑定查询参数
// 查询绑定会校验整个结构体，路径参数需先就位
func bind(c *Context, obj any) error {
	if len(c.ctx.Params) > 0 {
		if err := c.ShouldBindUri(obj); err != nil {
			return errors.ErrBadRequest.WithError(err)
		}
	}
	if err := c.ShouldBindQuery(obj); err != nil {
		return errors.ErrBadRequest.WithError(err)
	}
	return nil
}
