package middleware

import (
	"go.uber.org/zap"

	"github.com/tokmz/spaces"
	"github.com/tokmz/spaces/pkg/auth"
	"github.com/tokmz/spaces/pkg/logger"
)

// Auth 校验 Bearer 令牌（或 token 查询参数），通过后写入认证用户
// required 为 false 时允许匿名请求，但携带的令牌必须有效
func Auth(v *auth.Verifier, required bool, log logger.Logger) spaces.HandlerFunc {
	return func(c *spaces.Context) {
		sub, err := v.Authenticate(c.Request(), required)
		if err != nil {
			log.WarnContext(c.RequestContext(), "authentication failed",
				zap.String("path", c.Request().URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err),
			)
			c.RespondError(err)
			c.Abort()
			return
		}
		if sub != "" {
			spaces.SetContextSubject(c, sub)
			c.SetRequestContext(auth.WithSubject(c.RequestContext(), sub))
		}
		c.Next()
	}
}
