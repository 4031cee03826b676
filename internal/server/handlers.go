package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/spaces"
	"github.com/tokmz/spaces/middleware"
	"github.com/tokmz/spaces/pkg/errors"
	"github.com/tokmz/spaces/pkg/presence"
	"github.com/tokmz/spaces/pkg/ws"
)

const (
	healthPath = "/healthz"
	wsPath     = "/ws"
)

// ErrHistoryDisabled 未启用数据库聊天记录
var ErrHistoryDisabled = errors.New(1404, "HISTORY_DISABLED", "chat history is not enabled", http.StatusNotFound)

type (
	onlineUsersResp struct {
		Users []string `json:"users"`
		Count int      `json:"count"`
	}

	spaceReq struct {
		ID string `uri:"id" binding:"required,max=128"`
	}

	spaceCountResp struct {
		SpaceID string `json:"spaceId"`
		Count   int    `json:"count"`
	}

	statsResp struct {
		presence.Stats
		WebSocketClients int `json:"websocketClients"`
	}

	historyReq struct {
		ID    string `uri:"id" binding:"required,max=128"`
		Limit int    `form:"limit" binding:"omitempty,min=1,max=500"`
	}

	historyResp struct {
		SpaceID  string                  `json:"spaceId"`
		Messages []*presence.ChatMessage `json:"messages"`
	}

	healthResp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}
)

func (a *App) routes() {
	s := a.settings
	e := a.engine

	if s.Tracing.Enabled {
		e.Use(middleware.Tracing(&middleware.TracingConfig{
			TracerName:   "spaces.http",
			ExcludePaths: []string{healthPath, s.Metrics.Path},
		}))
	}
	e.Use(spaces.Logger(a.log, &spaces.LoggerConfig{
		ExcludePaths: []string{healthPath, s.Metrics.Path},
	}))
	e.Use(spaces.Recovery(a.log))
	e.Use(middleware.CORS(&s.CORS))

	var limit []spaces.HandlerFunc
	if s.RateLimit.Enabled {
		limit = append(limit, middleware.RateLimiter(&middleware.RateLimiterConfig{
			RequestsPerSecond: s.RateLimit.RequestsPerSecond,
			Burst:             s.RateLimit.Burst,
			Logger:            a.log.Named("ratelimit"),
		}))
	}

	root := e.RouterGroup()
	root.GET(healthPath, a.health)
	if a.metrics != nil {
		root.GET(s.Metrics.Path, spaces.FromHTTP(a.metrics.Handler()))
	}

	wsChain := append([]spaces.HandlerFunc{}, limit...)
	if s.Auth.Enabled() {
		wsChain = append(wsChain, middleware.Auth(a.verifier, s.Auth.Required, a.log))
	}
	root.GET(wsPath, a.upgrade, wsChain...)

	api := e.Group("/api/v1", limit...)
	if s.Auth.Enabled() {
		api.Use(middleware.Auth(a.verifier, false, a.log))
	}
	spaces.HandleOnly[onlineUsersResp](api.GET, "/users/online", a.onlineUsers)
	spaces.Handle[spaceReq, spaceCountResp](api.GET, "/spaces/:id/users/count", a.spaceCount)
	spaces.Handle[historyReq, historyResp](api.GET, "/spaces/:id/messages", a.chatHistory)
	spaces.HandleOnly[statsResp](api.GET, "/stats", a.stats)
}

// upgrade 升级为 WebSocket，认证用户作为连接 subject
func (a *App) upgrade(c *spaces.Context) {
	var opts []ws.ClientOption
	if sub := spaces.GetContextSubject(c); sub != "" {
		opts = append(opts, ws.WithSubject(sub))
	}
	if err := a.ws.HandleUpgrade(c.Writer(), c.Request(), opts...); err != nil {
		a.log.Debug("websocket upgrade failed",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err),
		)
	}
}

func (a *App) onlineUsers(c *spaces.Context) (*onlineUsersResp, error) {
	users := a.presence.ConnectedUsers()
	return &onlineUsersResp{Users: users, Count: len(users)}, nil
}

func (a *App) spaceCount(c *spaces.Context, req *spaceReq) (*spaceCountResp, error) {
	return &spaceCountResp{SpaceID: req.ID, Count: a.presence.SpaceUserCount(req.ID)}, nil
}

func (a *App) stats(c *spaces.Context) (*statsResp, error) {
	return &statsResp{Stats: a.presence.Stats(), WebSocketClients: a.ws.GetClientCount()}, nil
}

func (a *App) chatHistory(c *spaces.Context, req *historyReq) (*historyResp, error) {
	if a.history == nil {
		return nil, ErrHistoryDisabled
	}
	limit := req.Limit
	if limit == 0 {
		limit = 50
	}
	msgs, err := a.history.History(c.RequestContext(), req.ID, limit)
	if err != nil {
		return nil, errors.ErrUnavailable.WithError(err)
	}
	return &historyResp{SpaceID: req.ID, Messages: msgs}, nil
}

// health 检查数据库与缓存连通性
func (a *App) health(c *spaces.Context) {
	ctx, cancel := context.WithTimeout(c.RequestContext(), 2*time.Second)
	defer cancel()

	resp := &healthResp{Status: "ok", Checks: map[string]string{}}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err != nil {
			resp.Checks["database"] = err.Error()
		} else if err := sqlDB.PingContext(ctx); err != nil {
			resp.Checks["database"] = err.Error()
		} else {
			resp.Checks["database"] = "ok"
		}
	}
	if a.cache != nil {
		if err := a.cache.Ping(ctx); err != nil {
			resp.Checks["cache"] = err.Error()
		} else {
			resp.Checks["cache"] = "ok"
		}
	}
	for _, v := range resp.Checks {
		if v != "ok" {
			resp.Status = "degraded"
			c.Respond(http.StatusServiceUnavailable, spaces.NewResponse(errors.ErrUnavailable.Code, resp, resp.Status))
			return
		}
	}
	c.Success(resp)
}
