package spaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tokmz/spaces/pkg/errors"
	"github.com/tokmz/spaces/pkg/logger"
)

type (
	countReq struct {
		ID    string `uri:"id" binding:"required"`
		Limit int    `form:"limit" binding:"omitempty,max=10"`
	}
	countResp struct {
		ID    string `json:"id"`
		Limit int    `json:"limit"`
	}
)

func observed() (logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return logger.FromZap(zap.New(core)), logs
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, *Response) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var resp Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, &resp
}

func TestHandleBindsUriAndQuery(t *testing.T) {
	e := NewEngine(logger.Nop(), WithoutBanner())
	Handle[countReq, countResp](e.RouterGroup().GET, "/spaces/:id", func(c *Context, req *countReq) (*countResp, error) {
		return &countResp{ID: req.ID, Limit: req.Limit}, nil
	})

	w, resp := do(t, e.Handler(), http.MethodGet, "/spaces/lobby?limit=5")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeOK, resp.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "lobby", data["id"])
	assert.Equal(t, float64(5), data["limit"])

	w, resp = do(t, e.Handler(), http.MethodGet, "/spaces/lobby?limit=50")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrBadRequest.Code, resp.Code)
}

func TestRespondError(t *testing.T) {
	notFound := errors.New(4404, "GONE", "space gone", http.StatusNotFound)
	e := NewEngine(logger.Nop(), WithoutBanner())
	HandleOnly[countResp](e.RouterGroup().GET, "/biz", func(*Context) (*countResp, error) {
		return nil, notFound.WithMessage("lobby is gone")
	})
	HandleOnly[countResp](e.RouterGroup().GET, "/plain", func(*Context) (*countResp, error) {
		return nil, net.ErrClosed
	})

	w, resp := do(t, e.Handler(), http.MethodGet, "/biz")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 4404, resp.Code)
	assert.Equal(t, "lobby is gone", resp.Message)
	assert.Equal(t, "GONE", resp.Reason)

	w, resp = do(t, e.Handler(), http.MethodGet, "/plain")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.ErrServer.Code, resp.Code)
}

func TestRecoveryAndLogger(t *testing.T) {
	log, logs := observed()
	e := NewEngine(log, WithoutBanner())
	e.Use(Logger(log, &LoggerConfig{ExcludePaths: []string{"/healthz"}}), Recovery(log))
	e.RouterGroup().GET("/panic", func(*Context) { panic("boom") })
	e.RouterGroup().GET("/healthz", func(c *Context) { c.Success("ok") })
	e.RouterGroup().GET("/me", func(c *Context) {
		SetContextSubject(c, "u1")
		c.Success(nil)
	})

	w, resp := do(t, e.Handler(), http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.ErrServer.Code, resp.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())

	do(t, e.Handler(), http.MethodGet, "/healthz")
	do(t, e.Handler(), http.MethodGet, "/me")

	requests := logs.FilterMessage("request").All()
	require.Len(t, requests, 2)
	assert.Equal(t, "/panic", requests[0].ContextMap()["path"])
	assert.Equal(t, int64(500), requests[0].ContextMap()["status"])
	assert.Equal(t, "u1", requests[1].ContextMap()["subject"])
}

func TestFromHTTPAndNoRoute(t *testing.T) {
	e := NewEngine(logger.Nop(), WithoutBanner())
	e.RouterGroup().GET("/raw", FromHTTP(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	e.NoRoute(func(c *Context) { c.Fail(http.StatusNotFound, errors.ErrNotFound.Code, "no route") })

	w, _ := do(t, e.Handler(), http.MethodGet, "/raw")
	assert.Equal(t, http.StatusTeapot, w.Code)

	w, resp := do(t, e.Handler(), http.MethodGet, "/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no route", resp.Message)
}

func TestServeGracefulShutdown(t *testing.T) {
	var order []string
	e := NewEngine(logger.Nop(),
		WithoutBanner(),
		WithShutdownTimeout(time.Second),
		WithBeforeShutdown(func(context.Context) { order = append(order, "before") }),
		WithAfterShutdown(func() { order = append(order, "after") }),
	)
	e.RouterGroup().GET("/ping", func(c *Context) { c.Success("pong") })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, []string{"before", "after"}, order)
}

func TestWithConfigKeepsHooks(t *testing.T) {
	called := 0
	hook := func(context.Context) { called++ }
	cfg := DefaultConfig()
	cfg.Server.Addr = ":9999"

	c := DefaultConfig()
	WithBeforeShutdown(hook)(c)
	WithConfig(cfg)(c)

	assert.Equal(t, ":9999", c.Server.Addr)
	require.Len(t, c.Shutdown.BeforeShutdown, 1)
	c.Shutdown.BeforeShutdown[0](context.Background())
	assert.Equal(t, 1, called)
}

// TestWriteBanner 测试路由表排序与通配地址替换
func TestWriteBanner(t *testing.T) {
	var buf bytes.Buffer
	writeBanner(&buf, "[::]:8080", gin.RoutesInfo{
		{Method: http.MethodGet, Path: "/ws", Handler: "upgrade"},
		{Method: http.MethodGet, Path: "/healthz", Handler: "health"},
	}, gin.ReleaseMode)

	out := buf.String()
	assert.Contains(t, out, "listening on http://127.0.0.1:8080")
	assert.Contains(t, out, "mode release")
	assert.Less(t, strings.Index(out, "/healthz"), strings.Index(out, "/ws"))

	assert.Equal(t, "http://10.0.0.1:80", browsable("10.0.0.1:80"))
	assert.Equal(t, "http://127.0.0.1:9000", browsable(":9000"))
}
