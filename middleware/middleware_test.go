package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tokmz/spaces"
	"github.com/tokmz/spaces/pkg/auth"
	"github.com/tokmz/spaces/pkg/logger"
)

func newEngine(mw ...spaces.HandlerFunc) *spaces.Engine {
	e := spaces.NewEngine(logger.Nop(), spaces.WithoutBanner())
	e.Use(mw...)
	e.RouterGroup().GET("/who", func(c *spaces.Context) {
		c.Success(map[string]string{
			"subject":  spaces.GetContextSubject(c),
			"ctx":      auth.Subject(c.RequestContext()),
			"trace_id": spaces.GetContextTraceID(c),
		})
	})
	return e
}

func serve(e *spaces.Engine, r *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, r)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestAuth(t *testing.T) {
	v := auth.NewVerifier(&auth.Config{Secret: "s3cret"})
	token, err := v.Sign("u1", "alice", time.Minute)
	require.NoError(t, err)

	required := newEngine(Auth(v, true, logger.Nop()))
	optional := newEngine(Auth(v, false, logger.Nop()))

	w, body := serve(required, httptest.NewRequest(http.MethodGet, "/who", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, float64(auth.ErrMissingToken.Code), body["code"])

	r := httptest.NewRequest(http.MethodGet, "/who", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w, body = serve(required, r)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "u1", data["subject"])
	assert.Equal(t, "u1", data["ctx"])

	w, body = serve(optional, httptest.NewRequest(http.MethodGet, "/who", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", body["data"].(map[string]any)["subject"])

	w, _ = serve(optional, httptest.NewRequest(http.MethodGet, "/who?token=bad", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORS(t *testing.T) {
	e := newEngine(CORS(&CORSConfig{
		AllowOrigins: []string{"https://app.example.com"},
		AllowHeaders: []string{"Authorization"},
		MaxAge:       time.Hour,
	}))

	r := httptest.NewRequest(http.MethodOptions, "/who", nil)
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w, _ := serve(e, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))

	r = httptest.NewRequest(http.MethodGet, "/who", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w, _ = serve(e, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestKeyedLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	k := newKeyedLimiter(1, 2, time.Minute)
	k.now = func() time.Time { return now }

	assert.True(t, k.allow("a"))
	assert.True(t, k.allow("a"))
	assert.False(t, k.allow("a"))
	assert.True(t, k.allow("b"))

	now = now.Add(time.Second)
	assert.True(t, k.allow("a"))

	now = now.Add(2 * time.Minute)
	k.allow("c")
	assert.Equal(t, 1, k.size())
}

func TestRateLimiter(t *testing.T) {
	e := newEngine(RateLimiter(&RateLimiterConfig{
		RequestsPerSecond: 1,
		Burst:             1,
		KeyFunc:           func(c *spaces.Context) string { return c.Request().Header.Get("X-Client") },
	}))

	req := func(client string) int {
		r := httptest.NewRequest(http.MethodGet, "/who", nil)
		r.Header.Set("X-Client", client)
		w, _ := serve(e, r)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, req("a"))
	assert.Equal(t, http.StatusTooManyRequests, req("a"))
	assert.Equal(t, http.StatusOK, req("b"))
}

func TestTracing(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	}()

	e := newEngine(Tracing(&TracingConfig{TracerName: "test", ExcludePaths: []string{"/healthz"}}))
	e.RouterGroup().GET("/healthz", func(c *spaces.Context) { c.Success(nil) })

	w, body := serve(e, httptest.NewRequest(http.MethodGet, "/who", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("traceparent"))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /who", spans[0].Name())
	traceID := spans[0].SpanContext().TraceID().String()
	assert.Equal(t, traceID, body["trace_id"])
	assert.Equal(t, traceID, body["data"].(map[string]any)["trace_id"])
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.response.status_code", http.StatusOK))

	serve(e, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Len(t, rec.Ended(), 1)
}
