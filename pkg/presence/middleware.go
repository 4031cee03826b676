package presence

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/spaces/pkg/errors"
	"github.com/tokmz/spaces/pkg/logger"
	"github.com/tokmz/spaces/pkg/tracing"
)

// Recovery 捕获处理器 panic，转换为 ErrInternal
func Recovery(log logger.Logger) MiddlewareFunc {
	return func(ctx context.Context, req *Request, next NextFunc) (res *Result, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.ErrorContext(ctx, "event handler panic",
					zap.String("event", string(req.Event.Type())),
					zap.String("conn_id", req.Conn.ID()),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				res, err = nil, ErrInternal.WithError(fmt.Errorf("panic: %v", r))
			}
		}()
		return next(ctx)
	}
}

// Tracing 为每个事件创建 span
func Tracing() MiddlewareFunc {
	return func(ctx context.Context, req *Request, next NextFunc) (*Result, error) {
		ctx, span := tracing.StartSpan(ctx, "presence."+string(req.Event.Type()),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("presence.event", string(req.Event.Type())),
				attribute.String("presence.conn_id", req.Conn.ID()),
			),
		)
		defer span.End()

		res, err := next(ctx)
		if err != nil {
			span.SetAttributes(attribute.String("presence.error_code", errorCode(err)))
			if !isRejection(err) {
				tracing.RecordError(span, err)
			}
		}
		return res, err
	}
}

// Logging 记录事件处理结果，业务拒绝记 debug，基础设施错误记 warn
func Logging(log logger.Logger) MiddlewareFunc {
	return func(ctx context.Context, req *Request, next NextFunc) (*Result, error) {
		start := time.Now()
		// 处理器通过 logger.FromContext 取得带 event 与 conn_id 的 Logger
		reqLog := log.With(zap.String("event", string(req.Event.Type())), zap.String("conn_id", req.Conn.ID()))
		res, err := next(logger.NewContext(ctx, reqLog))

		latency := zap.Duration("latency", time.Since(start))
		switch {
		case err == nil:
			reqLog.DebugContext(ctx, "event handled", latency)
		case isRejection(err):
			reqLog.DebugContext(ctx, "event rejected", latency, zap.String("code", errorCode(err)))
		default:
			reqLog.WarnContext(ctx, "event failed", latency, zap.String("code", errorCode(err)), zap.Error(err))
		}
		return res, err
	}
}

// Instrument 记录事件计数与耗时
func Instrument(m Metrics) MiddlewareFunc {
	return func(ctx context.Context, req *Request, next NextFunc) (*Result, error) {
		t := string(req.Event.Type())
		start := time.Now()
		res, err := next(ctx)
		m.IncEvent(t)
		m.ObserveDispatch(t, time.Since(start))
		if err != nil {
			m.IncEventError(t, errorCode(err))
		}
		return res, err
	}
}

func errorCode(err error) string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return ErrInvalidPayload.Reason
	}
	if e, ok := errors.From(err); ok {
		return e.Reason
	}
	return ErrInternal.Reason
}

// isRejection 是否为业务或协议层拒绝
func isRejection(err error) bool {
	if e, ok := errors.From(err); ok {
		return e.Code >= 4000 && e.Code < 5000
	}
	var fe *FieldError
	return errors.As(err, &fe)
}
