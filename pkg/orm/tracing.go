package orm

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const gormTracerName = "spaces.gorm"

// TracingPlugin GORM 链路追踪插件，每条语句一个 client span
type TracingPlugin struct {
	withSQL bool // 记录完整 SQL（可能包含敏感数据）
}

// TracingOption 追踪插件选项
type TracingOption func(*TracingPlugin)

// WithSQLTrace 在 span 上记录 SQL 语句
func WithSQLTrace(enable bool) TracingOption {
	return func(p *TracingPlugin) {
		p.withSQL = enable
	}
}

// NewTracingPlugin 创建 GORM 追踪插件
func NewTracingPlugin(opts ...TracingOption) *TracingPlugin {
	p := &TracingPlugin{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 插件名称
func (p *TracingPlugin) Name() string {
	return "otelgorm"
}

type callbackRegistrar func(name string, fn func(*gorm.DB)) error

// Initialize 为各类操作注册 before/after 回调
func (p *TracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	ops := []struct {
		op     string
		before callbackRegistrar
		after  callbackRegistrar
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, o := range ops {
		if err := o.before("otelgorm:before_"+o.op, p.start("gorm."+o.op)); err != nil {
			return fmt.Errorf("orm: register %s callback: %w", o.op, err)
		}
		if err := o.after("otelgorm:after_"+o.op, p.end); err != nil {
			return fmt.Errorf("orm: register %s callback: %w", o.op, err)
		}
	}
	return nil
}

func (p *TracingPlugin) start(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		// 每次获取 tracer，Provider 晚于插件初始化时也能生效
		ctx, _ = otel.Tracer(gormTracerName).Start(ctx, operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.String("db.system", db.Dialector.Name())),
		)
		db.Statement.Context = ctx
	}
}

func (p *TracingPlugin) end(db *gorm.DB) {
	span := trace.SpanFromContext(db.Statement.Context)
	if !span.IsRecording() {
		return
	}
	defer span.End()

	attrs := []attribute.KeyValue{attribute.Int64("db.rows_affected", db.Statement.RowsAffected)}
	if db.Statement.Table != "" {
		attrs = append(attrs, attribute.String("db.table", db.Statement.Table))
	}
	if p.withSQL {
		attrs = append(attrs, attribute.String("db.statement", db.Statement.SQL.String()))
	}
	span.SetAttributes(attrs...)

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}
}
