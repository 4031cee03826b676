package presence

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/tokmz/spaces/pkg/logger"
)

// Service 组装成员索引、编解码、调度、广播与生命周期
type Service struct {
	Index       *Index
	Codec       *Codec
	Broadcaster *Broadcaster
	Dispatcher  *Dispatcher
	Lifecycle   *Lifecycle

	config *Config
	log    logger.Logger
}

type options struct {
	config      *Config
	chat        ChatSink
	log         logger.Logger
	metrics     Metrics
	now         func() time.Time
	newID       func() string
	middlewares []MiddlewareFunc
	tracing     bool
}

// Option 配置选项
type Option func(*options)

// WithConfig 设置配置
func WithConfig(cfg *Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithChatSink 设置聊天持久化
func WithChatSink(sink ChatSink) Option {
	return func(o *options) { o.chat = sink }
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics 设置指标
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator 设置聊天消息ID生成器，默认 ULID
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithMiddleware 追加事件中间件，位于内置中间件之内
func WithMiddleware(mw ...MiddlewareFunc) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mw...) }
}

// WithTracing 是否为每个事件创建 span，默认开启
func WithTracing(enabled bool) Option {
	return func(o *options) { o.tracing = enabled }
}

// New 创建在线状态服务
func New(dir Directory, opts ...Option) (*Service, error) {
	o := &options{
		config:  DefaultConfig(),
		chat:    NopChatSink{},
		log:     logger.Nop(),
		metrics: NoopMetrics{},
		now:     time.Now,
		newID:   func() string { return ulid.Make().String() },
		tracing: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	log := o.log.Named("presence")

	index := NewIndex()
	index.now = o.now
	codec := NewCodec(o.config.MaxChatLength)

	lc := &Lifecycle{index: index, codec: codec, log: log, now: o.now}
	bc := NewBroadcaster(index, log, o.metrics, lc.Evict)
	d := &Dispatcher{
		index:   index,
		dir:     dir,
		chat:    o.chat,
		bc:      bc,
		codec:   codec,
		log:     log,
		metrics: o.metrics,
		config:  o.config,
		now:     o.now,
		newID:   o.newID,
	}
	lc.dispatcher = d
	lc.bc = bc

	builtin := []MiddlewareFunc{Recovery(log)}
	if o.tracing {
		builtin = append(builtin, Tracing())
	}
	builtin = append(builtin, Logging(log), Instrument(o.metrics))
	if err := d.Use(append(builtin, o.middlewares...)...); err != nil {
		return nil, err
	}

	return &Service{
		Index:       index,
		Codec:       codec,
		Broadcaster: bc,
		Dispatcher:  d,
		Lifecycle:   lc,
		config:      o.config,
		log:         log,
	}, nil
}

// Run 运行空置空间回收，ctx 取消后返回
func (s *Service) Run(ctx context.Context) {
	s.log.Info("presence sweeper started",
		zap.Duration("interval", s.config.SweepInterval),
		zap.Duration("empty_space_ttl", s.config.EmptySpaceTTL),
	)
	s.Index.RunSweeper(ctx, s.config.SweepInterval, s.config.EmptySpaceTTL)
}

// ConnectedUsers 在线用户
func (s *Service) ConnectedUsers() []string {
	return s.Index.ConnectedUsers()
}

// SpaceUserCount 空间在线人数
func (s *Service) SpaceUserCount(spaceID string) int {
	return s.Index.SpaceUserCount(spaceID)
}

// Stats 统计
func (s *Service) Stats() Stats {
	return s.Index.Stats()
}
