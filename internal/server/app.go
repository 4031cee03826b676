package server

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tokmz/spaces"
	"github.com/tokmz/spaces/pkg/auth"
	"github.com/tokmz/spaces/pkg/cache"
	"github.com/tokmz/spaces/pkg/chatlog"
	"github.com/tokmz/spaces/pkg/config"
	"github.com/tokmz/spaces/pkg/directory"
	"github.com/tokmz/spaces/pkg/logger"
	"github.com/tokmz/spaces/pkg/metrics"
	"github.com/tokmz/spaces/pkg/orm"
	"github.com/tokmz/spaces/pkg/presence"
	"github.com/tokmz/spaces/pkg/tracing"
	"github.com/tokmz/spaces/pkg/ws"
)

// App 组装后的服务
type App struct {
	settings *Settings
	log      logger.Logger

	tracer   *tracing.Provider
	db       *gorm.DB
	cache    cache.Cache
	dir      presence.Directory
	chat     chatlog.Sink
	history  *chatlog.GormSink
	metrics  *metrics.Collector
	presence *presence.Service
	ws       *ws.Manager
	verifier *auth.Verifier
	engine   *spaces.Engine

	closers []func(context.Context) error
}

type appOptions struct {
	log      logger.Logger
	dir      presence.Directory
	registry *prometheus.Registry
	now      func() time.Time
}

// Option App 选项
type Option func(*appOptions)

// WithLogger 使用外部日志，不再按配置创建
func WithLogger(l logger.Logger) Option {
	return func(o *appOptions) { o.log = l }
}

// WithDirectory 使用外部目录，忽略 directory 配置
func WithDirectory(dir presence.Directory) Option {
	return func(o *appOptions) { o.dir = dir }
}

// WithRegistry 指定 Prometheus 注册表
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *appOptions) { o.registry = reg }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(o *appOptions) { o.now = now }
}

// New 按配置组装服务，失败时释放已创建的资源
func New(ctx context.Context, s *Settings, opts ...Option) (app *App, err error) {
	if s == nil {
		s = DefaultSettings()
	}
	o := &appOptions{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if err := s.validate(o.dir == nil); err != nil {
		return nil, err
	}

	app = &App{settings: s}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
			app = nil
		}
	}()

	if o.log != nil {
		app.log = o.log
	} else {
		if app.log, err = logger.FromSettings(&s.Log); err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error {
			_ = app.log.Sync()
			return nil
		})
	}

	if err = app.setupTracing(ctx); err != nil {
		return nil, err
	}
	if err = app.setupDatabase(ctx); err != nil {
		return nil, err
	}
	if err = app.setupDirectory(ctx, o.dir); err != nil {
		return nil, err
	}
	if err = app.setupChat(ctx); err != nil {
		return nil, err
	}
	if err = app.setupPresence(o); err != nil {
		return nil, err
	}
	if err = app.setupWS(); err != nil {
		return nil, err
	}

	app.verifier = auth.NewVerifier(&s.Auth)
	app.engine = spaces.NewEngine(app.log,
		spaces.WithConfig(&s.HTTP),
		spaces.WithBeforeShutdown(func(ctx context.Context) {
			if err := app.ws.Shutdown(ctx); err != nil {
				app.log.Warn("websocket shutdown incomplete", zap.Error(err))
			}
		}),
	)
	app.routes()

	app.log.Info("app initialized",
		zap.String("directory", s.Directory.Driver),
		zap.String("chat", string(s.Chat.Driver)),
		zap.Bool("auth", s.Auth.Enabled()),
		zap.Bool("database", app.db != nil),
		zap.Bool("cache", app.cache != nil),
		zap.Bool("metrics", s.Metrics.Enabled),
	)
	return app, nil
}

func (a *App) setupTracing(ctx context.Context) error {
	tp, err := tracing.Setup(ctx, &a.settings.Tracing)
	if err != nil {
		return err
	}
	a.tracer = tp
	a.closers = append(a.closers, tp.Shutdown)
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if !a.settings.Database.Enabled {
		return nil
	}
	db, err := orm.New(&a.settings.Database.ORM, a.log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error { return orm.Close(db) })
	return nil
}

func (a *App) setupDirectory(ctx context.Context, external presence.Directory) error {
	ds := a.settings.Directory
	var dir presence.Directory

	switch {
	case external != nil:
		dir = external
	case ds.Driver == "gorm":
		store := directory.NewStore(a.db)
		if ds.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("directory migrate: %w", err)
			}
		}
		if ds.Seed != "" {
			seed, err := directory.LoadSeed(ds.Seed)
			if err != nil {
				return err
			}
			if err := store.Seed(ctx, seed); err != nil {
				return fmt.Errorf("directory seed: %w", err)
			}
		}
		dir = store
	default:
		seed, err := directory.LoadSeed(ds.Seed)
		if err != nil {
			return err
		}
		dir = directory.NewMemory(seed)
	}

	if a.settings.Cache.Enabled {
		cc := a.settings.Cache.Cache
		c, err := cache.New(&cc)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		a.cache = c
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
		dir = directory.NewCached(dir, c, a.settings.Cache.TTL)
	}
	a.dir = dir
	return nil
}

func (a *App) setupChat(ctx context.Context) error {
	cfg := a.settings.Chat
	if cfg.Driver == chatlog.DriverGorm {
		a.history = chatlog.NewGormSink(a.db)
		if a.settings.Directory.Migrate {
			if err := a.history.Migrate(ctx); err != nil {
				return fmt.Errorf("chat migrate: %w", err)
			}
		}
	}
	sink, err := chatlog.New(&cfg, a.db, a.log.Named("chatlog"))
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	a.chat = sink
	a.closers = append(a.closers, func(context.Context) error { return sink.Close() })
	return nil
}

func (a *App) setupPresence(o *appOptions) error {
	s := a.settings
	popts := []presence.Option{
		presence.WithConfig(&s.Presence),
		presence.WithChatSink(a.chat),
		presence.WithLogger(a.log),
		presence.WithClock(o.now),
		presence.WithTracing(s.Tracing.Enabled),
	}
	if s.Metrics.Enabled {
		a.metrics = metrics.New(s.Metrics.Namespace, o.registry)
		popts = append(popts, presence.WithMetrics(a.metrics))
	}

	svc, err := presence.New(a.dir, popts...)
	if err != nil {
		return err
	}
	a.presence = svc
	if a.metrics != nil {
		a.metrics.WatchPresence(s.Metrics.Namespace, svc.Stats)
	}
	return nil
}

func (a *App) setupWS() error {
	wsCfg := a.settings.WS
	if a.metrics != nil {
		wsCfg.Metrics = a.metrics
	}
	m, err := ws.NewManager(&bridge{lc: a.presence.Lifecycle, log: a.log}, a.log, ws.WithConfig(&wsCfg))
	if err != nil {
		return fmt.Errorf("websocket: %w", err)
	}
	a.ws = m
	return nil
}

// Engine HTTP 引擎
func (a *App) Engine() *spaces.Engine { return a.engine }

// Presence 在线状态服务
func (a *App) Presence() *presence.Service { return a.presence }

// Verifier 令牌校验器
func (a *App) Verifier() *auth.Verifier { return a.verifier }

// Logger 日志
func (a *App) Logger() logger.Logger { return a.log }

// Run 启动空间回收并服务 HTTP，ctx 取消后优雅关机并释放资源
func (a *App) Run(ctx context.Context) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.presence.Run(sctx)

	err := a.engine.Run(ctx)
	cancel()
	if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close 逆序释放资源，可重复调用
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			if a.log != nil {
				a.log.Warn("close resource failed", zap.Error(err))
			}
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}

// Reload 应用可热更新的配置项，目前只有日志级别
func (a *App) Reload(cfg *config.Config) {
	name := cfg.GetString("log.level")
	level, err := logger.ParseLevel(name)
	if err != nil {
		a.log.Warn("ignore invalid log level", zap.String("level", name), zap.Error(err))
		return
	}
	if level == a.log.Level() {
		return
	}
	a.log.SetLevel(level)
	a.log.Info("log level changed", zap.String("level", level.String()))
}
