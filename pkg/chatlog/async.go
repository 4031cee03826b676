package chatlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/spaces/pkg/logger"
	"github.com/tokmz/spaces/pkg/presence"
	"github.com/tokmz/spaces/pkg/tracing"
)

// pending 带 trace context 的待写消息
type pending struct {
	msg     *presence.ChatMessage
	spanCtx trace.SpanContext
}

// AsyncStats 异步写入统计
type AsyncStats struct {
	Enqueued uint64 `json:"enqueued"`
	Written  uint64 `json:"written"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
}

// Async 异步攒批写入，慢后端不会阻塞聊天广播
// 队列满时 SaveChat 立即返回 ErrQueueFull
type Async struct {
	next  Sink
	batch BatchSink // 可选
	log   logger.Logger
	cfg   AsyncConfig

	mu     sync.RWMutex
	closed bool
	queue  chan pending
	stop   chan struct{}
	wg     sync.WaitGroup

	enqueued atomic.Uint64
	written  atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// NewAsync 创建并启动异步写入
func NewAsync(next Sink, cfg AsyncConfig, log logger.Logger) *Async {
	def := DefaultAsyncConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if log == nil {
		log = logger.Nop()
	}

	a := &Async{
		next:  next,
		log:   log.Named("chatlog"),
		cfg:   cfg,
		queue: make(chan pending, cfg.QueueSize),
		stop:  make(chan struct{}),
	}
	if bs, ok := next.(BatchSink); ok {
		a.batch = bs
	}

	a.wg.Add(1)
	go a.process()
	return a
}

// SaveChat 入队
func (a *Async) SaveChat(ctx context.Context, msg *presence.ChatMessage) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- pending{msg: msg, spanCtx: trace.SpanContextFromContext(ctx)}:
		a.enqueued.Add(1)
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

// Stats 统计快照
func (a *Async) Stats() AsyncStats {
	return AsyncStats{
		Enqueued: a.enqueued.Load(),
		Written:  a.written.Load(),
		Failed:   a.failed.Load(),
		Dropped:  a.dropped.Load(),
	}
}

// Close 写完队列中的消息后关闭下游，可重复调用
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.stop)
	a.mu.Unlock()

	a.wg.Wait()
	return a.next.Close()
}

func (a *Async) process() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]pending, 0, a.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		a.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-a.stop:
			// 排空剩余消息
			for {
				select {
				case p := <-a.queue:
					batch = append(batch, p)
					if len(batch) >= a.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case <-ticker.C:
			flush()
		case p := <-a.queue:
			batch = append(batch, p)
			if len(batch) >= a.cfg.BatchSize {
				flush()
			}
		}
	}
}

// flush 写入一批消息，span 关联每条消息的来源 trace
func (a *Async) flush(batch []pending) {
	links := make([]trace.Link, 0, len(batch))
	for _, p := range batch {
		if p.spanCtx.IsValid() {
			links = append(links, trace.Link{SpanContext: p.spanCtx})
		}
	}
	ctx, span := tracing.StartSpan(context.Background(), "chatlog.flush", trace.WithLinks(links...))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.WriteTimeout)
	defer cancel()

	n := uint64(len(batch))
	if a.batch != nil {
		msgs := make([]*presence.ChatMessage, len(batch))
		for i, p := range batch {
			msgs[i] = p.msg
		}
		if err := a.batch.SaveChats(ctx, msgs); err != nil {
			tracing.RecordError(span, err)
			a.failed.Add(n)
			a.log.ErrorContext(ctx, "chat batch write failed", zap.Int("count", len(msgs)), zap.Error(err))
			return
		}
		a.written.Add(n)
		return
	}

	for _, p := range batch {
		if err := a.next.SaveChat(ctx, p.msg); err != nil {
			tracing.RecordError(span, err)
			a.failed.Add(1)
			a.log.ErrorContext(ctx, "chat write failed",
				zap.String("chat_id", p.msg.ID),
				zap.String("space_id", p.msg.SpaceID),
				zap.Error(err))
			continue
		}
		a.written.Add(1)
	}
}
