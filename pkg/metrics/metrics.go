package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tokmz/spaces/pkg/presence"
	"github.com/tokmz/spaces/pkg/ws"
)

var (
	_ ws.Metrics       = (*Collector)(nil)
	_ presence.Metrics = (*Collector)(nil)
)

// Collector Prometheus 指标，同时服务传输层与在线状态层
type Collector struct {
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer

	connActive    prometheus.Gauge
	connTotal     prometheus.Counter
	connRejected  *prometheus.CounterVec
	msgReceived   prometheus.Counter
	msgDropped    prometheus.Counter
	rateLimited   prometheus.Counter
	readErrors    prometheus.Counter
	writeErrors   prometheus.Counter
	events        *prometheus.CounterVec
	eventErrors   *prometheus.CounterVec
	dispatch      *prometheus.HistogramVec
	fanout        *prometheus.CounterVec
	persistFailed prometheus.Counter
	evictions     prometheus.Counter
}

// New 创建并注册指标，reg 为空时使用独立的注册表
func New(namespace string, reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		reg:      reg,
		gatherer: reg,
		connActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws", Name: "connections_active",
			Help: "Number of open WebSocket connections.",
		}),
		connTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "connections_total",
			Help: "Accepted WebSocket connections.",
		}),
		connRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "connections_rejected_total",
			Help: "Rejected upgrade attempts by reason.",
		}, []string{"reason"}),
		msgReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "messages_received_total",
			Help: "Inbound frames.",
		}),
		msgDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "messages_dropped_total",
			Help: "Outbound frames dropped because the send queue was full.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "rate_limited_total",
			Help: "Connections closed for exceeding the inbound rate limit.",
		}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "read_errors_total",
			Help: "Unexpected read errors.",
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "write_errors_total",
			Help: "Write errors.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "presence", Name: "events_total",
			Help: "Dispatched inbound events by type.",
		}, []string{"type"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "presence", Name: "event_errors_total",
			Help: "Failed inbound events by type and error code.",
		}, []string{"type", "code"}),
		dispatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "presence", Name: "dispatch_duration_seconds",
			Help:    "Time spent handling an inbound event.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 3},
		}, []string{"type"}),
		fanout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "presence", Name: "fanout_deliveries_total",
			Help: "Broadcast deliveries by event type and result.",
		}, []string{"type", "result"}),
		persistFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "presence", Name: "chat_persist_failures_total",
			Help: "Chat messages that were broadcast but not persisted.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "presence", Name: "evictions_total",
			Help: "Connections evicted after a failed delivery.",
		}),
	}
	reg.MustRegister(
		c.connActive, c.connTotal, c.connRejected,
		c.msgReceived, c.msgDropped, c.rateLimited,
		c.readErrors, c.writeErrors,
		c.events, c.eventErrors, c.dispatch, c.fanout,
		c.persistFailed, c.evictions,
	)
	return c
}

// WatchPresence 注册在线状态快照指标，每次采集时调用 stats
func (c *Collector) WatchPresence(namespace string, stats func() presence.Stats) {
	gauge := func(name, help string, pick func(presence.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "presence", Name: name, Help: help,
		}, func() float64 { return float64(pick(stats())) })
	}
	c.reg.MustRegister(
		gauge("members", "Joined members.", func(s presence.Stats) int { return s.Members }),
		gauge("spaces", "Spaces with at least one member.", func(s presence.Stats) int { return s.Spaces }),
	)
}

// Handler 暴露 /metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) IncrementConnections() {
	c.connActive.Inc()
	c.connTotal.Inc()
}

func (c *Collector) DecrementConnections()        { c.connActive.Dec() }
func (c *Collector) SetConnectionCount(count int) { c.connActive.Set(float64(count)) }

func (c *Collector) IncrementRejectedConnections(reason string) {
	c.connRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) IncrementMessagesReceived() { c.msgReceived.Inc() }
func (c *Collector) IncrementDroppedMessages()  { c.msgDropped.Inc() }
func (c *Collector) IncrementRateLimited()      { c.rateLimited.Inc() }
func (c *Collector) IncrementReadErrors()       { c.readErrors.Inc() }
func (c *Collector) IncrementWriteErrors()      { c.writeErrors.Inc() }

func (c *Collector) IncEvent(eventType string) {
	c.events.WithLabelValues(eventType).Inc()
}

func (c *Collector) IncEventError(eventType, code string) {
	c.eventErrors.WithLabelValues(eventType, code).Inc()
}

func (c *Collector) ObserveDispatch(eventType string, d time.Duration) {
	c.dispatch.WithLabelValues(eventType).Observe(d.Seconds())
}

func (c *Collector) ObserveFanout(eventType string, delivered, failed int) {
	if delivered > 0 {
		c.fanout.WithLabelValues(eventType, "delivered").Add(float64(delivered))
	}
	if failed > 0 {
		c.fanout.WithLabelValues(eventType, "failed").Add(float64(failed))
	}
}

func (c *Collector) IncChatPersistFailed() { c.persistFailed.Inc() }
func (c *Collector) IncEviction()          { c.evictions.Inc() }
