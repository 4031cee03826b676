package ws

// Metrics 传输层监控接口
type Metrics interface {
	// 连接指标
	IncrementConnections()
	DecrementConnections()
	SetConnectionCount(count int)
	IncrementRejectedConnections(reason string)

	// 消息指标
	IncrementMessagesReceived()
	IncrementDroppedMessages()
	IncrementRateLimited()

	// 错误指标
	IncrementReadErrors()
	IncrementWriteErrors()
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (m *NoopMetrics) IncrementConnections()                      {}
func (m *NoopMetrics) DecrementConnections()                      {}
func (m *NoopMetrics) SetConnectionCount(count int)               {}
func (m *NoopMetrics) IncrementRejectedConnections(reason string) {}
func (m *NoopMetrics) IncrementMessagesReceived()                 {}
func (m *NoopMetrics) IncrementDroppedMessages()                  {}
func (m *NoopMetrics) IncrementRateLimited()                      {}
func (m *NoopMetrics) IncrementReadErrors()                       {}
func (m *NoopMetrics) IncrementWriteErrors()                      {}
