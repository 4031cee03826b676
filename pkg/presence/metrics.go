package presence

import "time"

// Metrics 在线状态层指标
type Metrics interface {
	// IncEvent 入站事件计数
	IncEvent(eventType string)
	// IncEventError 失败事件计数，code 为错误标识
	IncEventError(eventType, code string)
	// ObserveDispatch 事件处理耗时
	ObserveDispatch(eventType string, d time.Duration)
	// ObserveFanout 一次广播的投递结果
	ObserveFanout(eventType string, delivered, failed int)
	// IncChatPersistFailed 聊天持久化失败
	IncChatPersistFailed()
	// IncEviction 因投递失败被驱逐的连接
	IncEviction()
}

// NoopMetrics 空实现
type NoopMetrics struct{}

func (NoopMetrics) IncEvent(string) {}
func (NoopMetrics) IncEventError(string, string) {}
func (NoopMetrics) ObserveDispatch(string, time.Duration) {}
func (NoopMetrics) ObserveFanout(string, int, int) {}
func (NoopMetrics) IncChatPersistFailed() {}
func (NoopMetrics) IncEviction() {}
