package presence

import (
	"go.uber.org/zap"

	"github.com/tokmz/spaces/pkg/logger"
)

// DeliveryReport 一次扇出的投递结果
type DeliveryReport struct {
	Targets   int      // 排除后的目标数
	Delivered int      // 成功入队数
	Failed    []string // 入队失败的连接ID
}

// Broadcaster 按空间扇出
//
// 先取成员快照再逐个入队；Send 为非阻塞入队，
// 单个连接失败只记录并驱逐该连接，不影响其他接收者。
type Broadcaster struct {
	index   *Index
	log     logger.Logger
	metrics Metrics
	evict   func(Conn)
}

// NewBroadcaster 创建广播器，evict 在投递失败时调用
func NewBroadcaster(index *Index, log logger.Logger, metrics Metrics, evict func(Conn)) *Broadcaster {
	if evict == nil {
		evict = func(c Conn) { go c.Close() }
	}
	return &Broadcaster{index: index, log: log, metrics: metrics, evict: evict}
}

// BroadcastToSpace 向空间内除 excludeConnID 外的所有连接投递同一帧
func (b *Broadcaster) BroadcastToSpace(spaceID string, t EventType, frame []byte, excludeConnID string) DeliveryReport {
	var report DeliveryReport
	for _, conn := range b.index.MembersOf(spaceID) {
		if conn.ID() == excludeConnID {
			continue
		}
		report.Targets++
		if err := b.deliver(conn, frame); err != nil {
			report.Failed = append(report.Failed, conn.ID())
			continue
		}
		report.Delivered++
	}

	b.metrics.ObserveFanout(string(t), report.Delivered, len(report.Failed))
	if len(report.Failed) > 0 {
		b.log.Warn("broadcast partially failed",
			zap.String("space_id", spaceID),
			zap.String("event", string(t)),
			zap.Int("delivered", report.Delivered),
			zap.Strings("failed", report.Failed),
		)
	}
	return report
}

// SendToUser 向用户当前连接投递一帧
func (b *Broadcaster) SendToUser(userID string, frame []byte) error {
	conn, ok := b.index.ConnectionOf(userID)
	if !ok {
		return ErrTargetOffline
	}
	if err := b.deliver(conn, frame); err != nil {
		return ErrTargetOffline.WithError(err)
	}
	return nil
}

// SendTo 向指定连接投递一帧
func (b *Broadcaster) SendTo(conn Conn, frame []byte) error {
	return b.deliver(conn, frame)
}

func (b *Broadcaster) deliver(conn Conn, frame []byte) error {
	if err := conn.Send(frame); err != nil {
		b.log.Debug("send failed, evicting connection",
			zap.String("conn_id", conn.ID()),
			zap.Error(err),
		)
		b.metrics.IncEviction()
		b.evict(conn)
		return err
	}
	return nil
}
