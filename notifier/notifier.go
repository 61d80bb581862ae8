// Package notifier 推送告警消息（分批止盈、止损大幅调整、失败事件）。
package notifier

import "log"

// Priority 告警优先级
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Notifier delivers human readable alerts. Implementations must never block
// the caller: delivery is best-effort and failures are only logged.
type Notifier interface {
	Notify(message string, priority Priority)
}

// LogNotifier 未配置推送渠道时的兜底实现，仅写日志
type LogNotifier struct{}

func (LogNotifier) Notify(message string, priority Priority) {
	log.Printf("🔔 [%s] %s", priority, message)
}
