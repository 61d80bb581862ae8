package notifier

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var priorityEmoji = map[Priority]string{
	PriorityLow:      "ℹ️",
	PriorityMedium:   "📢",
	PriorityHigh:     "🚨",
	PriorityCritical: "🆘",
}

// TelegramNotifier 通过 Telegram Bot 推送告警
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier 创建并验证 Telegram 推送器
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("初始化 Telegram Bot 失败: %w", err)
	}
	log.Printf("✅ Telegram 推送已就绪: @%s", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// Notify 异步发送，绝不阻塞调用方；发送失败只记日志
func (n *TelegramNotifier) Notify(message string, priority Priority) {
	if n == nil || n.bot == nil {
		return
	}

	emoji, ok := priorityEmoji[priority]
	if !ok {
		emoji = "🔔"
	}
	text := fmt.Sprintf("%s [%s] %s", emoji, priority, message)

	go func() {
		msg := tgbotapi.NewMessage(n.chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			log.Printf("⚠️  Telegram 推送失败: %v", err)
		}
	}()
}
