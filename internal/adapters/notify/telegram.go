package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tweet-pruner/internal/domain"
	"tweet-pruner/internal/infra/metrics"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram отправляет отчёты о запусках в чат через Bot API.
type Telegram struct {
	bot    messageSender
	chatID int64
}

var _ domain.Notifier = (*Telegram)(nil)

// NewTelegram авторизует бота и создаёт уведомитель.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram token and chat id are required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Notify реализует domain.Notifier.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	for _, part := range splitMessage(text, messageLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.chatID, part)
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := t.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(t.chatID, 10), start, err)
		if err != nil {
			return fmt.Errorf("send report: %w", err)
		}
	}
	return nil
}
