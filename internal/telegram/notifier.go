// Package telegram delivers run notifications to an operator chat.
package telegram

import (
	"context"
	"fmt"

	"github.com/mtzanidakis/vigla/internal/config"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Telegram rejects messages above 4096 characters.
const maxMessageLen = 4096

type Notifier struct {
	bot    *telego.Bot
	chatID int64
}

func NewNotifier(cfg config.TelegramConfig) (*Notifier, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: cfg.ChatID}, nil
}

// Notify sends text to the configured chat, chunked to fit the message
// size limit.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	for _, chunk := range chunkMessage(text, maxMessageLen) {
		msg := tu.Message(tu.ID(n.chatID), chunk)
		if _, err := n.bot.SendMessage(ctx, msg); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}
