// notifiers/telegram/telegram.go
package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"netpoller/config"
	"netpoller/notifiers"
)

// Sender is the part of the bot API the notifier uses
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier sends notifications to telegram chats through a bot
type TelegramNotifier struct {
	sender  Sender
	chatIDs []int64
}

// NewTelegramNotifier creates a notifier for the configured bot. The bot
// token is not verified until the first message is sent.
func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("missing 'bot_token' in telegram config")
	}
	b, err := bot.New(cfg.BotToken, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return NewWithSender(b, cfg.ChatIDs)
}

// NewWithSender creates a notifier over an existing sender
func NewWithSender(sender Sender, chatIDs []int64) (*TelegramNotifier, error) {
	if len(chatIDs) == 0 {
		return nil, fmt.Errorf("missing 'chat_ids' in telegram config")
	}
	return &TelegramNotifier{sender: sender, chatIDs: append([]int64(nil), chatIDs...)}, nil
}

// Name returns the name of the notifier
func (n *TelegramNotifier) Name() string {
	return "telegram"
}

// Notify sends the notification to every chat. A failed chat does not stop
// the others.
func (n *TelegramNotifier) Notify(ctx context.Context, notif notifiers.Notification) error {
	text := notif.Subject + "\n\n" + notif.Body

	var errs []error
	for _, chatID := range n.chatIDs {
		params := &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		}
		if _, err := n.sender.SendMessage(ctx, params); err != nil {
			errs = append(errs, fmt.Errorf("failed to send telegram message to chat_id %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// Close performs any necessary cleanup
func (n *TelegramNotifier) Close() error {
	return nil
}
