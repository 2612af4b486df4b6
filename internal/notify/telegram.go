package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"zapis/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender delivers plain text to Telegram chats. User ids are chat ids.
type TelegramSender struct {
	bot domain.TelegramSender
}

func NewTelegramSender(bot domain.TelegramSender) *TelegramSender {
	return &TelegramSender{bot: bot}
}

// NewTelegramBot connects to the Bot API with the given token. Every API
// request is bounded by sendTimeout.
func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: sendTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

// Send returns when the message is delivered or ctx is done, whichever comes
// first. The bot call itself is not cancellable and finishes in background.
func (s *TelegramSender) Send(ctx context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("user id %q is not a telegram chat id: %w", userID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send telegram message to %d: %w", chatID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send telegram message to %d: %w", chatID, ctx.Err())
	}
}
