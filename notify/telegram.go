package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gobot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramTimeout = 10 * time.Second

type Telegram struct {
	bot    *gobot.BotAPI
	chatID int64
}

// NewTelegram connects to the Bot API. An empty endpoint uses the public
// API; otherwise it is a format string like gobot.APIEndpoint. Every API
// call is bounded by a client timeout since the bot library takes no
// context.
func NewTelegram(token string, chatID int64, endpoint string) (*Telegram, error) {
	if endpoint == "" {
		endpoint = gobot.APIEndpoint
	}
	client := &http.Client{Timeout: telegramTimeout}
	bot, err := gobot.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = false
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := m.Subject
	if m.Body != "" {
		text += "\n\n" + m.Body
	}
	if m.Severity == Critical {
		text = "🚨 " + text
	}
	if _, err := t.bot.Send(gobot.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}
