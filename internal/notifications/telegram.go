package notifications

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Telegram posts alerts to a single chat.
type Telegram struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	botName string
}

// NewTelegram authenticates the bot token against the Bot API.
func NewTelegram(token string, chatID int64, botName string) (*Telegram, error) {
	return newTelegram(token, tgbotapi.APIEndpoint, chatID, botName)
}

func newTelegram(token, endpoint string, chatID int64, botName string) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	log.Info().Str("component", "notify").Str("telegram_bot", api.Self.UserName).Msg("telegram connected")
	return &Telegram{api: api, chatID: chatID, botName: botName}, nil
}

func (t *Telegram) Send(msg string) {
	m := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("[%s] %s", t.botName, msg))
	if _, err := t.api.Send(m); err != nil {
		log.Error().Err(err).Str("component", "notify").Msg("telegram send failed")
	}
}
