// Package telegram delivers pre-formatted HTML messages to a chat.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"hyperbot/internal/fills"
	"hyperbot/internal/logger"
)

type Config struct {
	Token    string
	Endpoint string
	Client   *http.Client
}

type Notifier struct {
	bot *tgbotapi.BotAPI
	log *logger.Logger
}

var _ fills.Notifier = (*Notifier)(nil)

// New authenticates the bot token with getMe.
func New(cfg Config, log *logger.Logger) (*Notifier, error) {
	if log == nil {
		log = logger.Nop()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("Не удалось подключиться к Telegram: %w", err)
	}

	n := &Notifier{bot: bot, log: log}
	n.logEntry().WithField("bot", bot.Self.UserName).Info("Telegram бот авторизован.")
	return n, nil
}

func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("Не удалось отправить сообщение в Telegram: %w", err)
	}
	return nil
}

func (n *Notifier) logEntry() *logrus.Entry {
	return n.log.WithComponent("telegram")
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	log *logger.Logger
}

var _ fills.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, chatID int64, text string) error {
	n.log.WithComponent("telegram_dry_run").WithFields(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}).Info("Сообщение не отправлено, включён dry run.")
	return nil
}
