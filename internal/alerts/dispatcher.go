// Package alerts delivers operator notifications with deduplication and rate
// limiting in front of the actual transport.
package alerts

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tradewatch/tradewatch/internal/config"
)

// Sender delivers one formatted alert to the operator channel.
type Sender interface {
	Send(text string) error
}

// Dispatcher implements the token manager's Notifier: duplicates within the
// window are dropped silently, the token bucket caps the send rate, and every
// alert is mirrored to the log regardless of transport outcome.
type Dispatcher struct {
	sender  Sender
	dedup   *dedupStore
	limiter *throttler
	logger  zerolog.Logger
}

// NewDispatcher builds a dispatcher. A nil sender means log-only alerting.
func NewDispatcher(cfg config.AlertsConfig, sender Sender, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		dedup:   newDedupStore(cfg.DedupWindow),
		limiter: newThrottler(cfg.RatePerMinute),
		logger:  logger,
	}
}

// Notify sends an operator alert.
func (d *Dispatcher) Notify(title, message string) {
	key := title + ":" + message

	if d.dedup.IsDuplicate(key) {
		return
	}

	if !d.limiter.Allow() {
		d.logger.Warn().Str("title", title).Msg("alert dropped, rate limit reached")
		return
	}

	d.dedup.Record(key)
	d.logger.Warn().Str("title", title).Str("message", message).Msg("operator alert")

	if d.sender == nil {
		return
	}
	text := fmt.Sprintf("⚠️ %s\n\n%s\n\n%s", title, message, time.Now().UTC().Format(time.RFC3339))
	if err := d.sender.Send(text); err != nil {
		d.logger.Error().Err(err).Str("title", title).Msg("failed to deliver alert")
	}
}

// TelegramSender delivers alerts to a Telegram chat.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender authenticates the bot and returns a sender.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Send delivers one message.
func (t *TelegramSender) Send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	_, err := t.bot.Send(msg)
	return err
}
