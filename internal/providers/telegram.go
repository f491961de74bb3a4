// Package providers holds outbound escalation channels. Escalation is
// best-effort: a confirmed threat that cannot be escalated is logged,
// the operator flow never waits on it.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"alert-console/internal/logging"
	"alert-console/internal/models"
	"alert-console/internal/utils"
)

// TelegramConfig holds the bot token and target chat for escalations.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// TelegramEscalator forwards operator-confirmed threats to a security
// response chat. Sends are rate limited to one per second to stay
// inside the Bot API limits.
type TelegramEscalator struct {
	cfg     TelegramConfig
	limiter *rate.Limiter
	logger  *logging.Logger
}

func NewTelegramEscalator(cfg TelegramConfig, logger *logging.Logger) (*TelegramEscalator, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("missing bot token")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("missing chat id")
	}
	return &TelegramEscalator{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		logger:  logger,
	}, nil
}

// EscalateConfirmed sends one message for an alert the operator has
// confirmed as a real threat.
func (e *TelegramEscalator) EscalateConfirmed(ctx context.Context, alert models.AlertEvent) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	text := fmt.Sprintf(
		"*CONFIRMED THREAT*\n\n"+
			"*Camera:* %s (%s)\n"+
			"*Location:* %s\n"+
			"*Weapon:* %s\n"+
			"*Confidence:* %.0f%%\n"+
			"*Severity:* %s\n"+
			"*Time:* %s",
		alert.CameraName,
		alert.CameraID,
		alert.Location,
		alert.WeaponType,
		alert.Confidence*100,
		alert.Severity,
		alert.Timestamp.Format(time.RFC3339),
	)

	return utils.Retry(e.logger, 3, time.Second, func() error {
		b, err := bot.New(e.cfg.BotToken)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram bot: %w", err)
		}
		params := &bot.SendMessageParams{
			ChatID:    e.cfg.ChatID,
			Text:      text,
			ParseMode: "Markdown",
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", e.cfg.ChatID, err)
		}
		return nil
	})
}
