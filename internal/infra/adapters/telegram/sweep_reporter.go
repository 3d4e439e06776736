// Package telegram sends operator notifications through a Telegram bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/config"
	"blog-job-pipeline/internal/domain/ports/adapter"
)

var _ adapter.SweepReporter = (*BotReporter)(nil)

// sender is the subset of *tgbotapi.BotAPI used here.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotReporter posts janitor summaries to the configured admin chats.
type BotReporter struct {
	bot     sender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewBotReporter(cfg *config.TelegramConfig, logger *zerolog.Logger) (*BotReporter, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if len(cfg.AdminChatIDs) == 0 {
		return nil, errors.New("telegram admin_chat_ids is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	return &BotReporter{bot: bot, chatIDs: cfg.AdminChatIDs, logger: logger}, nil
}

func (r *BotReporter) ReportSweep(ctx context.Context, rep adapter.SweepReport) error {
	text := FormatSweep(rep)
	var errs []error
	for _, id := range r.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(id, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := r.bot.Send(msg); err != nil {
			r.logger.Warn().Err(err).Int64("chat_id", id).Msg("telegram send failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatSweep renders a short HTML summary of a janitor run.
func FormatSweep(rep adapter.SweepReport) string {
	var b strings.Builder
	if rep.DryRun {
		b.WriteString("<b>Cleanup (dry run)</b>\n")
	} else {
		b.WriteString("<b>Cleanup</b>\n")
	}
	fmt.Fprintf(&b, "Retention: %gh\n", rep.RetentionHours)
	fmt.Fprintf(&b, "Statuses: %s\n", strings.Join(rep.Statuses, ", "))
	if rep.DryRun {
		fmt.Fprintf(&b, "Would remove: %d\n", rep.Removed)
	} else {
		fmt.Fprintf(&b, "Removed: %d\n", rep.Removed)
	}
	fmt.Fprintf(&b, "Remaining: %d of %d", rep.Remaining, rep.Total)
	return b.String()
}
