package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// TelegramNotifier delivers notifications (and receives MFA codes typed
// back by the account owner) via a Telegram bot.
type TelegramNotifier struct {
	Bot    *bot.Bot
	ChatID int64
}

func (t *TelegramNotifier) Notify(ctx context.Context, msg Message) error {
	text := fmt.Sprintf("%s\n\n%s", msg.Subject, msg.Body)

	_, err := t.Bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.ChatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("notify: sending telegram message: %w", err)
	}

	return nil
}

// RegisterCodeHandler wires an update handler that forwards plain-text
// messages from ChatID into supplyCode — the bridge between Telegram and
// a statusexchange.Exchange.SupplyCode call, installed by the CLI layer.
func (t *TelegramNotifier) RegisterCodeHandler(b *bot.Bot, supplyCode func(code string) error) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, func(ctx context.Context, api *bot.Bot, update *models.Update) {
		if update.Message == nil || update.Message.Chat.ID != t.ChatID {
			return
		}

		_ = supplyCode(update.Message.Text)
	})
}
