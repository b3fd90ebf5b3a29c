package alert

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// MessageSender is the part of the Telegram bot API the emitter needs.
type MessageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramEmitter sends event text to one chat.
type TelegramEmitter struct {
	bot    MessageSender
	chatID int64
	kinds  map[Kind]bool
}

// NewTelegramBot creates a bot client for token.
func NewTelegramBot(token string) (*telego.Bot, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return bot, nil
}

// NewTelegramEmitter creates a Telegram sink. With no kinds, every event is sent.
func NewTelegramEmitter(bot MessageSender, chatID int64, kinds ...Kind) *TelegramEmitter {
	var filter map[Kind]bool
	if len(kinds) > 0 {
		filter = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			filter[k] = true
		}
	}
	return &TelegramEmitter{bot: bot, chatID: chatID, kinds: filter}
}

// Send posts the event unless its kind is filtered out.
func (t *TelegramEmitter) Send(ctx context.Context, e Event) error {
	if t.kinds != nil && !t.kinds[e.Kind] {
		return nil
	}
	if _, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(t.chatID), e.Text())); err != nil {
		return fmt.Errorf("telegram send %s: %w", e.Kind, err)
	}
	return nil
}

var _ Sink = (*TelegramEmitter)(nil)
