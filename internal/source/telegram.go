package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/mymmrac/telego"

	"github.com/ntars/tars/internal/bus"
)

// TelegramConfig binds a Telegram bot in as a second dashboard-like push
// source (SPEC_FULL §2), alongside the in-process queue Push already
// serves for the dashboard and the relay tunnel.
type TelegramConfig struct {
	Token string
	// OwnerChatID, if non-zero, restricts accepted messages to that chat;
	// zero accepts any chat the bot can see (fine for a single-owner bot).
	OwnerChatID int64
}

// TelegramSource long-polls Telegram for updates and pushes each text
// message onto a Multiplexer as a dashboard-sourced InboundMessage.
type TelegramSource struct {
	cfg TelegramConfig
	bot *telego.Bot
}

// NewTelegramSource constructs a bot client. It does not start polling
// until Run is called.
func NewTelegramSource(cfg TelegramConfig) (*TelegramSource, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, err
	}
	return &TelegramSource{cfg: cfg, bot: bot}, nil
}

// Run long-polls for updates until ctx is canceled, pushing every accepted
// text message onto mux. It blocks; run it in its own goroutine.
func (t *TelegramSource) Run(ctx context.Context, mux *Multiplexer) error {
	updates, err := t.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handle(update, mux)
		}
	}
}

func (t *TelegramSource) handle(update telego.Update, mux *Multiplexer) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	if t.cfg.OwnerChatID != 0 && update.Message.Chat.ID != t.cfg.OwnerChatID {
		slog.Warn("telegram: dropped message from unrecognized chat", "chat_id", update.Message.Chat.ID)
		return
	}
	mux.Push(bus.InboundMessage{
		Text:      update.Message.Text,
		Source:    bus.SourceDashboard,
		Timestamp: time.Now(),
	})
}
