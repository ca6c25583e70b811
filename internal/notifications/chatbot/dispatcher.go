// Package chatbot delivers reminders as Telegram bot messages.
package chatbot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"iptvpanel/internal/notifications/core"
	"iptvpanel/internal/types"
)

// MessageSender is the subset of *bot.Bot the dispatcher needs.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Config holds the bot credentials. APIURL overrides the Bot API server,
// for self-hosted gateways and tests.
type Config struct {
	Token  string
	APIURL string
}

// Dispatcher implements core.Dispatcher for the chatbot channel.
type Dispatcher struct {
	sender MessageSender
	logger types.Logger
}

var _ core.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher builds a bot client from cfg. The getMe handshake is
// skipped so construction never touches the network.
func NewDispatcher(cfg Config, logger types.Logger) (*Dispatcher, error) {
	opts := []bot.Option{bot.WithSkipGetMe()}
	if cfg.APIURL != "" {
		opts = append(opts, bot.WithServerURL(strings.TrimSuffix(cfg.APIURL, "/")))
	}
	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("chatbot dispatcher: failed to create bot: %w", err)
	}
	return NewDispatcherWithSender(b, logger), nil
}

// NewDispatcherWithSender wraps a pre-built sender.
func NewDispatcherWithSender(sender MessageSender, logger types.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, logger: logger}
}

// Channel returns types.ChannelChatBot.
func (d *Dispatcher) Channel() types.ChannelType { return types.ChannelChatBot }

// Send posts msg.Body to the chat. Numeric addresses are chat ids; anything
// else is passed through as a public @username.
func (d *Dispatcher) Send(ctx context.Context, to core.Recipient, msg core.Message) core.Result {
	chatID, ok := parseChatID(to.Address)
	if !ok {
		return core.Failure(core.ErrRecipientMissing)
	}

	sent, err := d.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   msg.Body,
	})
	if err != nil {
		d.logger.Warn("chatbot send failed",
			"chat", core.RedactAddress(types.ChannelChatBot, to.Address),
			"error", err.Error(),
		)
		return core.FailureFromError(err)
	}
	if sent == nil {
		return core.Failure("chatbot returned no message")
	}
	return core.Success(strconv.Itoa(sent.ID))
}

func parseChatID(raw string) (any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, true
	}
	if !strings.HasPrefix(raw, "@") {
		raw = "@" + raw
	}
	return raw, true
}
