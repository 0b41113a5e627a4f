package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lugondev/dex-order-alert/internal/logger"
	"github.com/lugondev/dex-order-alert/pkg/models"
)

const (
	helpText = `Available commands:
/start - what this bot does
/help - this message
/about - node, network and contract information
/echo <text> - repeat a message`

	startText = "Hi! I watch the exchange contract and announce every new order in the channel. Send /help to see what else I can do."

	fallbackText = "I only understand commands. Send /help to see them."
)

// AboutProvider returns information about the watched node and contract
type AboutProvider interface {
	GetAbout(ctx context.Context) (*models.About, error)
}

// BotConfig holds bot command handling configuration
type BotConfig struct {
	PollTimeout   time.Duration
	RetryInterval time.Duration
}

// Update is a Telegram getUpdates entry
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message,omitempty"`
}

// IncomingMessage is a message sent to the bot
type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// Chat identifies the conversation a message belongs to
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// Bot answers commands sent directly to the bot using long polling
type Bot struct {
	notifier  *Notifier
	formatter *Formatter
	about     AboutProvider
	log       logger.Logger
	config    BotConfig

	offset int64
}

// NewBot creates a new command bot
func NewBot(notifier *Notifier, formatter *Formatter, about AboutProvider, cfg BotConfig, log logger.Logger) *Bot {
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 25 * time.Second
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	// The long poll has to finish before the HTTP client gives up
	if limit := notifier.config.Timeout - time.Second; cfg.PollTimeout > limit {
		cfg.PollTimeout = limit
	}

	return &Bot{
		notifier:  notifier,
		formatter: formatter,
		about:     about,
		log:       log.With(logger.F("component", "telegram-bot")),
		config:    cfg,
	}
}

// Run polls for updates until the context is cancelled
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info("bot command handling started")

	for {
		select {
		case <-ctx.Done():
			b.log.Info("bot command handling stopped")
			return ctx.Err()
		default:
		}

		updates, err := b.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			b.log.Warn("failed to get updates", logger.F("error", err))
			select {
			case <-ctx.Done():
			case <-time.After(b.config.RetryInterval):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= b.offset {
				b.offset = update.UpdateID + 1
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// getUpdates fetches pending updates after the current offset
func (b *Bot) getUpdates(ctx context.Context) ([]Update, error) {
	result, err := b.notifier.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         b.offset,
		Timeout:        int(b.config.PollTimeout / time.Second),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("failed to parse updates: %w", err)
	}
	return updates, nil
}

// handleMessage replies to a single incoming message
func (b *Bot) handleMessage(ctx context.Context, msg *IncomingMessage) {
	text, parseMode := b.Respond(ctx, msg.Text)

	reply := Message{
		ChatID:           strconv.FormatInt(msg.Chat.ID, 10),
		Text:             text,
		ParseMode:        parseMode,
		ReplyToMessageID: msg.MessageID,
	}
	if err := b.notifier.SendMessage(ctx, reply); err != nil {
		b.log.Error("failed to reply",
			logger.F("chat_id", msg.Chat.ID),
			logger.F("error", err),
		)
	}
}

// Respond returns the reply text and parse mode for an incoming message
func (b *Bot) Respond(ctx context.Context, text string) (string, string) {
	command, args := parseCommand(text)

	switch command {
	case "":
		return fallbackText, ""
	case "/start":
		return startText, ""
	case "/help":
		return helpText, ""
	case "/about":
		about, err := b.about.GetAbout(ctx)
		if err != nil {
			b.log.Error("failed to get about information", logger.F("error", err))
			return "Sorry, the node could not be reached. Try again later.", ""
		}
		return b.formatter.FormatAbout(about), ParseModeMarkdown
	case "/echo":
		if args == "" {
			return "Usage: /echo <text>", ""
		}
		return args, ""
	default:
		return fmt.Sprintf("Unknown command %s. Send /help to see the available commands.", command), ""
	}
}

// parseCommand splits "/cmd@bot_name some args" into "/cmd" and "some args".
// Plain text yields an empty command.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	command, args, _ := strings.Cut(text, " ")
	if idx := strings.IndexByte(command, '@'); idx >= 0 {
		command = command[:idx]
	}
	return strings.ToLower(command), strings.TrimSpace(args)
}
