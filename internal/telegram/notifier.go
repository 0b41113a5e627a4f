package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lugondev/dex-order-alert/internal/logger"
)

var (
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrSendFailed  = errors.New("failed to send telegram message")
)

const (
	defaultAPIURL = "https://api.telegram.org"

	ParseModeMarkdown = "Markdown"
)

// Config holds Telegram notifier configuration
type Config struct {
	BotToken  string
	ChannelID string
	RateLimit int // Messages per minute, 0 disables the limit
	Timeout   time.Duration
	// APIURL overrides the Bot API endpoint, used by tests
	APIURL string
}

// Message represents a Telegram sendMessage request
type Message struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
	ReplyToMessageID      int64  `json:"reply_to_message_id,omitempty"`
}

// Response represents the Telegram API response
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// Notifier posts announcements to a Telegram channel.
// Delivery is best effort: a failed message is reported once and never retried.
type Notifier struct {
	config     Config
	httpClient *http.Client
	log        logger.Logger

	mu           sync.Mutex
	messageCount int
	lastReset    time.Time
}

// NewNotifier creates a new Telegram notifier
func NewNotifier(cfg Config, log logger.Logger) *Notifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	return &Notifier{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With(logger.F("component", "telegram")),
		lastReset:  time.Now(),
	}
}

// SendMarkdown sends a Markdown message to the configured channel
func (n *Notifier) SendMarkdown(ctx context.Context, text string) error {
	if err := n.checkRateLimit(); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	msg := Message{
		ChatID:                n.config.ChannelID,
		Text:                  text,
		ParseMode:             ParseModeMarkdown,
		DisableWebPagePreview: true,
	}
	if err := n.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// checkRateLimit checks if we're within rate limits
func (n *Notifier) checkRateLimit() error {
	if n.config.RateLimit <= 0 {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()

	// Reset counter every minute
	if now.Sub(n.lastReset) >= time.Minute {
		n.messageCount = 0
		n.lastReset = now
	}

	if n.messageCount >= n.config.RateLimit {
		return ErrRateLimited
	}

	n.messageCount++
	return nil
}

// SendMessage performs a sendMessage call for an arbitrary chat
func (n *Notifier) SendMessage(ctx context.Context, msg Message) error {
	_, err := n.call(ctx, "sendMessage", msg)
	if err != nil {
		return err
	}
	n.log.Debug("message sent successfully", logger.F("chat_id", msg.ChatID))
	return nil
}

// call performs a Bot API method call and returns the raw result
func (n *Notifier) call(ctx context.Context, method string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", n.config.APIURL, n.config.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var tgResp Response
	if err := json.Unmarshal(respBody, &tgResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !tgResp.OK {
		n.log.Error("telegram API error",
			logger.F("method", method),
			logger.F("error_code", tgResp.ErrorCode),
			logger.F("description", tgResp.Description),
		)
		return nil, fmt.Errorf("telegram API error: %s", tgResp.Description)
	}

	return tgResp.Result, nil
}
