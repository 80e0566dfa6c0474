// Package telegram delivers scan results through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"

	"github.com/wonny/stockscanner/pkg/config"
	"github.com/wonny/stockscanner/pkg/httputil"
	"github.com/wonny/stockscanner/pkg/logger"
)

// DefaultAPIBase is the public Bot API endpoint
const DefaultAPIBase = "https://api.telegram.org"

// maxMessageLen is the Bot API limit for one sendMessage text
const maxMessageLen = 4096

// Notifier posts messages to the configured chat
type Notifier struct {
	httpClient *httputil.Client
	apiBase    string
	botToken   string
	chatID     string
	logger     *logger.Logger
}

// NewNotifier creates a notifier. An unconfigured notifier drops every message.
func NewNotifier(cfg config.TelegramConfig, httpClient *httputil.Client, log *logger.Logger) *Notifier {
	return &Notifier{
		httpClient: httpClient,
		apiBase:    DefaultAPIBase,
		botToken:   cfg.BotToken,
		chatID:     cfg.ChatID,
		logger:     log.Module("telegram"),
	}
}

// WithAPIBase points the notifier at another Bot API host
func (n *Notifier) WithAPIBase(base string) *Notifier {
	n.apiBase = base
	return n
}

// Enabled reports whether a bot token and chat are configured
func (n *Notifier) Enabled() bool {
	return n.botToken != "" && n.chatID != ""
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers text. Delivery is best-effort: failures are logged and
// returned but callers are expected to carry on.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if !n.Enabled() {
		n.logger.Debug("Telegram not configured, message dropped")
		return nil
	}

	for _, chunk := range splitMessage(text, maxMessageLen) {
		if err := n.send(ctx, chunk); err != nil {
			n.logger.WithError(err).Warn("Telegram delivery failed")
			return err
		}
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	resp, err := n.httpClient.PostJSON(ctx, url, sendMessageRequest{
		ChatID:                n.chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	var out sendMessageResponse
	if err := httputil.DecodeJSON(resp, &out); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("telegram API error: %s", out.Description)
	}
	return nil
}

// splitMessage cuts text on line boundaries so each chunk fits the limit.
// A single line longer than the limit is cut by runes.
func splitMessage(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, string(current))
			current = current[:0]
		}
	}

	for _, line := range splitLines(text) {
		r := []rune(line)
		for len(r) > limit {
			flush()
			chunks = append(chunks, string(r[:limit]))
			r = r[limit:]
		}
		if len(current)+len(r) > limit {
			flush()
		}
		current = append(current, r...)
	}
	flush()
	return chunks
}

// splitLines keeps the trailing newline on every line
func splitLines(text string) []string {
	var lines []string
	start := 0
	for i, ch := range text {
		if ch == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
