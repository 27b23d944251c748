// Package alert delivers operational notifications to Telegram chats.
// Delivery is best-effort: callers on hot paths use Notify, which logs
// failures instead of propagating them.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/memelab/memeforge/internal/config"
	"github.com/memelab/memeforge/internal/logger"
)

const telegramAPIBase = "https://api.telegram.org"

// Notifier sends messages through the Telegram Bot API.
type Notifier struct {
	client      *resty.Client
	baseURL     string
	botToken    string
	chatIDs     map[string]string
	defaultChat string
	logger      *logger.Logger
}

// NewNotifier creates a Telegram notifier.
// Parameters:
//   - cfg: bot token and named chat IDs.
//   - log: logger for delivery failures.
//
// Returns:
//   - *Notifier: initialized notifier. Disabled when no token is configured.
func NewNotifier(cfg *config.TelegramConfig, log *logger.Logger) *Notifier {
	client := resty.New()
	client.SetTimeout(10 * time.Second)

	baseURL := cfg.APIBase
	if baseURL == "" {
		baseURL = telegramAPIBase
	}

	return &Notifier{
		client:      client,
		baseURL:     baseURL,
		botToken:    cfg.BotToken,
		chatIDs:     cfg.ChatIDs,
		defaultChat: cfg.DefaultChat,
		logger:      log.WithField(logger.FieldComponent, "alert"),
	}
}

// Enabled reports whether a bot token is configured.
func (n *Notifier) Enabled() bool {
	return n.botToken != ""
}

type telegramRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
}

// Result is raw because its shape varies by method: sendMessage returns a
// message object, deleteMessage returns a bare boolean.
type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type telegramMessage struct {
	MessageID int64 `json:"message_id"`
}

// SendMessage sends text to a Telegram chat.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - chatID: numeric chat ID or @channel name.
//   - text: message body.
//   - parseMode: "Markdown", "HTML", or empty for plain text.
//
// Returns:
//   - int64: Telegram message ID.
//   - error: non-nil if the API call fails or Telegram rejects the message.
func (n *Notifier) SendMessage(ctx context.Context, chatID, text, parseMode string) (int64, error) {
	var resp telegramResponse
	if err := n.call(ctx, "sendMessage", &telegramRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: parseMode,
	}, &resp); err != nil {
		return 0, err
	}

	var msg telegramMessage
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return 0, fmt.Errorf("failed to parse Telegram response: %w", err)
	}
	return msg.MessageID, nil
}

// SendToChat sends text to a chat by its configured name.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - chatName: logical chat name from telegram.chat_ids (e.g. "admin_alerts").
//   - text: message body, sent as Markdown.
//
// Returns:
//   - int64: Telegram message ID.
//   - error: non-nil if the chat name is unknown or delivery fails.
func (n *Notifier) SendToChat(ctx context.Context, chatName, text string) (int64, error) {
	chatID, ok := n.chatIDs[chatName]
	if !ok || chatID == "" {
		return 0, fmt.Errorf("no chat ID configured for chat %q", chatName)
	}
	return n.SendMessage(ctx, chatID, text, "Markdown")
}

// Notify sends text to the default chat, logging failures instead of
// returning them. Callers on request paths use this so a Telegram outage
// never breaks the request.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if !n.Enabled() {
		return
	}

	messageID, err := n.SendToChat(ctx, n.defaultChat, text)
	if err != nil {
		n.logger.WithError(err).Error("Failed to deliver Telegram alert")
		return
	}
	n.logger.WithField("message_id", messageID).Debug("Telegram alert delivered")
}

// DeleteMessage removes a previously sent message from a chat.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - chatID: chat the message was sent to.
//   - messageID: Telegram message ID to delete.
//
// Returns:
//   - error: non-nil if the API call fails or Telegram rejects the deletion.
func (n *Notifier) DeleteMessage(ctx context.Context, chatID string, messageID int64) error {
	var resp telegramResponse
	return n.call(ctx, "deleteMessage", &telegramRequest{
		ChatID:    chatID,
		MessageID: messageID,
	}, &resp)
}

func (n *Notifier) call(ctx context.Context, method string, req *telegramRequest, out *telegramResponse) error {
	url := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.botToken, method)

	httpResp, err := n.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(out).
		Post(url)
	if err != nil {
		return fmt.Errorf("failed to call Telegram API: %w", err)
	}

	if !httpResp.IsSuccess() {
		// Telegram returns {"ok":false,"description":...} with 4xx statuses
		var apiErr telegramResponse
		if jsonErr := json.Unmarshal(httpResp.Body(), &apiErr); jsonErr == nil && apiErr.Description != "" {
			return fmt.Errorf("Telegram API error: %s", apiErr.Description)
		}
		return fmt.Errorf("Telegram API returned HTTP %d", httpResp.StatusCode())
	}

	if !out.OK {
		return fmt.Errorf("Telegram API error: %s", out.Description)
	}

	return nil
}
