package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const telegramAPIBaseURL = "https://api.telegram.org"

// TelegramChannel sends messages through the Telegram Bot API. Without a bot
// token it runs in mock mode: messages are only logged and reported as sent.
type TelegramChannel struct {
	botToken   string
	apiBaseURL string
	client     *resty.Client
}

// Ensure TelegramChannel implements Channel
var _ Channel = (*TelegramChannel)(nil)

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramChannel creates a Telegram channel for the given bot token
func NewTelegramChannel(botToken string) *TelegramChannel {
	return &TelegramChannel{
		botToken:   botToken,
		apiBaseURL: telegramAPIBaseURL,
		client:     resty.New().SetTimeout(10 * time.Second),
	}
}

// MockMode reports whether messages are only logged
func (t *TelegramChannel) MockMode() bool {
	return t.botToken == ""
}

func (t *TelegramChannel) Send(ctx context.Context, chatID, message string) bool {
	if t.MockMode() {
		logrus.WithField("chat_id", chatID).Infof("[TELEGRAM MOCK] Would send: %s", message)
		return true
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"chat_id":    chatID,
			"text":       message,
			"parse_mode": "HTML",
		}).
		Post(fmt.Sprintf("%s/bot%s/sendMessage", t.apiBaseURL, t.botToken))
	if err != nil {
		logrus.Errorf("Failed to send Telegram notification to chat %s: %s", chatID, t.redact(err))
		return false
	}

	if !resp.IsSuccess() {
		logrus.Errorf("Telegram API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
		return false
	}

	var result telegramResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil || !result.OK {
		logrus.Errorf("Telegram API rejected message for chat %s: %s", chatID, result.Description)
		return false
	}

	logrus.WithField("chat_id", chatID).Info("Sent Telegram notification")
	return true
}

// redact drops the request URL, which embeds the bot token, from transport errors
func (t *TelegramChannel) redact(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return strings.ReplaceAll(err.Error(), t.botToken, "<redacted>")
}
