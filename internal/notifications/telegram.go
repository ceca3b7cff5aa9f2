package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// Telegram posts messages to a chat through the Bot API sendMessage method.
type Telegram struct {
	baseURL string
	token   string
	chatID  string
	http    *http.Client
}

type TelegramOption func(*Telegram)

func WithTelegramHTTPClient(client *http.Client) TelegramOption {
	return func(t *Telegram) {
		if client != nil {
			t.http = client
		}
	}
}

func NewTelegram(baseURL, token, chatID string, timeout time.Duration, opts ...TelegramOption) (*Telegram, error) {
	token = strings.TrimSpace(token)
	chatID = strings.TrimSpace(chatID)
	if token == "" || chatID == "" {
		return nil, errors.New("telegram bot token and chat id are required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultTelegramBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	t := &Telegram{baseURL: baseURL, token: token, chatID: chatID, http: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}
	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		// the token is part of the URL; keep it out of logs
		return errors.New("telegram send failed: " + redactToken(err.Error(), t.token))
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK || !out.OK {
		return fmt.Errorf("telegram send failed: status=%d %s", resp.StatusCode, out.Description)
	}
	return nil
}

func redactToken(s, token string) string {
	return strings.ReplaceAll(s, token, "[REDACTED]")
}
