package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TelegramSender pushes notifications to a Telegram chat via the bot API.
type TelegramSender struct {
	token  string
	chatID string
	http   *http.Client
	apiURL string
}

// NewTelegramSender returns nil when token or chat id are missing, which
// disables the sink.
func NewTelegramSender(token, chatID string) *TelegramSender {
	if token == "" || chatID == "" {
		return nil
	}
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		http:   &http.Client{Timeout: 10 * time.Second},
		apiURL: "https://api.telegram.org",
	}
}

// Send posts one message.
func (t *TelegramSender) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	return nil
}
