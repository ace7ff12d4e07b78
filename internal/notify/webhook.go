package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"botops-console/internal/config"
	"botops-console/internal/util"
)

var ErrDeliveryFailed = errors.New("notification delivery failed")

// WebhookNotifier delivers login codes to the operator chat channel via an
// incoming webhook. Delivery is synchronous: the login flow needs to know
// whether the code actually went out.
type WebhookNotifier struct {
	webhookURL string
	channel    string
	httpClient *http.Client
}

func NewWebhookNotifier(cfg *config.Config) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: cfg.Notify.WebhookURL,
		channel:    cfg.Notify.Channel,
		httpClient: &http.Client{
			Timeout: cfg.Notify.Timeout,
		},
	}
}

type webhookPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// SendLoginCode posts the verification code to the chat channel.
func (n *WebhookNotifier) SendLoginCode(ctx context.Context, name, code string, expiresIn time.Duration) error {
	if n.webhookURL == "" {
		return fmt.Errorf("%w: webhook URL not configured", ErrDeliveryFailed)
	}

	payload := webhookPayload{
		Channel: n.channel,
		Text: fmt.Sprintf("Login code for %s: %s (valid for %d minutes)",
			name, code, int(expiresIn.Minutes())),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		util.Error("Webhook delivery failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		util.Error("Webhook rejected notification",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return fmt.Errorf("%w: webhook returned %d", ErrDeliveryFailed, resp.StatusCode)
	}

	util.Debug("Login code delivered", zap.String("channel", n.channel))
	return nil
}
