package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxRetryAfter ограничивает ожидание по заголовку Retry-After.
const maxRetryAfter = 10 * time.Second

// WebhookClient отправляет события POST-запросом на {baseURL}/api/events.
type WebhookClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewWebhookClient создаёт HTTP-клиент для отправки событий по указанному адресу.
func NewWebhookClient(baseURL string) *WebhookClient {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &WebhookClient{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Send отправляет событие. На ответ 429 клиент один раз ждёт Retry-After и повторяет запрос.
func (c *WebhookClient) Send(ctx context.Context, env Envelope) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("webhook client not configured")
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	status, retryAfter, err := c.post(ctx, body)
	if err != nil {
		return err
	}

	if status == http.StatusTooManyRequests {
		timer := time.NewTimer(min(retryAfter, maxRetryAfter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if status, _, err = c.post(ctx, body); err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return fmt.Errorf("unexpected status: %d", status)
	}
	return nil
}

func (c *WebhookClient) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/events", bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	retryAfter := time.Duration(0)
	if resp.StatusCode == http.StatusTooManyRequests {
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
	}

	return resp.StatusCode, retryAfter, nil
}
