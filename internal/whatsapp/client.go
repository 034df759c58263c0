// Package whatsapp предоставляет клиент для внешнего сервиса отправки сообщений.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с WhatsApp API.
type Client struct {
	baseURL    string
	instance   string
	apiKey     string
	httpClient *retryablehttp.Client
}

type textMessage struct {
	Text string `json:"text"`
}

type sendTextRequest struct {
	Number      string      `json:"number"`
	TextMessage textMessage `json:"textMessage"`
}

type sendTextResponse struct {
	Status string `json:"status"`
}

// NewClient создаёт клиент для отправки сообщений через указанный инстанс WhatsApp API.
func NewClient(baseURL, instance, apiKey string) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.RetryWaitMin = 500 * time.Millisecond
	httpClient.RetryWaitMax = 2 * time.Second
	httpClient.HTTPClient.Timeout = 5 * time.Second
	httpClient.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		instance:   instance,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// SendText отправляет текстовое сообщение на указанный номер телефона.
// Ошибка транспорта или неуспешный статус провайдера возвращаются как ошибка.
func (c *Client) SendText(ctx context.Context, phone, text string) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("whatsapp client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/message/sendText/%s", base, c.instance)

	payload, err := json.Marshal(sendTextRequest{
		Number:      phone,
		TextMessage: textMessage{Text: text},
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result sendTextResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	// Провайдер подтверждает постановку сообщения в очередь статусами PENDING и SENT.
	if result.Status != "" && result.Status != "PENDING" && result.Status != "SENT" {
		return fmt.Errorf("provider rejected message: status %s", result.Status)
	}

	return nil
}
