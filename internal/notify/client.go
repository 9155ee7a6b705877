// Package notify предоставляет клиент для внешней системы уведомлений.
//
// Уведомления отправляются слоем оркестрации строго после успешного
// сохранения перехода и никогда не попадают внутрь ядра: сбой доставки
// не влияет на корректность состояния.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Kind описывает тип уведомления о переходе жизненного цикла.
type Kind string

const (
	// KindQuoteSubmitted — по заявке появилось новое предложение.
	KindQuoteSubmitted Kind = "quote_submitted"
	// KindQuoteWithdrawn — предложение отозвано.
	KindQuoteWithdrawn Kind = "quote_withdrawn"
	// KindServiceAssigned — заявке назначен исполнитель.
	KindServiceAssigned Kind = "service_assigned"
	// KindServiceCompleted — заявка завершена.
	KindServiceCompleted Kind = "service_completed"
)

// Message описывает тело уведомления.
type Message struct {
	Kind       Kind   `json:"kind"`
	ServiceID  string `json:"service_id"`
	QuoteID    string `json:"quote_id,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	Rating     *int   `json:"rating,omitempty"`
}

// Client инкапсулирует HTTP-взаимодействие с системой уведомлений.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewClient создаёт HTTP-клиент для отправки уведомлений по указанному адресу.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

// Send отправляет уведомление о переходе жизненного цикла.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notify client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+"/api/notifications", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
