// Package catalog предоставляет клиент для внешнего каталога товаров.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrProductNotFound возвращается, если товар отсутствует в каталоге.
var (
	ErrProductNotFound = errors.New("product not found in catalog")
	// ErrUnavailable возвращается, если каталог недоступен или отвечает ошибкой.
	ErrUnavailable = errors.New("catalog unavailable")
)

// Client инкапсулирует HTTP-взаимодействие с каталогом товаров.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type productResponse struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// NewClient создаёт HTTP-клиент для обращения к каталогу по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// PriceOf возвращает авторитетную цену товара по его идентификатору.
func (c *Client) PriceOf(ctx context.Context, productID string) (float64, error) {
	if c == nil || c.baseURL == "" {
		return 0, fmt.Errorf("%w: client not configured", ErrUnavailable)
	}

	url := fmt.Sprintf("%s/api/products/%s", c.base(), productID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var result productResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("%w: decode response: %s", ErrUnavailable, err)
	}

	if result.Price < 0 {
		return 0, fmt.Errorf("%w: negative price for %s", ErrUnavailable, productID)
	}

	return result.Price, nil
}

// Reachable сообщает, отвечает ли каталог. Используется проверкой здоровья сервиса.
func (c *Client) Reachable(ctx context.Context) bool {
	if c == nil || c.baseURL == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/api/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return true
}

func (c *Client) base() string {
	if !strings.HasPrefix(c.baseURL, "http://") && !strings.HasPrefix(c.baseURL, "https://") {
		return "http://" + c.baseURL
	}
	return c.baseURL
}
