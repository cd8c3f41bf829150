package printful

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/MemoWindow/internal/pkg/config"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/fulfillment"
	"github.com/gofiber/fiber/v2/log"
)

const (
	DefaultBaseURL = "https://api.printful.com/"
	DefaultTimeout = 20 * time.Second

	maxResponseBytes = 1 << 20
)

// Client talks to the Printful orders API. It makes exactly one attempt per
// call, retries are the caller's business.
type Client struct {
	BaseURL string
	APIKey  string
	StoreID string

	HTTPClient *http.Client
}

func NewClient(cfg config.PrintfulConfig) *Client {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(base, "/"),
		APIKey:  strings.TrimSpace(cfg.APIKey),
		StoreID: strings.TrimSpace(cfg.StoreID),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type recipientPayload struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	StateCode   string `json:"state_code"`
	CountryCode string `json:"country_code"`
	Zip         string `json:"zip"`
}

type filePayload struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type itemPayload struct {
	SyncVariantID int64         `json:"sync_variant_id"`
	Quantity      int           `json:"quantity"`
	Files         []filePayload `json:"files"`
}

type orderPayload struct {
	ExternalID string           `json:"external_id"`
	Recipient  recipientPayload `json:"recipient"`
	Items      []itemPayload    `json:"items"`
}

type orderResult struct {
	ID         json.Number `json:"id"`
	ExternalID string      `json:"external_id"`
	Status     string      `json:"status"`
}

type apiResponse struct {
	Code   int             `json:"code"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"error"`
}

func newOrderPayload(req fulfillment.Request) orderPayload {
	items := make([]itemPayload, 0, len(req.Items))
	for _, it := range req.Items {
		files := make([]filePayload, 0, len(it.Files))
		for _, f := range it.Files {
			files = append(files, filePayload{URL: f.URL, Type: f.Type})
		}
		items = append(items, itemPayload{
			SyncVariantID: it.VariantID,
			Quantity:      it.Quantity,
			Files:         files,
		})
	}
	return orderPayload{
		ExternalID: req.ExternalID,
		Recipient: recipientPayload{
			Name:        req.Recipient.Name,
			Email:       req.Recipient.Email,
			Address1:    req.Recipient.Address1,
			Address2:    req.Recipient.Address2,
			City:        req.Recipient.City,
			StateCode:   req.Recipient.StateCode,
			CountryCode: req.Recipient.CountryCode,
			Zip:         req.Recipient.Zip,
		},
		Items: items,
	}
}

// CreateOrder submits req and returns the Printful order id.
func (c *Client) CreateOrder(ctx context.Context, req fulfillment.Request) (string, error) {
	body, err := json.Marshal(newOrderPayload(req))
	if err != nil {
		return "", fmt.Errorf("encode printful order: %w", err)
	}

	status, respBody, err := c.do(ctx, "create order", http.MethodPost, "/orders", body)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		log.Warnf("[Printful] Order creation failed: external_id=%s status=%d body=%s", req.ExternalID, status, string(respBody))
		return "", newProviderError(status, respBody)
	}

	id, err := parseOrderID(respBody)
	if err != nil {
		return "", &TransportError{Op: "create order", Err: err}
	}
	log.Infof("[Printful] Order created: external_id=%s printful_order_id=%s", req.ExternalID, id)
	return id, nil
}

// GetOrderByExternalID looks an order up by our reference. A missing order
// yields ErrOrderNotFound.
func (c *Client) GetOrderByExternalID(ctx context.Context, externalID string) (string, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return "", errors.New("external id is required")
	}

	status, respBody, err := c.do(ctx, "get order", http.MethodGet, "/orders/@"+url.PathEscape(externalID), nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", ErrOrderNotFound
	}
	if status < 200 || status >= 300 {
		return "", newProviderError(status, respBody)
	}

	id, err := parseOrderID(respBody)
	if err != nil {
		return "", &TransportError{Op: "get order", Err: err}
	}
	return id, nil
}

// CancelOrder asks Printful to cancel an order that has not been fulfilled yet.
func (c *Client) CancelOrder(ctx context.Context, printfulOrderID string) error {
	printfulOrderID = strings.TrimSpace(printfulOrderID)
	if printfulOrderID == "" {
		return errors.New("printful order id is required")
	}

	status, respBody, err := c.do(ctx, "cancel order", http.MethodDelete, "/orders/"+url.PathEscape(printfulOrderID), nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return ErrOrderNotFound
	}
	if status < 200 || status >= 300 {
		return newProviderError(status, respBody)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build printful request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("X-PF-Store-Id", c.StoreID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	return resp.StatusCode, respBody, nil
}

func newProviderError(status int, body []byte) *ProviderError {
	msg := strings.TrimSpace(string(body))
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ProviderError{StatusCode: status, Message: msg}
}

func parseOrderID(body []byte) (string, error) {
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode printful response: %w", err)
	}
	var result orderResult
	if err := json.Unmarshal(parsed.Result, &result); err != nil {
		return "", fmt.Errorf("decode printful result: %w", err)
	}
	id := strings.TrimSpace(result.ID.String())
	if id == "" {
		return "", errors.New("printful response has no order id")
	}
	return id, nil
}
