// Package shipping calls the external shipping-rate provider.
package shipping

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

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

const (
	defaultTimeout             = 5 * time.Second
	responseBodyReadLimit int64 = 1024
)

var (
	errAPIKeyRequired  = errors.New("shipping api key is required")
	errBaseURLRequired = errors.New("shipping base url is required")
)

// Client wraps the rate endpoint of the shipping provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the per-call deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, errBaseURLRequired
	}
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		baseURL:    trimmedURL,
		apiKey:     trimmedKey,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Parcel is one package in cm / kg.
type Parcel struct {
	Width    decimal.Decimal `json:"width"`
	Height   decimal.Decimal `json:"height"`
	Length   decimal.Decimal `json:"length"`
	Weight   decimal.Decimal `json:"weight"`
	Quantity int             `json:"quantity"`
}

type RateRequest struct {
	FromPostalCode string   `json:"from_postal_code"`
	ToPostalCode   string   `json:"to_postal_code"`
	Parcels        []Parcel `json:"parcels"`
}

// Rate is a normalized rate option. PriceCents is the only trusted money value.
type Rate struct {
	ServiceID     string
	Carrier       string
	ServiceName   string
	PriceCents    int64
	Currency      string
	EstimatedDays int
}

type rateResponse struct {
	ServiceID     string `json:"service_id"`
	Carrier       string `json:"carrier"`
	ServiceName   string `json:"service_name"`
	Price         string `json:"price"`
	Currency      string `json:"currency"`
	EstimatedDays int    `json:"estimated_days"`
}

// Rates returns every rate option the provider offers for the parcels.
func (c *Client) Rates(ctx context.Context, req RateRequest) ([]Rate, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "shipping client not configured")
	}
	if strings.TrimSpace(req.ToPostalCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination postal code is required")
	}
	if len(req.Parcels) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one parcel is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal rate request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rates", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build rate request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute rate request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "rate request failed")
	}

	var apiResp []rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode rate response")
	}

	rates := make([]Rate, 0, len(apiResp))
	for _, r := range apiResp {
		if strings.TrimSpace(r.ServiceID) == "" {
			continue
		}
		cents, err := PriceToCents(r.Price)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("invalid price for service %s", r.ServiceID))
		}
		rates = append(rates, Rate{
			ServiceID:     r.ServiceID,
			Carrier:       r.Carrier,
			ServiceName:   r.ServiceName,
			PriceCents:    cents,
			Currency:      strings.ToUpper(strings.TrimSpace(r.Currency)),
			EstimatedDays: r.EstimatedDays,
		})
	}
	if len(rates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "shipping provider returned no rates")
	}
	return rates, nil
}

// PriceToCents converts a decimal major-unit price ("12.5") to minor units, rounding half up.
func PriceToCents(raw string) (int64, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if price.IsNegative() {
		return 0, fmt.Errorf("negative price %s", raw)
	}
	return price.Shift(2).Round(0).IntPart(), nil
}
