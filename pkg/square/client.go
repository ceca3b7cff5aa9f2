package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/payments"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	defaultRequestTimeout = 10 * time.Second
)

var (
	errAccessTokenRequired   = errors.New("square access token is required")
	errLocationRequired      = errors.New("square location id is required")
	errWebhookSecretRequired = errors.New("square webhook secret is required")
	errInvalidSquareEnv      = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired        = errors.New("square logger is required")
	errNotConfigured         = pkgerrors.New(pkgerrors.CodeDependency, "square client not configured")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client is the Square payment provider: hosted payment links for Flow B plus
// the payment and order lookups used when reconciling webhooks.
type Client struct {
	sdk           *sqclient.Client
	environment   string
	locationID    string
	currency      string
	redirectURL   string
	webhookSecret string
	webhookURL    string
	timeout       time.Duration
	logger        *logger.Logger
}

var _ payments.Provider = (*Client)(nil)

// NewClient initializes the Square wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	required := []struct {
		value string
		err   error
	}{
		{cfg.AccessToken, errAccessTokenRequired},
		{cfg.LocationID, errLocationRequired},
		{cfg.WebhookSecret, errWebhookSecretRequired},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, r.err
		}
	}

	c := &Client{
		sdk: sqclient.NewClient(
			sqoption.WithBaseURL(baseURLs[env]),
			sqoption.WithToken(strings.TrimSpace(cfg.AccessToken)),
		),
		environment:   env,
		locationID:    strings.TrimSpace(cfg.LocationID),
		currency:      strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		redirectURL:   strings.TrimSpace(cfg.RedirectURL),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		webhookURL:    strings.TrimSpace(cfg.WebhookURL),
		timeout:       defaultRequestTimeout,
		logger:        logg,
	}
	if cfg.RequestTimeout > 0 {
		c.timeout = cfg.RequestTimeout
	}

	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return c, nil
}

// Name identifies the provider in the webhook ledger and on orders.
func (c *Client) Name() enums.PaymentProvider {
	return enums.PaymentProviderSquare
}

// Environment reports the normalized Square environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the Square webhook signature key.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// NotificationURL is the subscription URL Square signs together with the body.
func (c *Client) NotificationURL() string {
	if c == nil {
		return ""
	}
	return c.webhookURL
}

// CreatePreference opens a hosted Square payment link for the order.
func (c *Client) CreatePreference(ctx context.Context, pref payments.Preference) (*payments.PreferenceResult, error) {
	if c == nil || c.sdk == nil {
		return nil, errNotConfigured
	}
	if len(pref.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment link requires at least one line")
	}
	if pref.Currency == "" {
		pref.Currency = c.currency
	}
	if pref.RedirectURL == "" {
		pref.RedirectURL = c.redirectURL
	}
	req := paymentLinkRequest(c.locationID, pref, idempotencyKey("payment_link", pref.IdempotencyKey))
	fields := map[string]any{"reference_id": pref.ReferenceID, "lines": len(pref.Lines), "total_cents": pref.TotalCents()}

	link, err := call(ctx, c, "create_payment_link", fields, func(ctx context.Context) (*sq.PaymentLink, error) {
		resp, err := c.sdk.Checkout.PaymentLinks.Create(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.GetPaymentLink(), nil
	})
	if err != nil {
		return nil, err
	}
	if link == nil || stringValue(link.GetURL()) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned an empty payment link")
	}
	return &payments.PreferenceResult{
		PreferenceID:    stringValue(link.GetID()),
		ProviderOrderID: stringValue(link.GetOrderID()),
		RedirectURL:     stringValue(link.GetURL()),
	}, nil
}

// GetPayment fetches the authoritative payment state.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*payments.Detail, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	payment, err := call(ctx, c, "get_payment", map[string]any{"payment_id": paymentID}, func(ctx context.Context) (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	})
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment")
	}
	return paymentDetail(payment), nil
}

// GetOrder fetches the authoritative Square order state.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*payments.Detail, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := call(ctx, c, "get_order", map[string]any{"order_id": orderID}, func(ctx context.Context) (*sq.Order, error) {
		resp, err := c.sdk.Orders.Get(ctx, &sq.GetOrdersRequest{OrderID: orderID})
		if err != nil {
			return nil, err
		}
		return resp.GetOrder(), nil
	})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no order")
	}
	return orderDetail(order), nil
}

// call runs one SDK request under the client timeout, logs its outcome and
// maps SDK failures onto storefront error codes.
func call[T any](ctx context.Context, c *Client, op string, fields map[string]any, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil || c.sdk == nil {
		return zero, errNotConfigured
	}
	logCtx := c.logger.WithFields(ctx, fields)
	logCtx = c.logger.WithField(logCtx, "square_op", op)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	out, err := fn(callCtx)
	logCtx = c.logger.WithField(logCtx, "took_ms", time.Since(start).Milliseconds())
	if err != nil {
		mapped := mapError(op, err)
		c.logger.Error(logCtx, "square call failed", mapped)
		return zero, mapped
	}
	c.logger.Info(logCtx, "square call ok")
	return out, nil
}

// idempotencyKey keeps a caller supplied key, otherwise mints prefix-<uuid>.
func idempotencyKey(prefix, provided string) string {
	if provided = strings.TrimSpace(provided); provided != "" {
		return provided
	}
	return prefix + "-" + uuid.NewString()
}

// mapError turns an SDK error into a storefront error. Only a reused
// idempotency key and lookups of unknown objects are the caller's problem;
// auth failures mean our merchant token is bad.
func mapError(op string, err error) error {
	code := pkgerrors.CodeDependency
	var apiErr *sqcore.APIError
	if errors.As(err, &apiErr) {
		code = codeForStatus(apiErr.StatusCode)
		for _, detail := range errorDetails(apiErr) {
			if detail.Code == sq.ErrorCodeIdempotencyKeyReused {
				code = pkgerrors.CodeIdempotency
			} else if detail.Category == sq.ErrorCategoryAuthenticationError {
				code = pkgerrors.CodeDependency
			}
		}
	}
	return pkgerrors.Wrap(code, err, "square "+op+" failed")
}

// errorDetails decodes the {"errors":[...]} body the SDK keeps as the inner error.
func errorDetails(apiErr *sqcore.APIError) []sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(inner.Error()), &body) != nil {
		return nil
	}
	return body.Errors
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	default:
		return pkgerrors.CodeDependency
	}
}

func normalizeEnv(raw string) (string, error) {
	switch env := strings.ToLower(strings.TrimSpace(raw)); env {
	case "":
		return sandboxEnv, nil
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}
