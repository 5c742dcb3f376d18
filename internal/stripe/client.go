// Package stripe implements the payment provider interface against a
// Stripe-compatible payment intents API.
package stripe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/veloshop/checkout/internal/domain/payment"
)

// DefaultBaseURL is the production Stripe API endpoint.
const DefaultBaseURL = "https://api.stripe.com"

var _ payment.Provider = (*Client)(nil)

// Config holds the provider credentials and endpoint.
type Config struct {
	// APIKey is the secret key used as a bearer token.
	APIKey string
	// BaseURL overrides the API endpoint; useful for stubs in tests and
	// local development. Empty means DefaultBaseURL.
	BaseURL string
	// Timeout bounds each provider call. Zero means 10 seconds.
	Timeout time.Duration
}

// Client calls the provider's payment intents API. Every failure, transport
// or HTTP-level, is wrapped in payment.ErrExternal so callers can treat it as
// retryable.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client from the given config.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// intentResponse is the subset of the provider's payment intent object the
// checkout core needs.
type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// CreateIntent creates a new payment intent for the given amount.
func (c *Client) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (*payment.Intent, error) {
	form := url.Values{}
	form.Set("amount", minorUnits(amount))
	form.Set("currency", currency)

	return c.postIntent(ctx, c.baseURL+"/v1/payment_intents", form)
}

// UpdateIntent changes the amount of an existing intent. The provider call is
// idempotent with respect to the intent id: the same intent is returned with
// its amount refreshed.
func (c *Client) UpdateIntent(ctx context.Context, intentID string, amount decimal.Decimal) (*payment.Intent, error) {
	form := url.Values{}
	form.Set("amount", minorUnits(amount))

	return c.postIntent(ctx, c.baseURL+"/v1/payment_intents/"+url.PathEscape(intentID), form)
}

func (c *Client) postIntent(ctx context.Context, endpoint string, form url.Values) (*payment.Intent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build intent request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(payment.ErrExternal, "payment intent request: %s", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrapf(payment.ErrExternal, "read intent response: %s", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(payment.ErrExternal, "payment intent request: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ir intentResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return nil, errors.Wrapf(payment.ErrExternal, "decode intent response: %s", err)
	}
	if ir.ID == "" {
		return nil, errors.Wrap(payment.ErrExternal, "intent response missing id")
	}

	return &payment.Intent{ID: ir.ID, ClientSecret: ir.ClientSecret}, nil
}

// minorUnits renders a decimal amount in the currency's minor units (cents),
// the integer representation the provider expects.
func minorUnits(amount decimal.Decimal) string {
	return strconv.FormatInt(amount.Shift(2).Round(0).IntPart(), 10)
}
