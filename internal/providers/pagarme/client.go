package pagarme

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	"github.com/tonipcv/kr-saas-sub001/pkg/config"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

var errAPIKeyRequired = errors.New("pagarme api key is required")

// ProviderError is a non-2xx answer from the provider, surfaced with
// the provider's own status and message so checkout can pass it through.
type ProviderError struct {
	StatusCode int
	Status     string
	Message    string
	RawBody    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("pagarme: %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// IsSplitRemainderError reports the provider's split-remainder fee
// validation failure, which checkout retries once without the split.
func IsSplitRemainderError(err error) bool {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		return false
	}
	body := strings.ToLower(perr.Message + " " + perr.RawBody)
	return strings.Contains(body, "remainder") && strings.Contains(body, "split")
}

// Client talks to the Pagar.me core API over HTTP with basic auth.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
	logg    *logger.Logger
}

// NewClient builds the API client from config.
func NewClient(cfg config.PagarmeConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey+":")),
		http:    &http.Client{Timeout: cfg.Timeout},
		logg:    logg,
	}, nil
}

// CreateCustomer registers the buyer on the provider.
func (c *Client) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	var out Customer
	if err := c.do(ctx, http.MethodPost, "/customers", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCard stores a card under a provider customer.
func (c *Client) CreateCard(ctx context.Context, customerID string, req CardRequest) (*Card, error) {
	var out Card
	path := fmt.Sprintf("/customers/%s/cards", customerID)
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePlan creates a recurring plan.
func (c *Client) CreatePlan(ctx context.Context, req PlanRequest) (*Plan, error) {
	var out Plan
	if err := c.do(ctx, http.MethodPost, "/plans", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSubscription creates a subscription.
func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	var out Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder fetches an order, used for PIX settlement verification.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCharge patches a charge, used to apply a deferred split.
func (c *Client) UpdateCharge(ctx context.Context, chargeID string, req ChargeUpdateRequest) error {
	return c.do(ctx, http.MethodPatch, "/charges/"+chargeID, req, nil)
}

// VerifyPaid implements the PIX settlement cross-check: the order's
// paid amount must cover its amount, or a nested transaction must
// itself report paid.
func (c *Client) VerifyPaid(ctx context.Context, orderID string) (bool, error) {
	order, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	for _, charge := range order.Charges {
		if charge.PaidAmount >= charge.Amount && charge.Amount > 0 {
			return true, nil
		}
		if charge.LastTransaction != nil && strings.EqualFold(charge.LastTransaction.Status, "paid") {
			return true, nil
		}
	}
	return strings.EqualFold(order.Status, "paid"), nil
}

// ApplySplit pushes the resolved revenue split onto an existing charge.
func (c *Client) ApplySplit(ctx context.Context, chargeID string, resolution reconciler.SplitResolution) error {
	if resolution.RecipientID == "" {
		return nil
	}
	return c.UpdateCharge(ctx, chargeID, ChargeUpdateRequest{
		Split: []SplitRule{
			{
				Amount:    resolution.Shares.ClinicAmountCents,
				Type:      "flat",
				Recipient: resolution.RecipientID,
				Options: &SplitOptions{
					ChargeProcessingFee: false,
					ChargeRemainderFee:  false,
					Liable:              true,
				},
			},
		},
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pagarme %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.providerError(resp, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) providerError(resp *http.Response, raw []byte) error {
	perr := &ProviderError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		RawBody:    string(raw),
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Message != "" {
		perr.Message = parsed.Message
	} else {
		perr.Message = http.StatusText(resp.StatusCode)
	}
	return perr
}

var (
	_ reconciler.PaidVerifier       = (*Client)(nil)
	_ reconciler.ChargeSplitApplier = (*Client)(nil)
)
