// Package billing integrates Stripe subscriptions: checkout session
// creation, metered usage reporting, and webhook-driven lifecycle sync.
package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const stripeAPIBase = "https://api.stripe.com"

// StripeClient is a thin form-encoded client for the Stripe REST API.
type StripeClient struct {
	client  *resty.Client
	baseURL string
}

// NewStripeClient creates a Stripe API client.
// Parameters:
//   - secretKey: Stripe secret key (sk_live or sk_test).
//
// Returns:
//   - *StripeClient: initialized client.
func NewStripeClient(secretKey string) *StripeClient {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetBasicAuth(secretKey, "")

	return &StripeClient{
		client:  client,
		baseURL: stripeAPIBase,
	}
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type stripeCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type stripeCustomerList struct {
	Data []stripeCustomer `json:"data"`
}

// CheckoutSession is the subset of Stripe's checkout session object the
// service needs.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutParams describes a subscription checkout session.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	UserID     string
	Tier       string
	SuccessURL string
	CancelURL  string
}

// FindCustomerByEmail looks up an existing Stripe customer.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - email: customer email to search for.
//
// Returns:
//   - string: customer ID, empty when no customer matches.
//   - error: non-nil if the API call fails.
func (c *StripeClient) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	var list stripeCustomerList
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"email": email, "limit": "1"}).
		SetResult(&list).
		SetError(&stripeError{}).
		Get(c.baseURL + "/v1/customers")
	if err != nil {
		return "", fmt.Errorf("failed to list Stripe customers: %w", err)
	}
	if err := stripeRespError(resp); err != nil {
		return "", err
	}

	if len(list.Data) == 0 {
		return "", nil
	}
	return list.Data[0].ID, nil
}

// CreateCustomer creates a Stripe customer carrying the user ID in
// metadata so webhook events can be matched back.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - email: customer email.
//   - userID: internal user identifier.
//
// Returns:
//   - string: new customer ID.
//   - error: non-nil if the API call fails.
func (c *StripeClient) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	var customer stripeCustomer
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"email":             email,
			"metadata[user_id]": userID,
		}).
		SetResult(&customer).
		SetError(&stripeError{}).
		Post(c.baseURL + "/v1/customers")
	if err != nil {
		return "", fmt.Errorf("failed to create Stripe customer: %w", err)
	}
	if err := stripeRespError(resp); err != nil {
		return "", err
	}
	return customer.ID, nil
}

// TagCustomer stamps the user ID onto an existing customer's metadata.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - customerID: Stripe customer to update.
//   - userID: internal user identifier.
//
// Returns:
//   - error: non-nil if the API call fails.
func (c *StripeClient) TagCustomer(ctx context.Context, customerID, userID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"metadata[user_id]": userID}).
		SetError(&stripeError{}).
		Post(c.baseURL + "/v1/customers/" + customerID)
	if err != nil {
		return fmt.Errorf("failed to update Stripe customer: %w", err)
	}
	return stripeRespError(resp)
}

// CreateCheckoutSession creates a subscription-mode checkout session.
// The price is metered, so no line item quantity is sent.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - params: customer, price, redirect URLs, and identifying metadata.
//
// Returns:
//   - *CheckoutSession: session with the hosted payment page URL.
//   - error: non-nil if the API call fails.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params *CheckoutParams) (*CheckoutSession, error) {
	form := map[string]string{
		"mode":                 "subscription",
		"customer":             params.CustomerID,
		"client_reference_id":  params.UserID,
		"line_items[0][price]": params.PriceID,
		"success_url":          params.SuccessURL,
		"cancel_url":           params.CancelURL,
		"metadata[user_id]":    params.UserID,
		"metadata[tier]":       params.Tier,
		"subscription_data[metadata][user_id]": params.UserID,
		"subscription_data[metadata][tier]":    params.Tier,
	}

	var session CheckoutSession
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&session).
		SetError(&stripeError{}).
		Post(c.baseURL + "/v1/checkout/sessions")
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	if err := stripeRespError(resp); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateUsageRecord reports total usage for a metered subscription item.
// The quantity is the period total, not a delta; Stripe's graduated tiers
// price the free units at zero.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - subscriptionItemID: Stripe subscription item (si_...).
//   - quantity: total usage for the current period.
//   - idempotencyKey: optional Idempotency-Key header value.
//
// Returns:
//   - error: non-nil if the API call fails.
func (c *StripeClient) CreateUsageRecord(ctx context.Context, subscriptionItemID string, quantity int, idempotencyKey string) error {
	req := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"quantity":  strconv.Itoa(quantity),
			"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
			"action":    "set",
		}).
		SetError(&stripeError{})
	if idempotencyKey != "" {
		req.SetHeader("Idempotency-Key", idempotencyKey)
	}

	resp, err := req.Post(fmt.Sprintf("%s/v1/subscription_items/%s/usage_records", c.baseURL, subscriptionItemID))
	if err != nil {
		return fmt.Errorf("failed to report usage to Stripe: %w", err)
	}
	return stripeRespError(resp)
}

func stripeRespError(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	if apiErr, ok := resp.Error().(*stripeError); ok && apiErr.Error.Message != "" {
		return fmt.Errorf("Stripe API error: %s", apiErr.Error.Message)
	}
	return fmt.Errorf("Stripe API returned HTTP %d", resp.StatusCode())
}
