package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the hosted-checkout payment gateway. Buyers are redirected
// to the returned session URL; the gateway charges them, forwards the amount
// minus the application fee to the destination (organizer) account, and
// reports the outcome asynchronously through signed webhooks.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		SecretKey:  secretKey,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type LineItem struct {
	Name     string `json:"name"`
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
	Quantity int    `json:"quantity"`
}

type CheckoutSessionParams struct {
	LineItems            []LineItem        `json:"line_items"`
	DestinationAccount   string            `json:"destination_account"`
	ApplicationFeeAmount int               `json:"application_fee_amount"`
	SuccessURL           string            `json:"success_url"`
	CancelURL            string            `json:"cancel_url"`
	Metadata             map[string]string `json:"metadata"`
}

type CheckoutSession struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

type Account struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
}

type gatewayError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var gwErr gatewayError
		if err := json.Unmarshal(respBody, &gwErr); err == nil && gwErr.Error.Message != "" {
			return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, gwErr.Error.Message)
		}
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	return json.Unmarshal(respBody, out)
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", params, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var account Account
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+accountID, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}
