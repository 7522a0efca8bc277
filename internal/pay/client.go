// Package pay wraps the Crypto Pay HTTP API. It exposes the two calls the
// backend consumes (createInvoice, deleteInvoice) and the webhook payload
// types delivered by the provider.
package pay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// UpdateInvoicePaid is the only webhook update type that triggers
// reconciliation; everything else is acknowledged and dropped.
const UpdateInvoicePaid = "invoice_paid"

// Invoice is the provider's invoice object, as returned by createInvoice and
// as embedded in webhook updates.
type Invoice struct {
	InvoiceID         int64  `json:"invoice_id"`
	Hash              string `json:"hash,omitempty"`
	BotInvoiceURL     string `json:"bot_invoice_url,omitempty"`
	MiniAppInvoiceURL string `json:"mini_app_invoice_url,omitempty"`
	Payload           string `json:"payload,omitempty"`
}

// Update is one webhook delivery. The provider retries deliveries, so the
// same update may arrive more than once.
type Update struct {
	UpdateID    int64   `json:"update_id"`
	UpdateType  string  `json:"update_type"`
	RequestDate string  `json:"request_date"`
	Payload     Invoice `json:"payload"`
}

// CreateInvoiceRequest carries the parameters for a new invoice. Payload is
// an opaque string echoed back in the paid-invoice webhook.
type CreateInvoiceRequest struct {
	Amount      string `json:"amount"`
	Asset       string `json:"asset"`
	Description string `json:"description,omitempty"`
	Payload     string `json:"payload,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

type deleteInvoiceRequest struct {
	InvoiceID int64 `json:"invoice_id"`
}

// apiResponse is the provider's uniform envelope.
type apiResponse struct {
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error"`
}

// Client is the HTTP Crypto Pay client.
type Client struct {
	token   string
	baseURL string
	hc      *http.Client
}

// NewClient builds a Client for the given API token and base URL
// (e.g. "https://testnet-pay.crypt.bot/api").
func NewClient(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Crypto-Pay-API-Token", c.token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if !env.Ok {
		if env.Error != nil {
			return fmt.Errorf("pay: %s %s (%d)", method, env.Error.Name, env.Error.Code)
		}
		return fmt.Errorf("pay: %s failed with status %d", method, resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}

// CreateInvoice creates a new invoice and returns the provider's invoice
// object including payment URLs.
func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	var inv Invoice
	if err := c.call(ctx, "createInvoice", req, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// DeleteInvoice cancels an outstanding invoice by id.
func (c *Client) DeleteInvoice(ctx context.Context, invoiceID int64) error {
	return c.call(ctx, "deleteInvoice", deleteInvoiceRequest{InvoiceID: invoiceID}, nil)
}
