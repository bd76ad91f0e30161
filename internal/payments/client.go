// Package payments drives pending invoices through their lifecycle against
// a Lightning-style payment backend whose settlement is reported
// asynchronously and unreliably.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to the payment backend over HTTP. Invoice encodings are
// treated as opaque strings.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a payment backend client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateInvoice requests a new invoice for the given amount.
func (c *Client) CreateInvoice(ctx context.Context, amount int64) (string, string, error) {
	body, _ := json.Marshal(map[string]int64{"amount": amount})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoices", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("create invoice: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("create invoice: backend returned %d", resp.StatusCode)
	}

	var out struct {
		PaymentRequest  string `json:"paymentRequest"`
		PaymentHash     string `json:"paymentHash"`
		PaymentRequest2 string `json:"payment_request"`
		PaymentHash2    string `json:"payment_hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("create invoice: decode response: %w", err)
	}
	invoice, hash := out.PaymentRequest, out.PaymentHash
	if invoice == "" {
		invoice = out.PaymentRequest2
	}
	if hash == "" {
		hash = out.PaymentHash2
	}
	if invoice == "" || hash == "" {
		return "", "", fmt.Errorf("create invoice: backend response missing payment request or hash")
	}
	return invoice, hash, nil
}

// CheckPayment reports whether the invoice identified by paymentHash has
// settled. Non-2xx responses and transport failures are returned as errors
// for the caller to retry on its next tick.
func (c *Client) CheckPayment(ctx context.Context, paymentHash string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/invoices/"+paymentHash, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("check payment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("check payment: backend returned %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return false, fmt.Errorf("check payment: decode response: %w", err)
	}
	return parsePaidResponse(raw)
}

// parsePaidResponse extracts the settled flag from a status response.
// Backends in the wild report {"paid": true}, {"paid": "true"},
// {"settled": 1}, and nested {"status": {"paid": ...}} variants; all are
// tolerated.
func parsePaidResponse(raw []byte) (bool, error) {
	var resp struct {
		Paid    any `json:"paid"`
		Settled any `json:"settled"`
		Status  *struct {
			Paid    any `json:"paid"`
			Settled any `json:"settled"`
		} `json:"status"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, fmt.Errorf("malformed status response: %w", err)
	}

	for _, v := range []any{resp.Paid, resp.Settled} {
		if b, ok := asBool(v); ok {
			return b, nil
		}
	}
	if resp.Status != nil {
		for _, v := range []any{resp.Status.Paid, resp.Status.Settled} {
			if b, ok := asBool(v); ok {
				return b, nil
			}
		}
	}
	return false, fmt.Errorf("status response carries no paid flag")
}

// asBool coerces the loose boolean encodings backends actually send.
func asBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(val) {
		case "true", "1", "yes", "paid", "settled":
			return true, true
		case "false", "0", "no", "unpaid", "pending":
			return false, true
		}
		return false, false
	case float64:
		return val != 0, true
	}
	return false, false
}
