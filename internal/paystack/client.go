// Package paystack talks to the Paystack API: transaction verification and
// webhook authentication.
package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://api.paystack.co"

	// EventChargeSuccess is the webhook event that settles a payment.
	EventChargeSuccess = "charge.success"

	// SignatureHeader carries the webhook HMAC.
	SignatureHeader = "X-Paystack-Signature"
)

var (
	// ErrTransactionNotFound is returned when Paystack does not know the reference.
	ErrTransactionNotFound = errors.New("paystack: transaction not found")
	// ErrInvalidSignature is returned when a webhook body fails verification.
	ErrInvalidSignature = errors.New("paystack: invalid webhook signature")
)

// Transaction is the subset of a verified transaction the service uses.
// Amount is in the currency's minor unit.
type Transaction struct {
	ID        string
	Reference string
	Status    string
	Amount    int64
	Currency  string
	PaidAt    *time.Time
}

// APIError is a non-success answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("paystack: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("paystack: status %d: %s", e.StatusCode, e.Message)
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	SecretKey string
	// RetryMax bounds retries on connection errors and 5xx answers.
	RetryMax int
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Client calls the Paystack REST API.
type Client struct {
	http      *retryablehttp.Client
	baseURL   string
	secretKey string
}

// NewClient builds a Client with retrying transport.
func NewClient(opts Options) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	if rc.RetryMax <= 0 {
		rc.RetryMax = 3
	}
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil
	if opts.Logger != nil {
		rc.Logger = opts.Logger.With("component", "paystack")
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: rc, baseURL: baseURL, secretKey: opts.SecretKey}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type transactionData struct {
	ID        json.Number `json:"id"`
	Reference string      `json:"reference"`
	Status    string      `json:"status"`
	Amount    int64       `json:"amount"`
	Currency  string      `json:"currency"`
	PaidAt    *time.Time  `json:"paid_at"`
}

func (d transactionData) toTransaction() Transaction {
	return Transaction{
		ID:        d.ID.String(),
		Reference: d.Reference,
		Status:    d.Status,
		Amount:    d.Amount,
		Currency:  d.Currency,
		PaidAt:    d.PaidAt,
	}
}

// VerifyTransaction looks up a transaction by the merchant reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (Transaction, error) {
	endpoint := c.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Transaction{}, fmt.Errorf("paystack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Transaction{}, fmt.Errorf("paystack: verify %s: %w", reference, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Transaction{}, fmt.Errorf("paystack: read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode == http.StatusNotFound {
		return Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, reference)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (decodeErr == nil && !env.Status) {
		return Transaction{}, &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return Transaction{}, fmt.Errorf("paystack: decode response: %w", decodeErr)
	}

	var data transactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Transaction{}, fmt.Errorf("paystack: decode transaction: %w", err)
	}
	return data.toTransaction(), nil
}

// Event is a decoded webhook notification.
type Event struct {
	Event       string
	Transaction Transaction
}

// ParseEvent decodes a webhook body.
func ParseEvent(body []byte) (Event, error) {
	var raw struct {
		Event string          `json:"event"`
		Data  transactionData `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, fmt.Errorf("paystack: decode event: %w", err)
	}
	if raw.Event == "" {
		return Event{}, errors.New("paystack: event name missing")
	}
	return Event{Event: raw.Event, Transaction: raw.Data.toTransaction()}, nil
}
