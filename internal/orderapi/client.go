package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fruitshop/orderdesk/internal/auth"
	"github.com/fruitshop/orderdesk/internal/logger"
)

// maxBodyBytes caps how much of a backend response is read into memory.
// Payment slips and delivery photos travel inline as base64.
const maxBodyBytes = 32 << 20

// Client talks to the storefront order backend. Reads fail open (empty or
// nil results, logged); writes return typed errors to the caller.
type Client struct {
	baseURL    string
	session    *auth.Session
	httpClient *http.Client
	log        logger.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the tuned default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the overall request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for the backend at baseURL acting with session.
func NewClient(baseURL string, session *auth.Session, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		log:     log,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the credential the client acts with.
func (c *Client) Session() *auth.Session {
	return c.session
}

// VerifyToken asks the backend whether token is a live credential by listing
// its owner's orders. The client's own session is not used or changed.
func (c *Client) VerifyToken(ctx context.Context, token string) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	_, err := c.call(ctx, http.MethodGet, "/api/orders/my-orders", token, nil, "token rejected")
	return err
}

// --- Wire envelope ---

type envelope struct {
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	QRURL   string          `json:"qr_url,omitempty"`
	Order   json.RawMessage `json:"order,omitempty"`
}

type payload struct {
	Orders   json.RawMessage `json:"orders"`
	Invoices json.RawMessage `json:"invoices"`
	Order    json.RawMessage `json:"order"`
	Invoice  json.RawMessage `json:"invoice"`
	QRURL    string          `json:"qr_url"`
}

func (e *envelope) payload() (payload, error) {
	var p payload
	if !present(e.Data) {
		return p, nil
	}
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return p, fmt.Errorf("decode data: %w", err)
	}
	return p, nil
}

// collection returns data.orders, else data.invoices.
func (p payload) collection() json.RawMessage {
	if present(p.Orders) {
		return p.Orders
	}
	if present(p.Invoices) {
		return p.Invoices
	}
	return nil
}

// single returns data.order, else data.invoice.
func (p payload) single() json.RawMessage {
	if present(p.Order) {
		return p.Order
	}
	if present(p.Invoice) {
		return p.Invoice
	}
	return nil
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// --- Helpers ---

// bearer returns the session token, or ErrAuthRequired.
func (c *Client) bearer() (string, error) {
	if c.baseURL == "" {
		return "", ErrAuthRequired
	}
	token := c.session.Token()
	if token == "" {
		return "", ErrAuthRequired
	}
	return token, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// call sends one request and decodes the envelope. A non-2xx answer becomes
// a *RequestError carrying the backend message, or fallback when the
// backend gave none.
func (c *Client) call(ctx context.Context, method, path, token string, body interface{}, fallback string) (*envelope, error) {
	req, err := c.newRequest(ctx, method, path, token, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	env := &envelope{}
	decodeErr := decodeBody(raw, env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = fallback
		}
		return nil, &RequestError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return env, nil
}

// write runs an authenticated mutation.
func (c *Client) write(ctx context.Context, method, path string, body interface{}, fallback string) (*envelope, error) {
	token, err := c.bearer()
	if err != nil {
		return nil, err
	}
	return c.call(ctx, method, path, token, body, fallback)
}

// read runs an authenticated GET and logs instead of returning failures.
func (c *Client) read(ctx context.Context, path, op string) (*envelope, bool) {
	token, err := c.bearer()
	if err != nil {
		c.log.Warn(op+" skipped", logger.String("path", path), logger.Error(err))
		return nil, false
	}
	env, err := c.call(ctx, http.MethodGet, path, token, nil, op+" failed")
	if err != nil {
		c.log.Error(op+" failed", logger.String("path", path), logger.Error(err))
		return nil, false
	}
	return env, true
}

func decodeBody(raw []byte, env *envelope) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func orderPath(id string, suffix string) string {
	return "/api/orders/" + url.PathEscape(id) + suffix
}

func invoicePath(id string, suffix string) string {
	return "/api/invoices/" + url.PathEscape(id) + suffix
}
