// Package crm implements ports.LeadCreator against a Salesforce-style REST API.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/leadflow/internal/logging"
	"github.com/aretw0/leadflow/pkg/leads"
	"github.com/aretw0/leadflow/pkg/ports"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIVersion = "v59.0"
	DefaultTokenURL   = "https://login.salesforce.com/services/oauth2/token"
)

// ErrNoLeadID is returned when the CRM accepts a lead without returning its id.
var ErrNoLeadID = errors.New("lead created but no id returned")

// Config holds the CRM connection settings.
type Config struct {
	InstanceURL  string        `koanf:"instance_url"`
	APIVersion   string        `koanf:"api_version"`
	TokenURL     string        `koanf:"token_url"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	RefreshToken string        `koanf:"refresh_token"`
	Timeout      time.Duration `koanf:"timeout"`
	// MaxAttempts bounds tries of a retryable failure. 1 disables retries.
	MaxAttempts int `koanf:"max_attempts"`
}

// Validate checks the settings required to reach the CRM.
func (c Config) Validate() error {
	var missing []string
	if c.InstanceURL == "" {
		missing = append(missing, "instance_url")
	}
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("crm: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Client creates leads over HTTP. It refreshes its access token with the
// OAuth2 refresh-token grant and forces a new token once on a 401.
type Client struct {
	cfg      Config
	oauth    *oauth2.Config
	http     *http.Client
	builder  *leads.Builder
	logger   *slog.Logger
	newRetry func() backoff.BackOff

	mu  sync.Mutex
	src oauth2.TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for token and API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithBuilder sets the lead payload builder.
func WithBuilder(b *leads.Builder) Option {
	return func(c *Client) {
		c.builder = b
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBackOff sets the retry schedule factory.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newRetry = fn
	}
}

// New creates a CRM client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	cfg.InstanceURL = strings.TrimRight(cfg.InstanceURL, "/")

	c := &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http:    &http.Client{Timeout: cfg.Timeout},
		builder: leads.NewBuilder(),
		logger:  logging.NewNop(),
		newRetry: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.src = c.freshSource()
	return c, nil
}

var _ ports.LeadCreator = (*Client)(nil)

func (c *Client) freshSource() oauth2.TokenSource {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.http)
	return c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: c.cfg.RefreshToken})
}

func (c *Client) token() (*oauth2.Token, error) {
	c.mu.Lock()
	src := c.src
	c.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("crm: token refresh failed: %w", err)
	}
	return tok, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.src = c.freshSource()
	c.mu.Unlock()
}

func (c *Client) leadURL() string {
	return fmt.Sprintf("%s/services/data/%s/sobjects/Lead/", c.cfg.InstanceURL, c.cfg.APIVersion)
}

// CreateLead builds the payload for req and posts it, returning the CRM lead id.
func (c *Client) CreateLead(ctx context.Context, req ports.LeadRequest) (string, error) {
	payload, err := c.builder.Build(req)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("crm: failed to marshal lead: %w", err)
	}

	logger := c.logger.With("session_id", req.SessionID, "dedupe_id", req.DedupeID)
	attempt := 0
	op := func() (string, error) {
		attempt++
		id, err := c.createOnce(ctx, body)
		if err == nil {
			return id, nil
		}
		if !retryable(err) {
			return "", backoff.Permanent(err)
		}
		logger.Warn("lead creation attempt failed", "attempt", attempt, "err", err)
		return "", err
	}

	id, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newRetry()),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
	)
	if err != nil {
		return "", err
	}
	logger.Debug("lead created in crm", "lead_id", id, "attempts", attempt)
	return id, nil
}

// createOnce posts the lead, refreshing the token once on 401.
func (c *Client) createOnce(ctx context.Context, body []byte) (string, error) {
	id, err := c.post(ctx, body)
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.invalidate()
		return c.post(ctx, body)
	}
	return id, err
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	data, err := c.send(ctx, http.MethodPost, c.leadURL(), body)
	if err != nil {
		return "", err
	}

	var created struct {
		ID    string `json:"id"`
		IDAlt string `json:"Id"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("crm: invalid response: %w", err)
	}
	if created.ID == "" {
		created.ID = created.IDAlt
	}
	if created.ID == "" {
		return "", ErrNoLeadID
	}
	return created.ID, nil
}

// send issues one authorized request and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	tok, err := c.token()
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tok.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("crm: failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseError(resp.StatusCode, data)
	}
	return data, nil
}

func retryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return !errors.Is(err, ErrNoLeadID)
}
