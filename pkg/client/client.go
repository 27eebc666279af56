// Package client provides a Go client for the permitclaim API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a permitclaim API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new permitclaim client. Claims wait for a receipt on the
// server, so the default timeout is generous.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NFTMetadata is the GitHub context of an ERC-721 reward.
type NFTMetadata struct {
	Organization     string `json:"GITHUB_ORGANIZATION_NAME"`
	Repository       string `json:"GITHUB_REPOSITORY_NAME"`
	IssueID          string `json:"GITHUB_ISSUE_ID"`
	Username         string `json:"GITHUB_USERNAME"`
	ContributionType string `json:"GITHUB_CONTRIBUTION_TYPE"`
}

// Permit is a stored reward. Integers are decimal strings.
type Permit struct {
	Kind            string       `json:"kind"`
	NetworkID       int64        `json:"networkId"`
	Nonce           string       `json:"nonce"`
	Owner           string       `json:"owner"`
	Token           string       `json:"token"`
	Amount          string       `json:"amount"`
	Deadline        string       `json:"deadline"`
	Beneficiary     string       `json:"beneficiary"`
	RequestedAmount string       `json:"requestedAmount"`
	Signature       string       `json:"signature"`
	NFTMetadata     *NFTMetadata `json:"nftMetadata,omitempty"`
	TxHash          string       `json:"txHash,omitempty"`
	CreatedAt       string       `json:"createdAt,omitempty"`
	ClaimURL        string       `json:"claimUrl,omitempty"`
}

// Treasury is the funding wallet's position for a permit's token.
type Treasury struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
	Decimals  int    `json:"decimals"`
	Symbol    string `json:"symbol"`
	Known     bool   `json:"known"`
}

// Toast is a user-facing notification produced by the claim flow.
type Toast struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// UIState holds the claim page button visibility.
type UIState struct {
	MakeClaim   bool `json:"makeClaim"`
	Loader      bool `json:"loader"`
	ViewClaim   bool `json:"viewClaim"`
	Invalidator bool `json:"invalidator"`
}

// SessionResult is the outcome of a check, claim or invalidation.
type SessionResult struct {
	Nonce       string  `json:"nonce"`
	Eligibility string  `json:"eligibility,omitempty"`
	State       string  `json:"state"`
	TxHash      string  `json:"txHash,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	Toasts      []Toast `json:"toasts"`
	UI          UIState `json:"ui"`
}

// ImportResult reports how many rewards of a claim link were stored.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Permits  []Permit `json:"permits"`
}

// ListOptions filters ListPermits. Zero values are not sent.
type ListOptions struct {
	Owner       string
	Beneficiary string
	NetworkID   int64
	Claimed     *bool
	Limit       int
	Cursor      string
}

// ListPermitsResponse is the response for listing permits
type ListPermitsResponse struct {
	Data       []Permit   `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ListPermits lists stored permits
func (c *Client) ListPermits(ctx context.Context, opts ListOptions) (*ListPermitsResponse, error) {
	q := url.Values{}
	if opts.Owner != "" {
		q.Set("owner", opts.Owner)
	}
	if opts.Beneficiary != "" {
		q.Set("beneficiary", opts.Beneficiary)
	}
	if opts.NetworkID != 0 {
		q.Set("networkId", strconv.FormatInt(opts.NetworkID, 10))
	}
	if opts.Claimed != nil {
		q.Set("claimed", strconv.FormatBool(*opts.Claimed))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}

	path := "/api/v1/permits"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListPermitsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPermit gets a stored permit by nonce
func (c *Client) GetPermit(ctx context.Context, nonce string) (*Permit, error) {
	var resp Permit
	if err := c.get(ctx, permitPath(nonce, ""), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTreasury reads the funding wallet's balance and allowance for a permit
func (c *Client) GetTreasury(ctx context.Context, nonce string) (*Treasury, error) {
	var resp Treasury
	if err := c.get(ctx, permitPath(nonce, "/treasury"), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Import stores the rewards of a claim link (or bare claim data)
func (c *Client) Import(ctx context.Context, claim string) (*ImportResult, error) {
	var resp ImportResult
	if err := c.post(ctx, "/api/v1/permits", map[string]string{"claim": claim}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Check runs the eligibility check against the server's wallet
func (c *Client) Check(ctx context.Context, nonce string) (*SessionResult, error) {
	return c.session(ctx, nonce, "/check")
}

// Claim claims a permit with the server's wallet
func (c *Client) Claim(ctx context.Context, nonce string) (*SessionResult, error) {
	return c.session(ctx, nonce, "/claim")
}

// Invalidate burns a permit's nonce with the server's wallet
func (c *Client) Invalidate(ctx context.Context, nonce string) (*SessionResult, error) {
	return c.session(ctx, nonce, "/invalidate")
}

// Health checks server liveness
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

func (c *Client) session(ctx context.Context, nonce, action string) (*SessionResult, error) {
	var resp SessionResult
	if err := c.post(ctx, permitPath(nonce, action), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func permitPath(nonce, suffix string) string {
	return "/api/v1/permits/" + url.PathEscape(nonce) + suffix
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.Status = resp.StatusCode
	return &errResp.Error
}
