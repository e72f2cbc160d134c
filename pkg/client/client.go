// Package client provides the Attestry Go SDK for submitting attestations
// and reading the chain, records, and profiles over the ledger HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ChainOverview is the response of GET /api/v1/chain.
type ChainOverview struct {
	Blocks int    `json:"blocks"`
	Height uint64 `json:"height"`
	Head   string `json:"head"`
}

// VerifyResult is the response of GET /api/v1/chain/verify.
type VerifyResult struct {
	Valid              bool    `json:"valid"`
	FirstInvalidHeight *uint64 `json:"first_invalid_height,omitempty"`
	Reason             string  `json:"reason,omitempty"`
}

// Record is an attestation record as returned by the API.
type Record struct {
	ID        uint64          `json:"id"`
	Kind      string          `json:"kind"`
	Actor     string          `json:"actor"`
	Subject   string          `json:"subject,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Block is a chain block as returned by the API.
type Block struct {
	Height      uint64    `json:"height"`
	PrevHash    string    `json:"previous_hash"`
	ContentHash string    `json:"content_hash"`
	BlockHash   string    `json:"block_hash"`
	CreatedAt   time.Time `json:"created_at"`
	Record      *Record   `json:"record"`
}

// Profile is a derived actor profile as returned by the API.
type Profile struct {
	Actor       string         `json:"actor"`
	AsOfHeight  uint64         `json:"as_of_height"`
	Counts      map[string]int `json:"counts"`
	Endorsers   int            `json:"endorsers"`
	FirstHeight uint64         `json:"first_height"`
	LastHeight  uint64         `json:"last_height"`
	Weight      int            `json:"weight"`
	Rank        string         `json:"rank"`
}

// AppendRequest is the payload for Append. Payload must marshal to the
// kind-specific payload object the server expects.
type AppendRequest struct {
	Kind    string `json:"kind"`
	Actor   string `json:"actor"`
	Subject string `json:"subject,omitempty"`
	Payload any    `json:"payload"`
}

// RecordFilter narrows Records calls. Zero-valued fields are inactive;
// active filters compose via AND on the server.
type RecordFilter struct {
	Actor     string
	Kind      string
	From, To  time.Time
	MinWeight *float64
	Limit     int
}

// Client is the Attestry SDK entry point.
type Client struct {
	base       string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on append calls.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the ledger at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Overview returns the chain head and height.
func (c *Client) Overview(ctx context.Context) (*ChainOverview, error) {
	var out ChainOverview
	if err := c.get(ctx, "/api/v1/chain", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify runs a full-chain integrity check on the server.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.get(ctx, "/api/v1/chain/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyRange checks the contiguous height range [from, to].
func (c *Client) VerifyRange(ctx context.Context, from, to uint64) (*VerifyResult, error) {
	params := url.Values{}
	params.Set("from", strconv.FormatUint(from, 10))
	params.Set("to", strconv.FormatUint(to, 10))
	var out VerifyResult
	if err := c.get(ctx, "/api/v1/chain/verify", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Append submits one attestation and returns the new block.
func (c *Client) Append(ctx context.Context, req AppendRequest) (*Block, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal append request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/records", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	var out Block
	if err := c.do(httpReq, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Record fetches a single record by id.
func (c *Client) Record(ctx context.Context, id uint64) (*Record, error) {
	var out Record
	if err := c.get(ctx, "/api/v1/records/"+strconv.FormatUint(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Records fetches records matching the filter, most recent first.
func (c *Client) Records(ctx context.Context, f RecordFilter) ([]Record, error) {
	params := url.Values{}
	if f.Actor != "" {
		params.Set("actor", f.Actor)
	}
	if f.Kind != "" {
		params.Set("kind", f.Kind)
	}
	if !f.From.IsZero() {
		params.Set("from", f.From.Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		params.Set("to", f.To.Format(time.RFC3339))
	}
	if f.MinWeight != nil {
		params.Set("min_weight", strconv.FormatFloat(*f.MinWeight, 'f', -1, 64))
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}

	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.get(ctx, "/api/v1/records", params, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Block fetches the block at the given height.
func (c *Client) Block(ctx context.Context, height uint64) (*Block, error) {
	var out Block
	if err := c.get(ctx, "/api/v1/blocks/"+strconv.FormatUint(height, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches the derived profile for actor. Pass asOfHeight < 0 for
// the current chain height.
func (c *Client) Profile(ctx context.Context, actor string, asOfHeight int64) (*Profile, error) {
	params := url.Values{}
	if asOfHeight >= 0 {
		params.Set("as_of_height", strconv.FormatInt(asOfHeight, 10))
	}
	var out Profile
	if err := c.get(ctx, "/api/v1/profiles/"+url.PathEscape(actor), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, out)
}

func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("ledger returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("ledger returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
