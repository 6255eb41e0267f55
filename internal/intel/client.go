// ABOUTME: HTTP client for the community threat intelligence service.
// ABOUTME: Pull/Push/Report/Lookup, each best-effort with a bounded timeout.

package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigil-dev/sigil/internal/types"
)

const defaultTimeout = 30 * time.Second

// Client talks to the threat intelligence service. The zero token means
// anonymous access: Pull and Lookup work, Push requires authentication.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a client for the service at baseURL. token may be empty
// for anonymous use.
func NewClient(baseURL, token string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// signatureResponse is the wrapped format returned by GET /v1/signatures.
type signatureResponse struct {
	Signatures  []types.Signature `json:"signatures"`
	Total       int               `json:"total"`
	LastUpdated string            `json:"last_updated,omitempty"`
}

// Pull fetches signatures newer than sinceVersion. Transport errors come back
// as *types.NetworkFailure so callers can degrade to their cached set.
func (c *Client) Pull(ctx context.Context, sinceVersion int64) ([]types.Signature, error) {
	endpoint := c.baseURL + "/v1/signatures"
	if sinceVersion > 0 {
		endpoint += "?since=" + url.QueryEscape(strconv.FormatInt(sinceVersion, 10))
	}

	var resp signatureResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"component":       "intel",
		"operation":       "pull",
		"since_version":   sinceVersion,
		"signature_count": len(resp.Signatures),
	}).Debug("Signature delta fetched")
	return resp.Signatures, nil
}

// Push submits scan metadata for community aggregation. Only rule ids,
// verdict, score, and target identity leave the machine; raw source content
// never does. Requires an authenticated client.
func (c *Client) Push(ctx context.Context, meta types.ScanMetadata) error {
	if c.token == "" {
		return fmt.Errorf("push requires an authenticated client")
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/v1/scan-metadata", meta, nil)
}

// Report submits a threat report and returns the record the service created,
// with its id and initial received status.
func (c *Client) Report(ctx context.Context, report types.ThreatReport) (*types.ThreatReport, error) {
	var created types.ThreatReport
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/report", report, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Lookup queries the service for a previously confirmed threat by content
// hash. An unknown hash returns (nil, nil): absence is not an error.
func (c *Client) Lookup(ctx context.Context, hash string) (*types.ThreatEntry, error) {
	endpoint := c.baseURL + "/v1/threat/" + url.PathEscape(hash)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.NetworkFailure{Op: "lookup", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.NetworkFailure{Op: "lookup", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var entry types.ThreatEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("failed to parse threat entry: %w", err)
	}
	return &entry, nil
}

// do runs one JSON request/response exchange. A nil out discards the body.
func (c *Client) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &types.NetworkFailure{Op: method + " " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &types.NetworkFailure{Op: method + " " + endpoint, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
