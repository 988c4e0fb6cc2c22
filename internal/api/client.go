// Package api is the HTTP wire layer for the Filen gateway and its
// storage nodes. It owns authentication headers, retries, and the
// status/data response envelope; everything above it works with decoded
// structs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

// RequestTimeout bounds every individual API call.
const RequestTimeout = 30 * time.Second

// Client talks to the gateway and the ingest/egest storage hosts.
// Transient failures (5xx, network errors) are retried three times with
// exponential backoff; 4xx responses are returned immediately.
type Client struct {
	gatewayURL string
	ingestURL  string
	egestURL   string
	apiKey     string
	http       *http.Client
	log        *logging.Logger
}

// NewClient creates a wire client from the loaded settings. The API key
// may be empty for the pre-login endpoints.
func NewClient(settings *config.Settings, apiKey string, log *logging.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 4 * time.Second
	rc.HTTPClient.Timeout = RequestTimeout
	rc.Logger = nil

	return &Client{
		gatewayURL: settings.GatewayURL,
		ingestURL:  settings.IngestURL,
		egestURL:   settings.EgestURL,
		apiKey:     apiKey,
		http:       rc.StandardClient(),
		log:        log,
	}
}

// SetAPIKey installs the session token after login.
func (c *Client) SetAPIKey(apiKey string) {
	c.apiKey = apiKey
}

// envelope is the gateway's uniform response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// request performs a JSON call against the gateway and decodes the data
// field into out (which may be nil when no payload is expected).
func (c *Client) request(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.gatewayURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.Debug().Str("method", method).Str("path", path).Msg("api request")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, URL: c.gatewayURL + path}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	if !env.Status {
		return &APIError{Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode data from %s: %w", path, err)
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	return c.request(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.request(ctx, http.MethodGet, path, nil, out)
}

// UploadChunkResult reports where a stored chunk landed.
type UploadChunkResult struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`
}

// UploadChunk sends one encrypted chunk to the ingest host. The hash
// parameter is the SHA-512 of the encrypted chunk bytes.
func (c *Client) UploadChunk(ctx context.Context, fileUUID string, index int, parent, uploadKey, hash string, chunk []byte) (*UploadChunkResult, error) {
	q := url.Values{}
	q.Set("uuid", fileUUID)
	q.Set("index", fmt.Sprintf("%d", index))
	q.Set("parent", parent)
	q.Set("uploadKey", uploadKey)
	q.Set("hash", hash)
	endpoint := c.ingestURL + "/v3/upload?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(chunk))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chunk upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if !env.Status {
		return nil, &APIError{Code: env.Code, Message: env.Message}
	}

	var result UploadChunkResult
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &result); err != nil {
			return nil, fmt.Errorf("failed to decode upload data: %w", err)
		}
	}
	return &result, nil
}

// DownloadChunk fetches one encrypted chunk from the egest host.
func (c *Client) DownloadChunk(ctx context.Context, region, bucket, fileUUID string, index int) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/%s/%d", c.egestURL, region, bucket, fileUUID, index)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chunk download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk body: %w", err)
	}
	return data, nil
}
