// Package veo talks to a long-running-operation video generation API.
package veo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/videogen/internal/poller"
)

const (
	// DefaultBaseURL is the public Gemini API endpoint
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	apiKeyHeader = "x-goog-api-key"

	// maxErrorBody caps how much of a failed response is kept for error reporting
	maxErrorBody = 64 << 10
)

// Options controls how the client is configured
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements poller.OperationClient over HTTP
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a client. A nil HTTP client is replaced by one with a
// per-call timeout; the long wait happens between calls, not inside them.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      strings.TrimPrefix(opts.Model, "models/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// StartOperation posts the prompt to predictLongRunning and returns the operation name
func (c *Client) StartOperation(ctx context.Context, req poller.Request) (string, error) {
	body, err := json.Marshal(predictRequest{
		Instances: []instance{{Prompt: req.Prompt}},
		Parameters: parameters{
			AspectRatio:    req.AspectRatio,
			NegativePrompt: req.NegativePrompt,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal predict request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, c.model)
	var op operationResponse
	if err := c.doJSON(ctx, "start", http.MethodPost, endpoint, body, &op); err != nil {
		return "", err
	}

	c.logger.Debug("Vendor accepted operation",
		slog.String("operation_id", op.Name),
		slog.String("model", c.model),
	)

	return op.Name, nil
}

// GetOperation checks the status of a running operation
func (c *Client) GetOperation(ctx context.Context, name string) (*poller.Operation, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(name, "/")

	var op operationResponse
	if err := c.doJSON(ctx, "status check", http.MethodGet, endpoint, nil, &op); err != nil {
		return nil, err
	}

	result := &poller.Operation{
		Name:     op.Name,
		Done:     op.Done,
		VideoURI: op.Response.firstVideoURI(),
	}
	if op.Error != nil {
		result.Error = &poller.OperationError{
			Code:    op.Error.Code,
			Status:  op.Error.Status,
			Message: op.Error.Message,
		}
	}

	return result, nil
}

// Download fetches the finished media. The api key is attached only when the
// media is served from the configured vendor host.
func (c *Client) Download(ctx context.Context, uri string) (*poller.Artifact, error) {
	target, err := url.Parse(uri)
	if err != nil || target.Host == "" {
		return nil, &poller.ProtocolError{Reason: fmt.Sprintf("artifact reference %q is not an absolute URL", uri)}
	}

	resp, err := c.send(ctx, "artifact fetch", http.MethodGet, uri, nil, c.isVendorHost(target))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, vendorError("artifact fetch", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	return &poller.Artifact{Data: data, ContentType: contentType}, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	resp, err := c.send(ctx, op, method, endpoint, body, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return vendorError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &poller.ProtocolError{Reason: fmt.Sprintf("cannot decode %s response: %v", op, err)}
	}

	return nil
}

// send performs one call. A failure to get any response while ctx is still
// live is a poller.TransportError; otherwise the caller's context error is kept.
func (c *Client) send(ctx context.Context, op, method, endpoint string, body []byte, withKey bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	if withKey {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("vendor %s abandoned: %w", op, err)
		}
		return nil, &poller.TransportError{Op: op, Err: err}
	}

	return resp, nil
}

func (c *Client) isVendorHost(target *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(target.Scheme, base.Scheme) && strings.EqualFold(target.Host, base.Host)
}

func vendorError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &poller.VendorError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(data)),
	}
}

var _ poller.OperationClient = (*Client)(nil)
