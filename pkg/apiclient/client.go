package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/arnavsurve/sheetflow/pkg/types"
	"github.com/sony/gobreaker"
)

const (
	DefaultTimeout   = 120 * time.Second
	userAgent        = "Sheetflow-Http-Client/1.0"
	apiKeyHeader     = "X-API-Key"
	maxPreviewLength = 256
)

type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     types.Logger
	// BreakerFailures is the number of consecutive failures that opens the circuit. Zero means 5.
	BreakerFailures uint32
	// BreakerCooldown is how long the circuit stays open. Zero means 30s.
	BreakerCooldown time.Duration
}

// Client talks to the remote spreadsheet processing API. It implements types.Processor for steps and
// downloads result files for the executor.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     types.Logger
	breaker    *gobreaker.CircuitBreaker
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("processing API base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing processing API base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("processing API base URL %q must be http or https", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}

	c := &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "processing-api",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	return c, nil
}

// isBreakerSuccess keeps client errors and cancellations from counting against the API's health.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Temporary()
	}
	return false
}

// Submit uploads the request's file with its form fields and decodes the JSON answer.
func (c *Client) Submit(ctx context.Context, req *types.OperationRequest) (*types.OperationResponse, error) {
	if req.File == nil {
		return nil, fmt.Errorf("no file to submit to %s", req.Endpoint)
	}
	endpoint, err := c.resolve(req.Endpoint)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return nil, fmt.Errorf("encoding multipart request: %w", err)
	}

	c.logger.Info().
		Str("method", http.MethodPost).
		Str("url", endpoint).
		Interface("fields", req.Fields).
		Msg("Making HTTP request")

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, endpoint, body, contentType)
	})
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	return res.(*types.OperationResponse), nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte, contentType string) (*types.OperationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	c.setCommonHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	c.logger.Info().Int("status_code", resp.StatusCode).Msg("Received HTTP response")
	c.logger.Debug().Str("body_preview", preview(respBody)).Msg("Response body")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, respBody)
	}

	var decoded map[string]any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out := &types.OperationResponse{
		StatusCode: resp.StatusCode,
		Body:       decoded,
	}
	if raw, ok := decoded["download_url"].(string); ok && raw != "" {
		resolved, err := c.resolve(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: bad download_url %q: %v", ErrMalformedResponse, raw, err)
		}
		out.DownloadURL = resolved
	}
	return out, nil
}

// Download fetches a result file produced by a previous operation.
func (c *Client) Download(ctx context.Context, rawURL string) (*types.File, error) {
	target, err := c.resolve(rawURL)
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("url", target).Msg("Downloading step output")

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, target)
	})
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	return res.(*types.File), nil
}

func (c *Client) get(ctx context.Context, target string) (*types.File, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	c.setCommonHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("downloading %q: %w", target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading download body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, data)
	}

	file := types.NewFile(downloadName(resp, target), data)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		file.ContentType = ct
	}

	c.logger.Debug().Str("file", file.Name).Int("size_bytes", file.Size()).Msg("Downloaded step output")
	return file, nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
}

// resolve turns an endpoint path or a relative download_url into an absolute URL on the API host.
func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing URL %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return c.baseURL.ResolveReference(&url.URL{
		Path:     strings.TrimLeft(u.Path, "/"),
		RawQuery: u.RawQuery,
	}).String(), nil
}

func wrapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func encodeMultipart(req *types.OperationRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(req.Fields))
	for k := range req.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, req.Fields[k]); err != nil {
			return nil, "", err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": req.File.Name,
	}))
	contentType := req.File.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.File.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		apiErr.Message = strings.TrimSpace(preview(body))
		return apiErr
	}
	apiErr.Body = decoded

	if m, ok := decoded.(map[string]any); ok {
		for _, key := range []string{"detail", "error", "message"} {
			v, ok := m[key]
			if !ok {
				continue
			}
			if s, ok := v.(string); ok {
				apiErr.Message = s
			} else {
				encoded, _ := json.Marshal(v)
				apiErr.Message = string(encoded)
			}
			break
		}
	}
	return apiErr
}

func downloadName(resp *http.Response, target string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	if u, err := url.Parse(target); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	return "download"
}

func preview(b []byte) string {
	s := string(b)
	if len(s) > maxPreviewLength {
		return s[:maxPreviewLength] + "..."
	}
	return s
}
