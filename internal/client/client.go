// Package client talks to the grading service's REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	appErr "essaygrade/pkg/errors"
	"essaygrade/pkg/utils/contextkey"
	"essaygrade/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
)

// responseInfo carries response details.
type responseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Client wraps HTTP requests to the grading service.
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// request describes one call.
type request struct {
	method      string
	path        string
	query       url.Values
	contentType string
	body        []byte
}

// do sends a request and returns the raw response. Transport failures come back as
// TransientNetwork errors; HTTP status codes are not interpreted here.
func (c *Client) do(ctx context.Context, req request) (responseInfo, error) {
	var info responseInfo
	c.mu.RLock()
	base, timeout := c.baseURL, c.timeout
	c.mu.RUnlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	target := base + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	var reader io.Reader
	if len(req.body) > 0 {
		reader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, reader)
	if err != nil {
		return info, appErr.Wrapf(err, appErr.InvalidParams, "build request failed: %v", err)
	}
	contentType := req.contentType
	if contentType == "" && len(req.body) > 0 {
		contentType = "application/json"
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(traceIDHeader, idFromContext(ctx, contextkey.TraceID))
	httpReq.Header.Set(requestIDHeader, uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	info.Duration = time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return info, appErr.Wrapf(err, appErr.Timeout, "%s %s timed out", req.method, req.path)
		}
		return info, appErr.Transient(err, req.method+" "+req.path)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, appErr.Transient(err, "read response body")
	}
	info.Body = bodyBytes
	logger.Debug(ctx, "grading api call",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", info.Duration))
	return info, nil
}

// call performs req and decodes a 2xx JSON body into out (when out is non-nil).
func (c *Client) call(ctx context.Context, req request, out interface{}) error {
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if err := classify(resp); err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return appErr.Wrapf(err, appErr.DecodeFailed, "decode %s response failed: %v", req.path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request failed: %w", err)
	}
	return c.call(ctx, request{method: http.MethodPost, path: path, body: body}, out)
}

// classify maps non-2xx responses to the error taxonomy: 5xx, 408 and 429 are transient,
// other 4xx are service rejections carrying the backend's detail verbatim.
func classify(resp responseInfo) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail := errorDetail(resp.Body)
	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		msg := detail
		if msg == "" {
			msg = fmt.Sprintf("service returned HTTP %d", resp.StatusCode)
		}
		return appErr.New(appErr.TransientNetwork).WithMessage(msg).WithDetail("status", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return appErr.Rejection(resp.StatusCode, detail).WithDetail("not_found", true)
	default:
		return appErr.Rejection(resp.StatusCode, detail)
	}
}

// errorDetail extracts {"detail": "..."}; structured details are returned as raw JSON.
func errorDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	if payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}

func idFromContext(ctx context.Context, key interface{}) string {
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v
	}
	return uuid.NewString()
}
