package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skincheck/internal/domain/model"
)

// requestIDHeader matches the id the service echoes and logs.
const requestIDHeader = "X-Request-ID"

// HTTPClient wraps http.Client with the service base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// do sends one request and returns the status and the fully read body.
func (c *HTTPClient) do(ctx context.Context, method, path, contentType, accept string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s body: %w", path, err)
	}
	return resp.StatusCode, data, nil
}

// getJSON fetches path and decodes a 200 body into v.
func (c *HTTPClient) getJSON(ctx context.Context, path string, v any) (int, error) {
	status, body, err := c.do(ctx, http.MethodGet, path, "", "application/json", nil)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK {
		return status, fmt.Errorf("GET %s: status %d", path, status)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return status, fmt.Errorf("decode %s: %w", path, err)
	}
	return status, nil
}

// postImage posts the raw encoded sample.
func (c *HTTPClient) postImage(ctx context.Context, path string, s Sample) (int, []byte, error) {
	return c.do(ctx, http.MethodPost, path, s.ContentType, "application/json", s.data)
}

// errorBody mirrors the service's JSON error envelope.
type errorBody struct {
	Code    string                      `json:"code"`
	Message string                      `json:"message"`
	Result  *model.ClassificationResult `json:"result,omitempty"`
}

// decodeOutcome reads a /classify answer: a result on 200, the error envelope
// (which may still carry the result shown to the user) otherwise.
func decodeOutcome(status int, body []byte) (model.ClassificationResult, string, error) {
	if status == http.StatusOK {
		var res model.ClassificationResult
		if err := json.Unmarshal(body, &res); err != nil {
			return res, "", fmt.Errorf("decode result: %w", err)
		}
		return res, "", nil
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return model.ClassificationResult{}, "", fmt.Errorf("decode error body (status %d): %w", status, err)
	}
	if eb.Result != nil {
		return *eb.Result, eb.Code, nil
	}
	return model.ClassificationResult{}, eb.Code, nil
}
