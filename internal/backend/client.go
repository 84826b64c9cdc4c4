// Package backend is the HTTP client for the external analysis service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cermatapp/cermat/internal/models"
)

// APIError is a logical failure: the backend answered with a well-formed
// JSON body carrying a failure reason. Transport problems (connection
// refused, timeouts, non-JSON bodies) are returned as plain wrapped errors
// instead.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// Client calls the external analysis endpoints. All methods issue exactly one
// request; nothing is retried.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks the backend's health endpoint.
func (c *Client) Health(ctx context.Context) (*models.HealthStatus, error) {
	var out models.HealthStatus
	if err := c.get(ctx, "/api/system/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Info fetches the backend's system info.
func (c *Client) Info(ctx context.Context) (*models.SystemInfo, error) {
	var out models.SystemInfo
	if err := c.get(ctx, "/api/system/info", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeModel submits text to the ML analysis endpoint.
func (c *Client) AnalyzeModel(ctx context.Context, text string) (*models.ModelAnalysis, error) {
	var out models.ModelAnalysis
	if err := c.postJSON(ctx, "/api/analyze/model", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeRule submits text to the rule analysis endpoint.
func (c *Client) AnalyzeRule(ctx context.Context, text string) (*models.RuleAnalysis, error) {
	var out models.RuleAnalysis
	if err := c.postJSON(ctx, "/api/analyze/rule", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadDocument sends a document to the extraction endpoint as a multipart
// request with field "file". Size validation is the caller's responsibility.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader) (*models.ExtractedDocument, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload/document", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out models.ExtractedDocument
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes the request and decodes the response. Non-2xx responses with a
// parseable {"error": ...} body become an *APIError; everything else is a
// transport error.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Error string `json:"error"`
		}
		if jsonErr := json.Unmarshal(raw, &failure); jsonErr == nil && failure.Error != "" {
			c.logger.Debug("backend reported failure",
				zap.String("path", req.URL.Path),
				zap.Int("status", resp.StatusCode),
				zap.String("error", failure.Error))
			return &APIError{StatusCode: resp.StatusCode, Message: failure.Error}
		}
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
