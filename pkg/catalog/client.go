package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lcfetch/pkg/errors"
	"lcfetch/pkg/logger"
)

const queriesPath = "/api/queries"

// Client talks to one catalog query service instance
type Client struct {
	name       string
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a client for a single catalog instance
func NewClient(name, baseURL, token string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		name:    name,
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
	}
}

// Name returns the configured instance name
func (c *Client) Name() string {
	return c.name
}

// Query posts a find query and decodes the service's reply. A reply with a
// non-success status or an absent data payload is a query_failed error.
func (c *Client) Query(ctx context.Context, q Query) (*Response, error) {
	var response Response
	if err := c.postJSON(ctx, queriesPath, q, &response); err != nil {
		return nil, err
	}

	if !response.OK() {
		if response.Status != "success" {
			c.logger.WarnWithFields("catalog query rejected", map[string]interface{}{
				"instance": c.name,
				"status":   response.Status,
				"message":  response.Message,
			})
			return nil, &errors.Error{
				Type:    errors.ErrorTypeQueryFailed,
				Message: fmt.Sprintf("instance %s returned status %q: %s", c.name, response.Status, response.Message),
				Code:    http.StatusOK,
			}
		}
		return nil, &errors.Error{
			Type:    errors.ErrorTypeQueryFailed,
			Message: fmt.Sprintf("instance %s returned no data", c.name),
			Code:    http.StatusOK,
		}
	}

	return &response, nil
}

// postJSON performs a POST request with the instance token and decodes the
// JSON response
func (c *Client) postJSON(ctx context.Context, path string, body, target interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &errors.Error{
			Type:    errors.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to encode query: %v", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &errors.Error{
			Type:    errors.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)

	start := time.Now()
	c.logger.DebugWithFields("sending catalog query", map[string]interface{}{
		"instance": c.name,
		"url":      req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("catalog request failed", map[string]interface{}{
			"instance": c.name,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return &errors.Error{
			Type:    errors.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("catalog request completed", map[string]interface{}{
		"instance": c.name,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errors.Error{
			Type:    errors.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if err := json.Unmarshal(raw, target); err != nil {
		preview := string(raw)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse catalog response", map[string]interface{}{
			"instance":     c.name,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return &errors.Error{
			Type:    errors.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
		}
	}

	return nil
}

// checkResponseStatus checks the HTTP response status and returns appropriate errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("catalog authentication error", map[string]interface{}{
			"instance": c.name,
			"status":   resp.StatusCode,
		})
		return &errors.Error{
			Type:    errors.ErrorTypeAuth,
			Message: "authentication required",
			Code:    resp.StatusCode,
		}
	case errors.IsRetryableStatusCode(resp.StatusCode):
		// 5xx and throttling replies; worth another attempt
		c.logger.ErrorWithFields("catalog server error", map[string]interface{}{
			"instance": c.name,
			"status":   resp.StatusCode,
		})
		return &errors.Error{
			Type:    errors.ErrorTypeServerError,
			Message: "server error",
			Code:    resp.StatusCode,
		}
	default:
		return &errors.Error{
			Type:    errors.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
}
