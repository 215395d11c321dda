package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jvconnected/camera-engine/internal/logging"
)

// ErrCapabilityAbsent is returned by Client.GetGroup when the camera has
// previously answered a group's poll path with 404; the caller should
// treat the group as permanently unsupported for this session (spec.md
// §6, §7 Capability errors).
var ErrCapabilityAbsent = fmt.Errorf("device: capability not supported by camera")

// Client is a minimal JSON-over-HTTP client for one camera's control
// surface, basic-auth authenticated, with a per-session capability cache
// so a 404 on a parameter group is only ever seen once.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	logger     *logging.Logger

	absent map[string]bool
}

// NewClient builds a Client against baseURL (e.g. "http://192.168.1.50")
// using basic-auth credentials and the given per-request timeout.
func NewClient(baseURL, username, password string, timeout time.Duration, logger *logging.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		username:   username,
		password:   password,
		logger:     logger,
		absent:     make(map[string]bool),
	}
}

// CapabilityAbsent reports whether path has previously 404'd on this
// client, without issuing a request.
func (c *Client) CapabilityAbsent(path string) bool {
	return c.absent[path]
}

// GetGroup issues the poll GET for a parameter group and decodes the JSON
// body into a wire field map. It returns ErrCapabilityAbsent, without
// hitting the network, once the path has 404'd before.
func (c *Client) GetGroup(ctx context.Context, path string) (map[string]interface{}, error) {
	if c.absent[path] {
		return nil, ErrCapabilityAbsent
	}

	body, status, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		c.absent[path] = true
		c.logger.WithField("path", path).Info("camera does not support parameter group, disabling for session")
		return nil, ErrCapabilityAbsent
	}
	if status >= 400 {
		return nil, &HTTPError{Path: path, StatusCode: status}
	}

	var wire map[string]interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("device: decoding response from %s: %w", path, err)
		}
	}
	return wire, nil
}

// Do issues a set-command request (always a GET against this camera
// family's control API; see paramspec.SetRequest) and reports whether it
// succeeded, along with the response body for response-as-poll routing
// (spec.md §4.D: "the response is routed as if it were a poll").
func (c *Client) Do(ctx context.Context, method, path string) (map[string]interface{}, error) {
	body, status, err := c.do(ctx, method, path)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrCapabilityAbsent
	}
	if status >= 400 {
		return nil, &HTTPError{Path: path, StatusCode: status}
	}
	var wire map[string]interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("device: decoding response from %s: %w", path, err)
		}
	}
	return wire, nil
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("device: building request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	c.logger.WithFields(logging.Fields{
		"method": method,
		"path":   path,
	}).Debug("camera request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, &TransientError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &TransientError{Path: path, Err: err}
	}

	c.logger.WithFields(logging.Fields{
		"path":   path,
		"status": resp.StatusCode,
	}).Debug("camera response")

	return bodyBytes, resp.StatusCode, nil
}

// HTTPError wraps a non-2xx, non-404 camera response.
type HTTPError struct {
	Path       string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("device: %s returned status %d", e.Path, e.StatusCode)
}

// TransientError wraps a connect/timeout failure that should drive the
// session into the sleeping state with backoff (spec.md §7).
type TransientError struct {
	Path string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("device: transient failure on %s: %v", e.Path, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsAuthFailure reports whether status represents a fatal authentication
// failure (sticky per spec.md §8 scenario 2).
func IsAuthFailure(statusCode int) bool {
	return statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden
}
