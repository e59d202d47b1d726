package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	opPrepare = "prepare"
	opRun     = "run"

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20
)

var errMalformedBody = errors.New("body is not valid JSON")

// HTTPClient implements Backend over HTTP/JSON.
type HTTPClient struct {
	logger      *zap.Logger
	httpClient  *http.Client
	baseURL     string
	preparePath string
	runPath     string
	timeout     time.Duration
}

// HTTPClientOption defines a functional option for HTTPClient
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// WithPaths overrides the prepare and run endpoint paths.
func WithPaths(preparePath, runPath string) HTTPClientOption {
	return func(c *HTTPClient) {
		c.preparePath = preparePath
		c.runPath = runPath
	}
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(timeout time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		c.timeout = timeout
	}
}

// NewHTTPClient creates a client for the backend rooted at baseURL.
func NewHTTPClient(logger *zap.Logger, baseURL string, opts ...HTTPClientOption) *HTTPClient {
	client := &HTTPClient{
		logger:      logger,
		httpClient:  &http.Client{},
		baseURL:     strings.TrimRight(baseURL, "/"),
		preparePath: DefaultPreparePath,
		runPath:     DefaultRunPath,
		timeout:     DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// fields holds the top-level members of a JSON object body. Members are
// read one at a time so that an unexpected type in one of them does not
// hide the others.
type fields map[string]json.RawMessage

// str returns the member as a string, or "" when it is missing or not a
// JSON string.
func (f fields) str(key string) string {
	var s string
	if err := json.Unmarshal(f[key], &s); err != nil {
		return ""
	}
	return s
}

// Prepare asks the backend to build the jail at req.JailPath.
func (c *HTTPClient) Prepare(ctx context.Context, req PrepareRequest) (PrepareOutcome, error) {
	resp, body, err := c.post(ctx, opPrepare, c.preparePath, req)
	if err != nil {
		return nil, err
	}

	if resp.str("status") != StatusOK {
		return Rejected{Detail: detailOrBody(resp["detail"], body)}, nil
	}

	// rc, stdout and stderr are informational; a malformed one is dropped.
	var prepared Prepared
	_ = json.Unmarshal(resp["rc"], &prepared.RC)
	prepared.Stdout = resp.str("stdout")
	prepared.Stderr = resp.str("stderr")
	return prepared, nil
}

// Run asks the backend to start req.Command.
func (c *HTTPClient) Run(ctx context.Context, req RunRequest) (RunOutcome, error) {
	resp, body, err := c.post(ctx, opRun, c.runPath, req)
	if err != nil {
		return nil, err
	}

	switch resp.str("status") {
	case StatusNeedSudo:
		if sudo := resp.str("sudo_command"); sudo != "" {
			return NeedsPrivilege{SudoCommand: sudo}, nil
		}
	case StatusOK:
		if runID := decodeRunID(resp["runId"]); runID != "" {
			return Started{RunID: runID}, nil
		}
	}

	// Anything else is surfaced verbatim.
	return Rejected{Detail: compactJSON(body)}, nil
}

// post sends payload and returns the members of the response body. A 2xx
// body that is valid JSON but not an object yields nil fields and no error.
func (c *HTTPClient) post(ctx context.Context, op, path string, payload any) (fields, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, &TransportError{Op: op, Detail: err.Error(), Err: err}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	url := c.baseURL + path
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, nil, &TransportError{Op: op, Detail: err.Error(), Err: err}
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	c.logger.Debug("backend request", zap.String("op", op), zap.String("url", url))

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, nil, &TransportError{Op: op, Detail: err.Error(), Err: err}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, &TransportError{Op: op, StatusCode: response.StatusCode, Detail: err.Error(), Err: err}
	}

	var resp fields
	valid := json.Valid(body)
	if valid {
		// Non-object JSON leaves resp nil.
		_ = json.Unmarshal(body, &resp)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		detail := strings.TrimSpace(string(body))
		if valid {
			detail = detailOrBody(resp["detail"], body)
		}
		if detail == "" {
			detail = response.Status
		}
		return nil, nil, &TransportError{Op: op, StatusCode: response.StatusCode, Detail: detail}
	}

	if !valid {
		err := fmt.Errorf("decoding %s response: %w", op, errMalformedBody)
		return nil, nil, &TransportError{Op: op, StatusCode: response.StatusCode, Detail: err.Error(), Err: err}
	}

	c.logger.Debug("backend response",
		zap.String("op", op),
		zap.Int("http_status", response.StatusCode),
		zap.String("status", resp.str("status")))

	return resp, body, nil
}

// detailOrBody prefers the body's detail field and falls back to the
// compacted body. A string detail is unquoted; any other JSON value is kept
// as JSON text.
func detailOrBody(detail json.RawMessage, body []byte) string {
	if len(detail) > 0 && string(detail) != "null" {
		var s string
		if err := json.Unmarshal(detail, &s); err == nil {
			if s != "" {
				return s
			}
		} else {
			return compactJSON(detail)
		}
	}
	return compactJSON(body)
}

// decodeRunID accepts a JSON string or number.
func decodeRunID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func compactJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
