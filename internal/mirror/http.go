package mirror

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
	"time"
)

// DefaultTimeout bounds every remote call when none is configured.
const DefaultTimeout = 10 * time.Second

// HTTPRemote implements Remote against the mirror document API.
type HTTPRemote struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPRemote creates a remote for baseURL. A non-positive timeout uses
// DefaultTimeout.
func NewHTTPRemote(baseURL, apiKey string, timeout time.Duration) *HTTPRemote {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping checks the remote health endpoint.
func (r *HTTPRemote) Ping(ctx context.Context) error {
	return r.do(ctx, http.MethodGet, "/api/v1/health", nil, "ping")
}

// Put stores doc under collection/id, replacing any previous version.
func (r *HTTPRemote) Put(ctx context.Context, collection, id string, doc json.RawMessage) error {
	if len(doc) == 0 {
		doc = json.RawMessage("{}")
	}
	return r.do(ctx, http.MethodPut, documentPath(collection, id), doc, "put "+collection+"/"+id)
}

// Delete removes collection/id. Deleting a missing document succeeds.
func (r *HTTPRemote) Delete(ctx context.Context, collection, id string) error {
	err := r.do(ctx, http.MethodDelete, documentPath(collection, id), nil, "delete "+collection+"/"+id)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil
	}
	return err
}

func documentPath(collection, id string) string {
	return "/api/v1/collections/" + url.PathEscape(collection) + "/documents/" + url.PathEscape(id)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("status %d", e.code)
	}
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// do sends an authenticated request and classifies the outcome.
func (r *HTTPRemote) do(ctx context.Context, method, path string, body []byte, op string) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: %s: build request: %w", ErrRemoteRejected, op, err)
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRemoteUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	se := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s: %w", ErrRemoteUnavailable, op, se)
	}
	return fmt.Errorf("%w: %s: %w", ErrRemoteRejected, op, se)
}
