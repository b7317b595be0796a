// Package probe performs bounded connectivity checks against remote endpoints.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ragnotebook/internal/domain"
)

// DefaultTimeout bounds a check when the caller does not configure one.
const DefaultTimeout = 5 * time.Second

// Endpoint describes a single request to issue.
type Endpoint struct {
	Method string
	URL    string
	Body   any
}

// Result is the outcome of a check.
type Result struct {
	OK  bool
	Err error
}

// Prober checks one endpoint at a time.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// New creates a Prober. A zero timeout uses DefaultTimeout.
func New(client *http.Client, timeout time.Duration) *Prober {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{client: client, timeout: timeout}
}

// Check issues the request and maps any 2xx to success. Transport failures,
// timeouts and other statuses are errors. The body is never interpreted.
func (p *Prober) Check(ctx context.Context, ep Endpoint) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var body io.Reader
	if ep.Body != nil {
		data, err := json.Marshal(ep.Body)
		if err != nil {
			return Result{Err: fmt.Errorf("marshal probe body: %w", err)}
		}
		body = bytes.NewReader(data)
	}
	method := ep.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, ep.URL, body)
	if err != nil {
		return Result{Err: fmt.Errorf("create probe request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Err: &domain.NetworkError{Op: "probe " + ep.URL, Err: err}}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Err: &domain.ServerError{Op: "probe " + ep.URL, StatusCode: resp.StatusCode}}
	}
	return Result{OK: true}
}
