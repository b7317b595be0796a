// Package backend is a typed HTTP client for the RAG backend API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ragnotebook/internal/domain"
	"ragnotebook/internal/logger"
)

// Routes of the backend API.
const (
	RouteUpload          = "/api/upload"
	RouteAsk             = "/api/ask"
	RouteDocuments       = "/api/documents"
	RouteTestVectorStore = "/api/test-milvus"
	RouteHealth          = "/api/health"

	// LLMModelsSuffix is appended to the LLM endpoint for connectivity tests.
	LLMModelsSuffix = "/models"
)

const DefaultTimeout = 120 * time.Second

const logModule = "backend"

// Client talks to the backend. Upload and ask rely on the transport timeout only.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.ILogger
	limiter    *rate.Limiter
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets a logger.
func WithLogger(l logger.ILogger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithRateLimit throttles outgoing requests. Zero disables throttling.
func WithRateLimit(requestsPerSecond int) Option {
	return func(cl *Client) {
		if requestsPerSecond <= 0 {
			cl.limiter = nil
			return
		}
		cl.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// New creates a client rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

type uploadResponse struct {
	Status      string `json:"status"`
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	ChunksCount int    `json:"chunks_count"`
	Message     string `json:"message"`
}

// Upload streams the file as multipart form field "file"; the payload is
// never held in memory as a whole.
func (c *Client) Upload(ctx context.Context, req domain.UploadRequest) (domain.UploadResult, error) {
	const op = "upload document"

	q := url.Values{}
	if req.EmbeddingModel != "" {
		q.Set("embedding_model", req.EmbeddingModel)
	}
	endpoint := c.baseURL + RouteUpload
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	contentType := mw.FormDataContentType()
	written := make(chan error, 1)
	go func() {
		err := writeForm(mw, req)
		pw.CloseWithError(err)
		written <- err
	}()

	var out uploadResponse
	err := c.do(ctx, op, http.MethodPost, endpoint, contentType, pr, &out)
	// Unblocks the writer when the request ended before the body was drained.
	pr.Close()
	if werr := <-written; werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
		return domain.UploadResult{}, fmt.Errorf("%s: read payload: %w", op, werr)
	}
	if err != nil {
		return domain.UploadResult{}, err
	}
	if out.DocumentID == "" {
		return domain.UploadResult{}, fmt.Errorf("%s: response has no document_id", op)
	}
	return domain.UploadResult{DocumentID: out.DocumentID, ChunksCount: out.ChunksCount}, nil
}

func writeForm(mw *multipart.Writer, req domain.UploadRequest) error {
	part, err := mw.CreateFormFile("file", req.FileName)
	if err != nil {
		return err
	}
	if req.Content != nil {
		if _, err := io.Copy(part, req.Content); err != nil {
			return err
		}
	}
	return mw.Close()
}

type askRequest struct {
	Question       string `json:"question"`
	EmbeddingModel string `json:"embedding_model"`
	TopK           int    `json:"top_k"`
}

type askResponse struct {
	Answer        string   `json:"answer"`
	Sources       []string `json:"sources"`
	ContextChunks int      `json:"context_chunks"`
}

// Ask runs a retrieval-augmented query.
func (c *Client) Ask(ctx context.Context, req domain.AskRequest) (domain.AskResponse, error) {
	var out askResponse
	body := askRequest{Question: req.Question, EmbeddingModel: req.EmbeddingModel, TopK: req.TopK}
	if err := c.postJSON(ctx, "ask question", c.baseURL+RouteAsk, body, &out); err != nil {
		return domain.AskResponse{}, err
	}
	sources := out.Sources
	if sources == nil {
		sources = []string{}
	}
	return domain.AskResponse{Answer: out.Answer, Sources: sources, ContextChunks: out.ContextChunks}, nil
}

type documentDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UploadDate string `json:"upload_date"`
	Chunks     int    `json:"chunks"`
	Size       int64  `json:"size"`
}

type listResponse struct {
	Documents []documentDTO `json:"documents"`
}

// ListDocuments returns every document the backend reports.
func (c *Client) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	var out listResponse
	if err := c.do(ctx, "list documents", http.MethodGet, c.baseURL+RouteDocuments, "", nil, &out); err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(out.Documents))
	for _, d := range out.Documents {
		docs = append(docs, domain.Document{
			ID:         d.ID,
			Name:       d.Name,
			SizeBytes:  max(d.Size, 0),
			UploadedAt: parseUploadDate(d.UploadDate),
			ChunkCount: max(d.Chunks, 0),
		})
	}
	return docs, nil
}

// DeleteDocument removes a document and its chunks.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	endpoint := c.baseURL + RouteDocuments + "/" + url.PathEscape(id)
	return c.do(ctx, "delete document", http.MethodDelete, endpoint, "", nil, nil)
}

// Health is the backend's self-reported state.
type Health struct {
	Status                string   `json:"status"`
	VectorStore           string   `json:"milvus"`
	EmbeddingModelsLoaded []string `json:"embedding_models_loaded"`
	Error                 string   `json:"error,omitempty"`
}

// Health fetches the backend health report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, "health", http.MethodGet, c.baseURL+RouteHealth, "", nil, &out)
	return out, err
}

func (c *Client) postJSON(ctx context.Context, op, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}
	return c.do(ctx, op, http.MethodPost, endpoint, "application/json", bytes.NewReader(data), out)
}

// do executes one request. Transport failures become *domain.NetworkError and
// non-2xx statuses become *domain.ServerError.
func (c *Client) do(ctx context.Context, op, method, endpoint, contentType string, body io.Reader, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &domain.NetworkError{Op: op, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug(logModule, "request", map[string]interface{}{"op": op, "method": method, "url": endpoint})
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn(logModule, "request failed", map[string]interface{}{"op": op, "error": err.Error()})
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug(logModule, "response", map[string]interface{}{
		"op":          op,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.ServerError{Op: op, StatusCode: resp.StatusCode, Detail: errorDetail(payload)}
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorDetail extracts {"detail": "..."} bodies and falls back to raw text.
func errorDetail(payload []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}
		return string(body.Detail)
	}
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

var uploadDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseUploadDate(s string) time.Time {
	for _, layout := range uploadDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
