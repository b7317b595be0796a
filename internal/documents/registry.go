// Package documents tracks indexed documents and drives the ingestion of the
// file currently being added.
package documents

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"ragnotebook/internal/domain"
	"ragnotebook/internal/logger"
)

const logModule = "documents"

// Progress feedback while an upload is outstanding. It is a local heuristic:
// the backend reports no progress, so the bar creeps toward the ceiling and
// only jumps to 100 when the response arrives.
const (
	DefaultTickInterval = 200 * time.Millisecond
	DefaultTickStep     = 10
	DefaultTickCeiling  = 90
)

// Registry is the DocumentRegistry. It is safe for concurrent use; network
// calls are made without holding the lock and each one finishes with a single
// replace or append of the collection.
type Registry struct {
	mu         sync.Mutex
	docs       []domain.Document
	selected   *domain.File
	state      domain.IngestionState
	generation uint64
	inFlight   bool
	stopTicker context.CancelFunc

	cfg     domain.ConfigSource
	backend domain.DocumentBackend
	logger  logger.ILogger

	tickInterval time.Duration
	tickStep     int
	tickCeiling  int
	now          func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithProgressTicker overrides the progress feedback cadence.
func WithProgressTicker(interval time.Duration, step, ceiling int) Option {
	return func(r *Registry) {
		if interval > 0 {
			r.tickInterval = interval
		}
		r.tickStep = step
		r.tickCeiling = min(ceiling, 99)
	}
}

// WithClock overrides the time source used for UploadedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets a logger.
func WithLogger(l logger.ILogger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry.
func New(cfg domain.ConfigSource, backend domain.DocumentBackend, opts ...Option) *Registry {
	r := &Registry{
		cfg:          cfg,
		backend:      backend,
		logger:       logger.NewNop(),
		tickInterval: DefaultTickInterval,
		tickStep:     DefaultTickStep,
		tickCeiling:  DefaultTickCeiling,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Documents returns a copy of the collection.
func (r *Registry) Documents() []domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Document(nil), r.docs...)
}

// State returns the ingestion state of the current selection.
func (r *Registry) State() domain.IngestionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SelectFile records the candidate upload, superseding any previous selection.
// A running progress ticker is stopped; an outstanding request is not aborted.
// A nil file clears the selection.
func (r *Registry) SelectFile(f *domain.File) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopTickerLocked()
	r.generation++
	r.selected = f
	if f == nil {
		r.state = domain.IngestionState{}
		return
	}
	r.state = domain.IngestionState{Phase: domain.PhaseSelected, FileName: f.Name}
}

// Upload sends the selected file to the backend with the configured embedding
// model. Preconditions are checked before any network call.
func (r *Registry) Upload(ctx context.Context) (domain.Document, error) {
	cfg := r.cfg.Get()

	r.mu.Lock()
	if strings.TrimSpace(cfg.VectorStoreHost) == "" {
		r.mu.Unlock()
		return domain.Document{}, domain.ErrNotConfigured
	}
	if r.selected == nil {
		r.mu.Unlock()
		return domain.Document{}, domain.ErrNoFileSelected
	}
	if r.inFlight {
		r.mu.Unlock()
		return domain.Document{}, domain.ErrUploadInProgress
	}
	file := r.selected
	gen := r.generation
	r.inFlight = true
	r.state = domain.IngestionState{Phase: domain.PhaseUploading, FileName: file.Name}
	tickCtx, cancel := context.WithCancel(context.Background())
	r.stopTicker = cancel
	go r.runTicker(tickCtx, gen)
	r.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			r.finishFailed(gen, file, fmt.Errorf("upload panicked: %v", p))
			panic(p)
		}
	}()

	r.logger.Info(logModule, "upload started", map[string]interface{}{
		"file":            file.Name,
		"size":            file.Size,
		"embedding_model": cfg.EmbeddingModel,
	})

	res, err := r.send(ctx, file, cfg.EmbeddingModel)
	if err != nil {
		r.finishFailed(gen, file, err)
		return domain.Document{}, err
	}
	return r.finishIndexed(gen, file, res), nil
}

func (r *Registry) send(ctx context.Context, file *domain.File, model string) (domain.UploadResult, error) {
	var content io.Reader
	if file.Open != nil {
		rc, err := file.Open()
		if err != nil {
			return domain.UploadResult{}, fmt.Errorf("open %s: %w", file.Name, err)
		}
		defer rc.Close()
		content = rc
	}
	return r.backend.Upload(ctx, domain.UploadRequest{
		FileName:       file.Name,
		Content:        content,
		EmbeddingModel: model,
	})
}

// finishIndexed appends the new document. The ingestion state only moves to
// indexed if no newer selection superseded this upload.
func (r *Registry) finishIndexed(gen uint64, file *domain.File, res domain.UploadResult) domain.Document {
	doc := domain.Document{
		ID:         res.DocumentID,
		Name:       file.Name,
		SizeBytes:  max(file.Size, 0),
		UploadedAt: r.now(),
		ChunkCount: max(res.ChunksCount, 0),
	}

	r.mu.Lock()
	next := make([]domain.Document, 0, len(r.docs)+1)
	next = append(next, r.docs...)
	r.docs = append(next, doc)
	r.inFlight = false
	if gen == r.generation {
		r.stopTickerLocked()
		r.selected = nil
		r.state = domain.IngestionState{Phase: domain.PhaseIndexed, FileName: file.Name, Progress: 100}
	}
	r.mu.Unlock()

	r.logger.Info(logModule, "document indexed", map[string]interface{}{
		"document_id": doc.ID,
		"file":        doc.Name,
		"chunks":      doc.ChunkCount,
	})
	return doc
}

func (r *Registry) finishFailed(gen uint64, file *domain.File, err error) {
	r.mu.Lock()
	r.inFlight = false
	if gen == r.generation {
		r.stopTickerLocked()
		r.state = domain.IngestionState{
			Phase:    domain.PhaseFailed,
			FileName: file.Name,
			Progress: r.state.Progress,
			Reason:   err.Error(),
		}
	}
	r.mu.Unlock()

	r.logger.Error(logModule, "upload failed", map[string]interface{}{
		"file":  file.Name,
		"error": err.Error(),
	})
}

func (r *Registry) runTicker(ctx context.Context, gen uint64) {
	t := time.NewTicker(r.tickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.mu.Lock()
			// cancel is always called under mu, so checking ctx here is race free.
			if ctx.Err() == nil && gen == r.generation && r.state.Phase == domain.PhaseUploading {
				r.state.Progress = min(r.state.Progress+r.tickStep, r.tickCeiling)
			}
			r.mu.Unlock()
		}
	}
}

func (r *Registry) stopTickerLocked() {
	if r.stopTicker != nil {
		r.stopTicker()
		r.stopTicker = nil
	}
}

// Remove deletes a document on the backend and then drops it locally.
// Removing an id that is not present locally is not an error.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.backend.DeleteDocument(ctx, id); err != nil {
		r.logger.Error(logModule, "delete failed", map[string]interface{}{"document_id": id, "error": err.Error()})
		return err
	}

	r.mu.Lock()
	next := make([]domain.Document, 0, len(r.docs))
	for _, d := range r.docs {
		if d.ID != id {
			next = append(next, d)
		}
	}
	r.docs = next
	r.mu.Unlock()

	r.logger.Info(logModule, "document deleted", map[string]interface{}{"document_id": id})
	return nil
}

// Refresh replaces the collection with the backend's list. On failure the
// current collection is kept.
func (r *Registry) Refresh(ctx context.Context) error {
	docs, err := r.backend.ListDocuments(ctx)
	if err != nil {
		r.logger.Error(logModule, "refresh failed", map[string]interface{}{"error": err.Error()})
		return err
	}

	r.mu.Lock()
	r.docs = append([]domain.Document(nil), docs...)
	r.mu.Unlock()

	r.logger.Debug(logModule, "documents refreshed", map[string]interface{}{"count": len(docs)})
	return nil
}

// Filter returns the documents whose name contains term, ignoring case,
// in collection order.
func (r *Registry) Filter(term string) []domain.Document {
	docs := r.Documents()
	needle := strings.ToLower(term)
	if needle == "" {
		return docs
	}
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if strings.Contains(strings.ToLower(d.Name), needle) {
			out = append(out, d)
		}
	}
	return out
}
