// Package settings holds the session's editable configuration and the
// per-target connectivity status.
package settings

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"ragnotebook/internal/backend"
	"ragnotebook/internal/domain"
	"ragnotebook/internal/logger"
	"ragnotebook/internal/probe"
)

const logModule = "settings"

var errConnectionFailed = errors.New("connection test failed")

// Checker performs a single connectivity check.
type Checker interface {
	Check(ctx context.Context, ep probe.Endpoint) probe.Result
}

// Store is the ConfigurationStore. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	cfg      domain.Configuration
	statuses map[domain.Target]domain.ConnectionStatus

	apiBaseURL string
	checker    Checker
	logger     logger.ILogger
}

// New creates a store seeded with initial. apiBaseURL is the backend root used
// for the vector store test.
func New(initial domain.Configuration, apiBaseURL string, checker Checker, log logger.ILogger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{
		cfg: initial,
		statuses: map[domain.Target]domain.ConnectionStatus{
			domain.TargetLLM:         domain.StatusIdle,
			domain.TargetVectorStore: domain.StatusIdle,
		},
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		checker:    checker,
		logger:     log,
	}
}

// Get returns the current configuration snapshot.
func (s *Store) Get() domain.Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Update merges the set fields of patch. Contents are not validated.
func (s *Store) Update(patch domain.ConfigurationPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.LLMEndpoint != nil {
		s.cfg.LLMEndpoint = *patch.LLMEndpoint
	}
	if patch.VectorStoreHost != nil {
		s.cfg.VectorStoreHost = *patch.VectorStoreHost
	}
	if patch.EmbeddingModel != nil {
		s.cfg.EmbeddingModel = *patch.EmbeddingModel
	}
}

// Status returns the last known status of target.
func (s *Store) Status(target domain.Target) domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[target]
}

// Statuses returns a copy of every target's status.
func (s *Store) Statuses() map[domain.Target]domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Target]domain.ConnectionStatus, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out
}

// TestLLM checks <llm endpoint>/models.
func (s *Store) TestLLM(ctx context.Context) error {
	endpoint := strings.TrimSpace(s.Get().LLMEndpoint)
	if endpoint == "" {
		return domain.ErrNotConfigured
	}
	return s.test(ctx, domain.TargetLLM, probe.Endpoint{
		Method: http.MethodGet,
		URL:    strings.TrimRight(endpoint, "/") + backend.LLMModelsSuffix,
	})
}

// TestVectorStore asks the backend to reach the configured vector store host.
func (s *Store) TestVectorStore(ctx context.Context) error {
	host := strings.TrimSpace(s.Get().VectorStoreHost)
	if host == "" {
		return domain.ErrNotConfigured
	}
	// The backend's request model reads milvus_host.
	return s.test(ctx, domain.TargetVectorStore, probe.Endpoint{
		Method: http.MethodPost,
		URL:    s.apiBaseURL + backend.RouteTestVectorStore,
		Body:   map[string]string{"vector_store_host": host, "milvus_host": host},
	})
}

func (s *Store) test(ctx context.Context, target domain.Target, ep probe.Endpoint) error {
	s.setStatus(target, domain.StatusTesting)

	res := s.checker.Check(ctx, ep)
	if !res.OK {
		err := res.Err
		if err == nil {
			err = errConnectionFailed
		}
		s.setStatus(target, domain.StatusError)
		s.logger.Warn(logModule, "connection test failed", map[string]interface{}{
			"target": string(target),
			"url":    ep.URL,
			"error":  err.Error(),
		})
		return err
	}

	s.setStatus(target, domain.StatusSuccess)
	s.logger.Info(logModule, "connection test succeeded", map[string]interface{}{
		"target": string(target),
		"url":    ep.URL,
	})
	return nil
}

func (s *Store) setStatus(target domain.Target, status domain.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[target] = status
}
