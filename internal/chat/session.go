// Package chat owns the conversation transcript and runs one question at a time.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragnotebook/internal/domain"
	"ragnotebook/internal/logger"
)

const logModule = "chat"

// FallbackAnswer is appended whenever a query fails so every question gets a turn back.
const FallbackAnswer = "Sorry, I couldn't answer that right now. Check that the LLM endpoint and " +
	"the vector store are configured and reachable, then try again."

const DefaultTopK = 5

// DefaultExamples are the preset questions offered for quick-fill.
var DefaultExamples = []string{
	"What is the main topic of these documents?",
	"Summarize the key points.",
	"What conclusions does the author reach?",
	"Which dates or deadlines are mentioned?",
}

// Session is the ChatSession. The transcript is append-only.
type Session struct {
	mu       sync.Mutex
	messages []domain.Message
	pending  bool

	cfg      domain.ConfigSource
	backend  domain.QueryBackend
	logger   logger.ILogger
	topK     int
	examples []string
	now      func() time.Time
	newID    func() string
}

// Option configures a Session.
type Option func(*Session)

// WithTopK sets how many chunks the backend retrieves per question.
func WithTopK(k int) Option {
	return func(s *Session) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithExamples replaces the quick-fill presets.
func WithExamples(examples []string) Option {
	return func(s *Session) { s.examples = append([]string(nil), examples...) }
}

// WithLogger sets a logger.
func WithLogger(l logger.ILogger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates an empty session.
func New(cfg domain.ConfigSource, backend domain.QueryBackend, opts ...Option) *Session {
	s := &Session{
		cfg:      cfg,
		backend:  backend,
		logger:   logger.NewNop(),
		topK:     DefaultTopK,
		examples: append([]string(nil), DefaultExamples...),
		now:      time.Now,
		newID:    newMessageID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit asks question. The user turn is committed before the request is
// issued and is never rolled back; the assistant turn (real or fallback) is
// committed when the request resolves. On failure the fallback message is
// returned together with the error.
func (s *Session) Submit(ctx context.Context, question string) (domain.Message, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return domain.Message{}, domain.ErrEmptyInput
	}
	cfg := s.cfg.Get()
	if strings.TrimSpace(cfg.LLMEndpoint) == "" || strings.TrimSpace(cfg.VectorStoreHost) == "" {
		return domain.Message{}, domain.ErrNotConfigured
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return domain.Message{}, domain.ErrBusy
	}
	s.pending = true
	s.appendLocked(domain.RoleUser, q, nil)
	s.mu.Unlock()
	defer s.release()

	s.logger.Info(logModule, "question submitted", map[string]interface{}{
		"question_len":    len(q),
		"embedding_model": cfg.EmbeddingModel,
		"top_k":           s.topK,
	})

	resp, err := s.backend.Ask(ctx, domain.AskRequest{
		Question:       q,
		EmbeddingModel: cfg.EmbeddingModel,
		TopK:           s.topK,
	})
	if err != nil {
		s.logger.Error(logModule, "query failed", map[string]interface{}{
			"error":   err.Error(),
			"network": domain.IsNetworkError(err),
		})
		return s.append(domain.RoleAssistant, FallbackAnswer, nil), err
	}

	s.logger.Info(logModule, "answer received", map[string]interface{}{
		"sources":        len(resp.Sources),
		"context_chunks": resp.ContextChunks,
	})
	return s.append(domain.RoleAssistant, resp.Answer, resp.Sources), nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
}

func (s *Session) append(role domain.Role, content string, sources []string) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(role, content, sources)
}

func (s *Session) appendLocked(role domain.Role, content string, sources []string) domain.Message {
	msg := domain.Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		Sources:   append([]string{}, sources...),
		Timestamp: s.now(),
	}
	s.messages = append(s.messages, msg)
	return copyMessage(msg)
}

// Messages returns a copy of the transcript in append order.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = copyMessage(m)
	}
	return out
}

// Pending reports whether a question is outstanding.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Examples returns the quick-fill presets.
func (s *Session) Examples() []string {
	return append([]string(nil), s.examples...)
}

// QuickFill returns preset i for the input field. It has no network effect
// and is refused while a question is pending.
func (s *Session) QuickFill(i int) (string, error) {
	if s.Pending() {
		return "", domain.ErrBusy
	}
	if i < 0 || i >= len(s.examples) {
		return "", domain.ErrNoSuchExample
	}
	return s.examples[i], nil
}

// newMessageID returns a time-ordered id so ids sort in creation order.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "msg_" + uuid.New().String()
	}
	return "msg_" + id.String()
}

func copyMessage(m domain.Message) domain.Message {
	m.Sources = append([]string{}, m.Sources...)
	return m
}
