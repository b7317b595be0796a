package domain

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Configuration is the operator-editable connection settings for the session.
// Empty fields mean "not configured" and are checked by consumers before acting.
type Configuration struct {
	LLMEndpoint     string
	VectorStoreHost string
	EmbeddingModel  string
}

// ConfigurationPatch is a partial update; nil fields are left unchanged.
type ConfigurationPatch struct {
	LLMEndpoint     *string
	VectorStoreHost *string
	EmbeddingModel  *string
}

// Target names a remote service whose connectivity can be tested.
type Target string

const (
	TargetLLM         Target = "llm"
	TargetVectorStore Target = "vector_store"
)

// ConnectionStatus is the result of the last connectivity test of a target.
type ConnectionStatus int

const (
	StatusIdle ConnectionStatus = iota
	StatusTesting
	StatusSuccess
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusTesting:
		return "testing"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Document is a file that the backend has indexed.
type Document struct {
	ID         string
	Name       string
	SizeBytes  int64
	UploadedAt time.Time
	ChunkCount int
}

// IngestionPhase is the step an upload has reached.
type IngestionPhase int

const (
	PhaseNone IngestionPhase = iota
	PhaseSelected
	PhaseUploading
	PhaseIndexed
	PhaseFailed
)

func (p IngestionPhase) String() string {
	switch p {
	case PhaseSelected:
		return "selected"
	case PhaseUploading:
		return "uploading"
	case PhaseIndexed:
		return "indexed"
	case PhaseFailed:
		return "failed"
	default:
		return "none"
	}
}

// IngestionState tracks the single upload currently being added.
// Progress is a local feedback heuristic, not server-reported progress.
type IngestionState struct {
	Phase    IngestionPhase
	FileName string
	Progress int
	Reason   string
}

// File is a candidate upload. Open is called once per upload attempt.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileFromPath builds a File backed by a path on disk.
func FileFromPath(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	return &File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable turn of the transcript.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Sources   []string
	Timestamp time.Time
}

// UploadRequest carries a file payload and the embedding model used to index it.
type UploadRequest struct {
	FileName       string
	Content        io.Reader
	EmbeddingModel string
}

// UploadResult is the backend's answer to a successful ingestion.
type UploadResult struct {
	DocumentID  string
	ChunksCount int
}

// AskRequest is a retrieval-augmented question.
type AskRequest struct {
	Question       string
	EmbeddingModel string
	TopK           int
}

// AskResponse is the backend's grounded answer.
type AskResponse struct {
	Answer        string
	Sources       []string
	ContextChunks int
}

// DocumentBackend is the set of document operations the registry needs.
type DocumentBackend interface {
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// QueryBackend answers questions against the indexed documents.
type QueryBackend interface {
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
}

// ConfigSource yields the configuration snapshot read at the start of an action.
type ConfigSource interface {
	Get() Configuration
}
