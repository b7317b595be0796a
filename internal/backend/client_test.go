package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragnotebook/internal/domain"
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

var errDiskGone = errors.New("disk gone")

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errDiskGone }

func TestUpload_SendsMultipartAndModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, RouteUpload, r.URL.Path)
		assert.Equal(t, "bge-small", r.URL.Query().Get("embedding_model"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.4 quarterly numbers", string(data))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       "success",
			"document_id":  "d1",
			"filename":     "report.pdf",
			"chunks_count": 12,
		})
	}))
	defer srv.Close()

	res, err := New(srv.URL).Upload(context.Background(), domain.UploadRequest{
		FileName:       "report.pdf",
		Content:        strings.NewReader("%PDF-1.4 quarterly numbers"),
		EmbeddingModel: "bge-small",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.UploadResult{DocumentID: "d1", ChunksCount: 12}, res)
}

func TestUpload_StreamsLargePayload(t *testing.T) {
	const size = 8 << 20
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, int64(-1), r.ContentLength, "body is streamed without a known length")

		mr, err := r.MultipartReader()
		require.NoError(t, err)
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "big.pdf", part.FileName())
		n, err := io.Copy(io.Discard, part)
		require.NoError(t, err)
		assert.Equal(t, int64(size), n)

		_ = json.NewEncoder(w).Encode(map[string]any{"document_id": "big", "chunks_count": 900})
	}))
	defer srv.Close()

	res, err := New(srv.URL).Upload(context.Background(), domain.UploadRequest{
		FileName: "big.pdf",
		Content:  io.LimitReader(zeroReader{}, size),
	})
	require.NoError(t, err)
	assert.Equal(t, "big", res.DocumentID)
}

func TestUpload_PayloadReadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Upload(context.Background(), domain.UploadRequest{
		FileName: "broken.txt",
		Content:  io.MultiReader(strings.NewReader("partial"), failingReader{}),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskGone)
	assert.Contains(t, err.Error(), "read payload")
}

func TestUpload_ServerErrorCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Tipo de archivo no soportado"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Upload(context.Background(), domain.UploadRequest{FileName: "a.exe"})
	require.Error(t, err)

	var se *domain.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "Tipo de archivo no soportado", se.Detail)
}

func TestAsk_RequestAndResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, RouteAsk, r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "What is the summary?", body["question"])
		assert.Equal(t, "bge-small", body["embedding_model"])
		assert.EqualValues(t, 5, body["top_k"])

		_, _ = w.Write([]byte(`{"answer":"It grew.","sources":["report.pdf"],"context_chunks":3}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Ask(context.Background(), domain.AskRequest{
		Question: "What is the summary?", EmbeddingModel: "bge-small", TopK: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "It grew.", resp.Answer)
	assert.Equal(t, []string{"report.pdf"}, resp.Sources)
	assert.Equal(t, 3, resp.ContextChunks)
}

func TestAsk_MissingSourcesBecomeEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"No idea."}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Ask(context.Background(), domain.AskRequest{Question: "q"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)
}

func TestListDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"documents":[
			{"id":"d1","name":"report.pdf","upload_date":"2024-03-01T10:20:30.123456","chunks":12},
			{"id":"d2","name":"readme.md","upload_date":"","chunks":1,"size":2048}
		]}`))
	}))
	defer srv.Close()

	docs, err := New(srv.URL + "/").ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d1", docs[0].ID)
	assert.Equal(t, 12, docs[0].ChunkCount)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 20, 30, 123456000, time.UTC), docs[0].UploadedAt)
	assert.True(t, docs[1].UploadedAt.IsZero())
	assert.Equal(t, int64(2048), docs[1].SizeBytes)
}

func TestDeleteDocument_EscapesID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		gotPath = r.URL.EscapedPath()
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).DeleteDocument(context.Background(), "a/b"))
	assert.Equal(t, RouteDocuments+"/a%2Fb", gotPath)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, RouteHealth, r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"healthy","milvus":"connected","embedding_models_loaded":["m"]}`))
	}))
	defer srv.Close()

	h, err := New(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "connected", h.VectorStore)
}

func TestUnreachableBackendIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := New(base, WithRateLimit(100)).ListDocuments(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsNetworkError(err))
	assert.False(t, domain.IsServerError(err))
}
