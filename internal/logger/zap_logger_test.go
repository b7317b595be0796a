package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestZapLogger_WritesJSONRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l := New(Options{FilePath: path, Level: "debug"})

	l.Info("documents", "document indexed", map[string]interface{}{"document_id": "d1", "chunks": 12})
	l.Error("chat", "query failed", map[string]interface{}{"error": errors.New("boom")})
	l.Debug("backend", "request", nil)
	_ = l.Sync()

	recs := readLines(t, path)
	require.Len(t, recs, 3)

	assert.Equal(t, "INFO", recs[0]["level"])
	assert.Equal(t, "document indexed", recs[0]["message"])
	assert.Equal(t, "documents", recs[0]["module"])
	assert.NotEmpty(t, recs[0]["timestamp"])
	details, ok := recs[0]["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "d1", details["document_id"])
	assert.Equal(t, float64(12), details["chunks"])

	assert.Equal(t, "ERROR", recs[1]["level"])
	assert.Equal(t, "boom", recs[1]["error"])

	assert.Equal(t, "DEBUG", recs[2]["level"])
	assert.Equal(t, map[string]interface{}{}, recs[2]["details"])
}

func TestZapLogger_LevelFilters(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"debug", 4},
		{"info", 3},
		{"warn", 2},
		{"error", 1},
		{"bogus", 3},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "app.log")
			l := New(Options{FilePath: path, Level: tt.level})
			l.Debug("m", "d", nil)
			l.Info("m", "i", nil)
			l.Warn("m", "w", nil)
			l.Error("m", "e", nil)
			_ = l.Sync()

			assert.Len(t, readLines(t, path), tt.want)
		})
	}
}

func TestNew_WithoutSinksIsNop(t *testing.T) {
	l := New(Options{})
	assert.NotPanics(t, func() {
		l.Info("m", "nothing", nil)
		_ = l.Sync()
	})
}
