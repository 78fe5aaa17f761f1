package embeddings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wellfoundry/nutrid/internal/embeddings"
)

func TestRemoteServiceSendsAuthAndTruncates(t *testing.T) {
	var gotAuth string
	var gotInputs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotInputs = req.Inputs

		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = make([]float32, 16)
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	s, err := embeddings.NewRemoteService(embeddings.RemoteConfig{
		BaseURL:    srv.URL,
		APIKey:     "secret",
		MaxChars:   20,
		VectorSize: 16,
	}, zap.NewNop())
	require.NoError(t, err)

	long := strings.Repeat("word ", 50)
	_, err = s.Embed(context.Background(), []string{"short\n\ntext", long})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	require.Len(t, gotInputs, 2)
	assert.Equal(t, "short text", gotInputs[0])
	assert.LessOrEqual(t, len(gotInputs[1]), 20)
}

func TestRemoteServiceTruncatesOnRuneBoundary(t *testing.T) {
	var gotInputs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotInputs = req.Inputs

		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = make([]float32, 16)
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	s, err := embeddings.NewRemoteService(embeddings.RemoteConfig{
		BaseURL:    srv.URL,
		MaxChars:   5,
		VectorSize: 16,
	}, zap.NewNop())
	require.NoError(t, err)

	// Each é is two bytes, so the 5-byte cap lands mid-rune.
	_, err = s.Embed(context.Background(), []string{strings.Repeat("é", 8)})
	require.NoError(t, err)

	require.Len(t, gotInputs, 1)
	assert.True(t, utf8.ValidString(gotInputs[0]))
	assert.Equal(t, strings.Repeat("é", 2), gotInputs[0])
}

func TestRemoteServiceRejectsBadShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{1, 2}})
	}))
	defer srv.Close()

	s, err := embeddings.NewRemoteService(embeddings.RemoteConfig{
		BaseURL:    srv.URL,
		VectorSize: 16,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = s.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestRemoteServiceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := embeddings.NewRemoteService(embeddings.RemoteConfig{
		BaseURL:    srv.URL,
		VectorSize: 16,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = s.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
