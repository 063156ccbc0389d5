package answering

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whoknows-ai/whoknows-go/internal/chat"
	"github.com/whoknows-ai/whoknows-go/internal/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.ServiceConfig{BaseURL: url, Timeout: 2 * time.Second})
}

func TestAsk_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/chat", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req askRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "who is the CTO?", req.Query)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"message": "The CTO is Alexandra Chen.",
			"sources": [{"kind": "document", "title": "Team Structure", "locator": "team-structure.md"}],
			"confidence": {"level": "high", "score": 0.92, "explanation": "Multiple strong matches."}
		}`))
	}))
	defer srv.Close()

	ans, err := newTestClient(srv.URL).Ask(context.Background(), "who is the CTO?")
	require.NoError(t, err)
	require.Equal(t, "The CTO is Alexandra Chen.", ans.Message)
	require.Len(t, ans.Sources, 1)
	require.Equal(t, chat.SourceDocument, ans.Sources[0].Kind)
	require.Equal(t, "Team Structure", ans.Sources[0].Title)
	require.NotNil(t, ans.Confidence)
	require.Equal(t, chat.ConfidenceHigh, ans.Confidence.Level)
	require.InDelta(t, 0.92, ans.Confidence.Score, 1e-9)
}

func TestAsk_OmittedExtrasAreOptional(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": "No results found for 'quantum'."}`))
	}))
	defer srv.Close()

	ans, err := newTestClient(srv.URL).Ask(context.Background(), "quantum")
	require.NoError(t, err)
	require.Equal(t, "No results found for 'quantum'.", ans.Message)
	require.Empty(t, ans.Sources)
	require.Nil(t, ans.Confidence)
}

func TestAsk_ServiceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "Internal server error", "message": "An error occurred while processing your request."}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Ask(context.Background(), "anything")
	require.Error(t, err)

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, CodeService, svcErr.Code)
	require.Equal(t, http.StatusInternalServerError, svcErr.Status)
	require.Contains(t, svcErr.Message, "An error occurred while processing your request.")
}

func TestAsk_ServiceErrorWithoutBodyDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Ask(context.Background(), "anything")

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, CodeService, svcErr.Code)
	require.Equal(t, "unexpected status code: 502", svcErr.Message)
}

func TestAsk_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>definitely not json</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Ask(context.Background(), "anything")

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, CodeBadReply, svcErr.Code)
}

func TestAsk_MissingMessageField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sources": []}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Ask(context.Background(), "anything")

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, CodeBadReply, svcErr.Code)
}

func TestAsk_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing is listening anymore

	_, err := newTestClient(srv.URL).Ask(context.Background(), "anything")

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, CodeUnreachable, svcErr.Code)
	require.NotNil(t, svcErr.Unwrap())
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status": "healthy", "search_engine": "initialized"}`))
	}))
	defer srv.Close()

	h, err := newTestClient(srv.URL).Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "healthy", h.Status)
	require.Equal(t, "initialized", h.SearchEngine)
}

func TestStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/stats", r.URL.Path)
		_, _ = w.Write([]byte(`{"search_mode": "vector", "index_loaded": true, "total_chunks": 128, "total_documents": 12}`))
	}))
	defer srv.Close()

	st, err := newTestClient(srv.URL).Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, "vector", st.SearchMode)
	require.True(t, st.IndexLoaded)
	require.Equal(t, 128, st.TotalChunks)
	require.Equal(t, 12, st.TotalDocuments)
}

func TestBaseURL_TrailingSlashTrimmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status": "healthy", "search_engine": "initialized"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL + "/").Health(context.Background())
	require.NoError(t, err)
}
