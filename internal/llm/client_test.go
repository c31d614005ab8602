package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"convo-search/internal/domain"
	"convo-search/internal/llm"
)

const groundedResponse = `{
  "candidates": [{
    "content": {"role": "model", "parts": [{"text": "Paris is the capital of France."}]},
    "groundingMetadata": {
      "groundingChunks": [
        {"web": {"uri": "https://example.com/paris", "title": "Paris"}},
        {"web": {"uri": "https://example.com/france", "title": "France"}},
        {}
      ],
      "groundingSupports": [
        {"segment": {"text": "Paris is the capital of France."}, "groundingChunkIndices": [1, 0]},
        {"segment": {"text": "Later claim."}, "groundingChunkIndices": [0]}
      ]
    }
  }]
}`

type capturedRequest struct {
	path   string
	apiKey string
	body   map[string]any
	raw    string
}

func newGeminiServer(t *testing.T, status int, payload string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if captured != nil {
			captured.path = r.URL.Path
			captured.apiKey = r.Header.Get("x-goog-api-key")
			captured.raw = string(raw)
			_ = json.Unmarshal(raw, &captured.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server) *llm.GeminiClient {
	return llm.NewGeminiClient(zap.NewNop(),
		llm.WithModel("gemini-test"),
		llm.WithBaseURL(srv.URL+"/"),
		llm.WithHTTPClient(srv.Client()),
	)
}

func TestGeminiClient_SearchReturnsSummaryAndSources(t *testing.T) {
	t.Parallel()
	var captured capturedRequest
	srv := newGeminiServer(t, http.StatusOK, groundedResponse, &captured)

	history := []domain.Turn{{Query: "capital of France", Summary: "Paris."}}
	res, err := newClient(srv).Search(context.Background(), "key-123", "what about Germany?", history)
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital of France.", res.Summary)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, domain.Source{Title: "Paris", URL: "https://example.com/paris", Snippet: "Paris is the capital of France."}, res.Sources[0])
	assert.Equal(t, domain.Source{Title: "France", URL: "https://example.com/france", Snippet: "Paris is the capital of France."}, res.Sources[1])

	assert.Equal(t, "key-123", captured.apiKey)
	assert.Contains(t, captured.path, "gemini-test:generateContent")
	assert.Contains(t, captured.raw, "googleSearch")
	contents, ok := captured.body["contents"].([]any)
	require.True(t, ok, "request must carry contents")
	assert.Len(t, contents, 3)
}

func TestGeminiClient_ClassifiesErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		status    int
		payload   string
		kind      llm.ErrorKind
		retryable bool
	}{
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			payload: `{"error":{"code":401,"message":"unauthenticated","status":"UNAUTHENTICATED"}}`,
			kind:    llm.KindUnauthorized,
		},
		{
			name:    "bad api key",
			status:  http.StatusBadRequest,
			payload: `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`,
			kind:    llm.KindUnauthorized,
		},
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			payload:   `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`,
			kind:      llm.KindRateLimited,
			retryable: true,
		},
		{
			name:      "upstream failure",
			status:    http.StatusInternalServerError,
			payload:   `{"error":{"code":500,"message":"internal secret detail","status":"INTERNAL"}}`,
			kind:      llm.KindUpstream,
			retryable: true,
		},
		{
			name:    "no candidates",
			status:  http.StatusOK,
			payload: `{"candidates":[]}`,
			kind:    llm.KindMalformed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newGeminiServer(t, tc.status, tc.payload, nil)
			_, err := newClient(srv).Search(context.Background(), "key", "q", nil)
			require.Error(t, err)

			pe, ok := llm.AsProviderError(err)
			require.True(t, ok, "expected ProviderError, got %T", err)
			assert.Equal(t, tc.kind, pe.Kind)
			assert.Equal(t, tc.retryable, pe.Retryable())
			assert.NotContains(t, pe.Message, "secret")
		})
	}
}

func TestGeminiClient_Timeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newClient(srv).Search(ctx, "key", "q", nil)
	require.Error(t, err)

	pe, ok := llm.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindTimeout, pe.Kind)
	assert.True(t, pe.Retryable())
}

func TestBuildContents(t *testing.T) {
	t.Parallel()
	history := []domain.Turn{
		{Query: "capital of France", Summary: "Paris."},
		{Query: "unanswered"},
	}
	got := llm.BuildContents(history, "and Germany?")
	require.Len(t, got, 4)

	roles := make([]string, len(got))
	texts := make([]string, len(got))
	for i, c := range got {
		roles[i] = c.Role
		texts[i] = c.Parts[0].Text
	}
	assert.Equal(t, []string{"user", "model", "user", "user"}, roles)
	assert.Equal(t, []string{"capital of France", "Paris.", "unanswered", "and Germany?"}, texts)
}

func TestBuildContents_FreshQuery(t *testing.T) {
	t.Parallel()
	got := llm.BuildContents(nil, "capital of France")
	require.Len(t, got, 1)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "capital of France", got[0].Parts[0].Text)
}

func TestExtractSources_NoGrounding(t *testing.T) {
	t.Parallel()
	assert.Empty(t, llm.ExtractSources(nil))
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}
	got := llm.ExtractSources(resp)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExtractSources_KeepsProviderOrderAndDuplicates(t *testing.T) {
	t.Parallel()
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		GroundingMetadata: &genai.GroundingMetadata{
			GroundingChunks: []*genai.GroundingChunk{
				{Web: &genai.GroundingChunkWeb{URI: "https://b", Title: "B"}},
				{Web: &genai.GroundingChunkWeb{URI: "https://a", Title: "A"}},
				{Web: &genai.GroundingChunkWeb{URI: "https://b", Title: "B again"}},
			},
		},
	}}}
	got := llm.ExtractSources(resp)
	require.Len(t, got, 3)
	urls := []string{got[0].URL, got[1].URL, got[2].URL}
	assert.Equal(t, []string{"https://b", "https://a", "https://b"}, urls)
	for _, s := range got {
		assert.True(t, strings.HasPrefix(s.URL, "https://"))
		assert.Empty(t, s.Snippet)
	}
}

func TestMockProvider_RecordsCalls(t *testing.T) {
	t.Parallel()
	m := &llm.MockProvider{Result: llm.SearchResult{Summary: "ok"}}
	res, err := m.Search(context.Background(), "k", "q", []domain.Turn{{Query: "prev"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Summary)
	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "q", calls[0].Query)
	assert.Len(t, calls[0].History, 1)
}
