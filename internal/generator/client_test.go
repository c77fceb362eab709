package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intellisearch/synthesizer/internal/synthesis"
)

func sectionRequest() synthesis.SectionRequest {
	return synthesis.SectionRequest{
		Topic:       "grid-scale storage",
		Title:       "Key Findings",
		TargetWords: 400,
		Directive:   "Do not cover ground belonging to the sibling sections: Conclusions.",
		Chunks: []synthesis.TaggedChunk{
			{
				Chunk: synthesis.Chunk{
					Content:     "Installed capacity tripled between 2022 and 2025.",
					SourceURL:   "https://example.com/capacity",
					SourceTitle: "Capacity Outlook",
				},
				CitationNumber: 1,
			},
		},
	}
}

func TestGenerateSectionSuccess(t *testing.T) {
	var gotReq generationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/agent/query", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"response": "  Installed capacity tripled in three years [1].  ",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	text, err := c.GenerateSection(context.Background(), sectionRequest())
	require.NoError(t, err)
	assert.Equal(t, "Installed capacity tripled in three years [1].", text)

	assert.Contains(t, gotReq.Query, `"Key Findings" section`)
	assert.Contains(t, gotReq.Query, "about 400 words")
	assert.Contains(t, gotReq.Query, "[1] Capacity Outlook (https://example.com/capacity)")
	assert.Contains(t, gotReq.Query, "sibling sections")
	assert.Equal(t, "report_synthesizer", gotReq.AgentID)
	assert.GreaterOrEqual(t, gotReq.MaxTokens, 512)
}

func TestGenerateSectionRetriesOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"response": "Recovered on the second attempt.",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 2}, zap.NewNop())
	text, err := c.GenerateSection(context.Background(), sectionRequest())
	require.NoError(t, err)
	assert.Equal(t, "Recovered on the second attempt.", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerateSectionNoRetryOn4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 3}, zap.NewNop())
	_, err := c.GenerateSection(context.Background(), sectionRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 422")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateSectionExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 1}, zap.NewNop())
	_, err := c.GenerateSection(context.Background(), sectionRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `generate section "Key Findings"`)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerateSectionServiceFailureFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.GenerateSection(context.Background(), sectionRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reported failure")
}

func TestGenerateSectionContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GenerateSection(ctx, sectionRequest())
	require.Error(t, err)
}

func TestMaxTokensFor(t *testing.T) {
	assert.Equal(t, 512, maxTokensFor(50))
	assert.Equal(t, 1800, maxTokensFor(600))
	assert.Equal(t, 8192, maxTokensFor(5000))
}
