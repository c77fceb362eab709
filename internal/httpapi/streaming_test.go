package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/intellisearch/synthesizer/internal/streaming"
)

func TestSSERequiresSessionID(t *testing.T) {
	h := NewStreamingHandler(streaming.Get(), zap.NewNop())

	rec := httptest.NewRecorder()
	h.handleSSE(rec, httptest.NewRequest(http.MethodGet, "/stream/sse", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSEReplaysBacklog(t *testing.T) {
	mgr := streaming.Get()
	mgr.Publish("sse-replay-test", streaming.Event{Type: "section_started", Section: "Findings"})
	mgr.Publish("sse-replay-test", streaming.Event{Type: "section_completed", Section: "Findings"})
	mgr.Publish("sse-replay-test", streaming.Event{Type: "report_completed"})

	h := NewStreamingHandler(mgr, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream/sse?session_id=sse-replay-test", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.handleSSE(rec, req)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SSE handler did not stop on context cancellation")
	}

	body := rec.Body.String()
	assert.Contains(t, body, ": connected to session sse-replay-test")
	// Only events after Last-Event-ID 1 are replayed.
	assert.Contains(t, body, "event: report_completed")
	assert.Contains(t, body, "id: 2")
	assert.NotContains(t, body, "event: section_started")
	assert.NotContains(t, body, "event: section_completed")
}

func TestSSETypeFilter(t *testing.T) {
	mgr := streaming.Get()
	h := NewStreamingHandler(mgr, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet,
		"/stream/sse?session_id=sse-filter-test&types=report_completed", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.handleSSE(rec, req)
		close(done)
	}()

	// Let the handler subscribe, then publish live events.
	time.Sleep(50 * time.Millisecond)
	mgr.Publish("sse-filter-test", streaming.Event{Type: "section_started"})
	mgr.Publish("sse-filter-test", streaming.Event{Type: "report_completed"})
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Contains(t, body, "event: report_completed")
	assert.NotContains(t, body, "event: section_started")
}

func TestWSRequiresSessionID(t *testing.T) {
	h := NewStreamingHandler(streaming.Get(), zap.NewNop())

	rec := httptest.NewRecorder()
	h.handleWS(rec, httptest.NewRequest(http.MethodGet, "/stream/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
