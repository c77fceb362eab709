package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(capacity int) *Manager {
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

func TestPublishSubscribe(t *testing.T) {
	m := newTestManager(16)
	ch := m.Subscribe("sess-1", 8)
	defer m.Unsubscribe("sess-1", ch)

	m.Publish("sess-1", Event{Type: "section_started", Section: "Key Findings"})

	select {
	case evt := <-ch:
		assert.Equal(t, "sess-1", evt.SessionID)
		assert.Equal(t, "section_started", evt.Type)
		assert.Equal(t, "Key Findings", evt.Section)
		assert.Equal(t, uint64(0), evt.Seq)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishIsolatedPerSession(t *testing.T) {
	m := newTestManager(16)
	ch := m.Subscribe("sess-a", 8)
	defer m.Unsubscribe("sess-a", ch)

	m.Publish("sess-b", Event{Type: "report_completed"})

	select {
	case <-ch:
		t.Fatal("received event for another session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	m := newTestManager(16)
	ch := m.Subscribe("sess-1", 1)
	defer m.Unsubscribe("sess-1", ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			m.Publish("sess-1", Event{Type: "section_completed"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestReplaySince(t *testing.T) {
	m := newTestManager(16)
	for i := 0; i < 5; i++ {
		m.Publish("sess-1", Event{Type: "section_completed"})
	}

	events := m.ReplaySince("sess-1", 1)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(2), events[0].Seq)
	assert.Equal(t, uint64(4), events[2].Seq)
}

func TestReplayBoundedByRingCapacity(t *testing.T) {
	m := newTestManager(4)
	for i := 0; i < 10; i++ {
		m.Publish("sess-1", Event{Type: "expansion_round"})
	}

	events := m.ReplaySince("sess-1", 0)
	require.Len(t, events, 4)
	// Oldest events were overwritten; only the newest survive.
	assert.Equal(t, uint64(6), events[0].Seq)
	assert.Equal(t, uint64(9), events[3].Seq)
}

func TestForgetDropsHistory(t *testing.T) {
	m := newTestManager(16)
	m.Publish("sess-1", Event{Type: "report_completed"})
	m.Forget("sess-1")
	assert.Nil(t, m.ReplaySince("sess-1", 0))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := newTestManager(16)
	ch := m.Subscribe("sess-1", 1)
	m.Unsubscribe("sess-1", ch)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after the last unsubscribe must not panic.
	m.Publish("sess-1", Event{Type: "report_completed"})
}
