package citations

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignFirstSeenOrder(t *testing.T) {
	m := NewMap()
	assert.Equal(t, 1, m.Assign("https://example.com/a", "A"))
	assert.Equal(t, 2, m.Assign("https://example.com/b", "B"))
	assert.Equal(t, 3, m.Assign("https://example.com/c", "C"))
	assert.Equal(t, 3, m.Len())
}

func TestAssignIsIdempotent(t *testing.T) {
	m := NewMap()
	first := m.Assign("https://example.com/report", "Report")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, m.Assign("https://example.com/report", "Report"))
	}
	assert.Equal(t, 1, m.Len())
}

func TestAssignNormalizesVariants(t *testing.T) {
	m := NewMap()
	n1 := m.Assign("HTTPS://Example.COM/Path/", "First title")
	n2 := m.Assign("https://example.com/path?utm_source=feed#section", "Second title")
	assert.Equal(t, n1, n2)
	assert.Equal(t, 1, m.Len())

	// first title wins
	entries := m.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "First title", entries[0].Title)
}

func TestAssignConcurrent(t *testing.T) {
	m := NewMap()
	urls := make([]string, 20)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/page-%d", i)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, u := range urls {
				m.Assign(u, "t")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, len(urls), m.Len())
	// numbers must be a dense 1..N range regardless of interleaving
	seen := make(map[int]bool)
	for _, c := range m.Entries() {
		seen[c.Number] = true
	}
	for i := 1; i <= len(urls); i++ {
		assert.True(t, seen[i], "missing number %d", i)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.com/A/B/", "https://example.com/a/b"},
		{"http://example.com/x?q=1", "http://example.com/x"},
		{"https://example.com/x#frag", "https://example.com/x"},
		{"  https://example.com  ", "https://example.com"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestRenderLayout(t *testing.T) {
	m := NewMap()
	m.Assign("https://example.com/alpha", "Alpha Study")
	m.Assign("https://example.com/beta", "")

	ts := time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC)
	block := m.Render(ts)

	assert.Contains(t, block, "## Sources and References")
	assert.Contains(t, block, "[1] Alpha Study — https://example.com/alpha")
	assert.Contains(t, block, "[2] Untitled source — https://example.com/beta")
	assert.Contains(t, block, "Total sources: 2 | Generated: 2025-03-14 09:26 UTC")
	assert.Contains(t, block, "excluded from report word count")

	// entries listed in ascending order
	i1 := strings.Index(block, "[1]")
	i2 := strings.Index(block, "[2]")
	assert.Less(t, i1, i2)
}

func TestRenderEmptyMap(t *testing.T) {
	m := NewMap()
	assert.Equal(t, "", m.Render(time.Now()))
}
