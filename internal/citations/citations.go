package citations

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Citation is one unique source with its assigned reference number.
type Citation struct {
	Number int    `json:"number"`
	URL    string `json:"url"`   // normalized form used as the map key
	Title  string `json:"title"` // title of the first chunk that referenced the URL
}

// Map assigns stable numbers to source URLs in first-seen order, starting at
// 1. Assign is safe for concurrent use: sections generated in parallel may
// touch the same URL at the same time.
type Map struct {
	mu      sync.Mutex
	byURL   map[string]int
	entries []Citation
}

// NewMap creates an empty citation map.
func NewMap() *Map {
	return &Map{byURL: make(map[string]int)}
}

// Assign returns the number for sourceURL, allocating the next integer when
// the URL has not been seen before. Idempotent: the same URL always yields
// the same number for the lifetime of the map. The title is recorded on
// first assignment only.
func (m *Map) Assign(sourceURL, title string) int {
	key := Normalize(sourceURL)
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.byURL[key]; ok {
		return n
	}
	n := len(m.entries) + 1
	m.byURL[key] = n
	m.entries = append(m.entries, Citation{Number: n, URL: key, Title: strings.TrimSpace(title)})
	return n
}

// Lookup returns the number already assigned to sourceURL, or false.
func (m *Map) Lookup(sourceURL string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.byURL[Normalize(sourceURL)]
	return n, ok
}

// Len returns the number of unique sources assigned so far.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Entries returns the assigned citations in ascending number order.
func (m *Map) Entries() []Citation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Citation, len(m.entries))
	copy(out, m.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Normalize reduces a source URL to a comparable key: lowercased
// scheme+host+path, query and fragment stripped, trailing slash removed.
// Unparseable input falls back to a trimmed lowercase of the raw string.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.ToLower(s)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	path := strings.TrimSuffix(strings.ToLower(u.Path), "/")
	return scheme + "://" + strings.ToLower(u.Host) + path
}

// Render produces the "Sources and References" block for the final report.
// The layout is a user-facing contract: numbered entries in ascending order,
// a total count with generation timestamp, and an explicit marker that the
// block is excluded from the report word count. Render never touches the
// report body; it must be called only after the body is frozen.
func (m *Map) Render(now time.Time) string {
	entries := m.Entries()
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("---\n\n")
	b.WriteString("## Sources and References\n\n")
	for _, c := range entries {
		title := c.Title
		if title == "" {
			title = "Untitled source"
		}
		fmt.Fprintf(&b, "[%d] %s — %s\n", c.Number, title, c.URL)
	}
	fmt.Fprintf(&b, "\nTotal sources: %d | Generated: %s\n",
		len(entries), now.UTC().Format("2006-01-02 15:04 UTC"))
	b.WriteString("(Reference list excluded from report word count.)\n")
	return b.String()
}
