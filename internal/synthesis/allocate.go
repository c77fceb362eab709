package synthesis

import (
	"github.com/intellisearch/synthesizer/internal/citations"
)

// Allocate partitions the relevance-ordered chunk pool across sections so
// each section works from a distinct slice of the evidence. Adjacent
// sections may share at most the single boundary chunk (one chunk of
// lookahead), which keeps short pools covered without letting sections
// re-derive the same facts from identical evidence.
//
// Every assigned chunk is tagged with its citation number, building the
// citation map lazily in first-seen order.
func Allocate(pool []Chunk, sections []*Section, cm *citations.Map) {
	total := len(pool)
	if total == 0 || len(sections) == 0 {
		return
	}

	// Degenerate pool: fewer chunks than sections. Every section still
	// receives one chunk so generation always has evidence to cite.
	if total < len(sections) {
		for i, sec := range sections {
			idx := i
			if idx > total-1 {
				idx = total - 1
			}
			assign(sec, pool[idx:idx+1], cm)
		}
		return
	}

	perSection := total / len(sections)
	if perSection < 1 {
		perSection = 1
	}
	for i, sec := range sections {
		start := i * perSection
		end := (i+1)*perSection + 1 // one chunk of boundary lookahead
		if end > total {
			end = total
		}
		if start >= total {
			start = total - 1
		}
		assign(sec, pool[start:end], cm)
	}
}

func assign(sec *Section, chunks []Chunk, cm *citations.Map) {
	seen := make(map[int]bool)
	for _, c := range chunks {
		n := cm.Assign(c.SourceURL, c.SourceTitle)
		sec.Chunks = append(sec.Chunks, TaggedChunk{Chunk: c, CitationNumber: n})
		if !seen[n] {
			seen[n] = true
			sec.Citations = append(sec.Citations, n)
		}
	}
}
