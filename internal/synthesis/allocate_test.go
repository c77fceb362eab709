package synthesis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellisearch/synthesizer/internal/citations"
)

func makePool(n int) []Chunk {
	pool := make([]Chunk, n)
	for i := range pool {
		pool[i] = Chunk{
			Content:       fmt.Sprintf("evidence fragment %d", i),
			SourceURL:     fmt.Sprintf("https://example.com/doc-%d", i),
			SourceTitle:   fmt.Sprintf("Document %d", i),
			RelevanceRank: i,
		}
	}
	return pool
}

func makeSections(n int) []*Section {
	sections := make([]*Section, n)
	for i := range sections {
		sections[i] = &Section{Title: fmt.Sprintf("Section %d", i), TargetWords: 300}
	}
	return sections
}

func TestAllocateEvenSplitWithBoundaryLookahead(t *testing.T) {
	pool := makePool(9)
	sections := makeSections(3)
	Allocate(pool, sections, citations.NewMap())

	require.Len(t, sections[0].Chunks, 4) // 0-3
	require.Len(t, sections[1].Chunks, 4) // 3-6
	require.Len(t, sections[2].Chunks, 3) // 6-8

	// Adjacent sections share only the boundary chunk.
	assert.Equal(t, sections[0].Chunks[3].Content, sections[1].Chunks[0].Content)
	assert.Equal(t, sections[1].Chunks[3].Content, sections[2].Chunks[0].Content)
	assert.NotEqual(t, sections[0].Chunks[0].Content, sections[1].Chunks[0].Content)
}

func TestAllocateDegeneratePool(t *testing.T) {
	pool := makePool(2)
	sections := makeSections(3)
	Allocate(pool, sections, citations.NewMap())

	// Every section still receives evidence; the last chunk repeats.
	require.Len(t, sections[0].Chunks, 1)
	require.Len(t, sections[1].Chunks, 1)
	require.Len(t, sections[2].Chunks, 1)
	assert.Equal(t, pool[0].Content, sections[0].Chunks[0].Content)
	assert.Equal(t, pool[1].Content, sections[1].Chunks[0].Content)
	assert.Equal(t, pool[1].Content, sections[2].Chunks[0].Content)
}

func TestAllocateEmptyPool(t *testing.T) {
	sections := makeSections(2)
	Allocate(nil, sections, citations.NewMap())
	assert.Empty(t, sections[0].Chunks)
	assert.Empty(t, sections[1].Chunks)
}

func TestAllocateCitationNumbersFirstSeen(t *testing.T) {
	pool := makePool(4)
	// Two chunks from the same source, different paths elsewhere.
	pool[2].SourceURL = pool[0].SourceURL
	pool[2].SourceTitle = pool[0].SourceTitle

	cm := citations.NewMap()
	sections := makeSections(2)
	Allocate(pool, sections, cm)

	assert.Equal(t, 3, cm.Len())
	assert.Equal(t, 1, sections[0].Chunks[0].CitationNumber)

	// The repeated source keeps its original number wherever it lands.
	for _, sec := range sections {
		for _, tc := range sec.Chunks {
			if tc.SourceURL == pool[0].SourceURL {
				assert.Equal(t, 1, tc.CitationNumber)
			}
		}
	}
}
