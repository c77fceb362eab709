package synthesis

import (
	"context"
	"fmt"
)

// Chunk is one retrieved evidence fragment with source provenance. The
// chunk pool arrives ordered by relevance from the external retrieval
// collaborator; the engine never fetches or ranks content itself.
type Chunk struct {
	Content       string `json:"content"`
	SourceURL     string `json:"source_url"`
	SourceTitle   string `json:"source_title"`
	RelevanceRank int    `json:"relevance_rank"`
}

// TaggedChunk is a chunk annotated with its citation number so the
// generation instruction can reference it as [n].
type TaggedChunk struct {
	Chunk
	CitationNumber int `json:"citation_number"`
}

// Section is one titled, word-budgeted part of the report. Created by the
// outline planner, populated by the allocator, then filled by the generator.
// Sections live for a single synthesis run only.
type Section struct {
	Title       string
	TargetWords int
	Chunks      []TaggedChunk
	Citations   []int // citation numbers referenced by this section's chunks
	Generated   string
}

// OutlineItem is one entry of an externally proposed outline.
type OutlineItem struct {
	Title       string `json:"title"`
	TargetWords int    `json:"target_words"`
}

// SectionRequest carries everything the external text-generation
// collaborator needs to draft one section.
type SectionRequest struct {
	Topic       string
	Title       string
	TargetWords int
	Chunks      []TaggedChunk
	Directive   string // avoid-repetition instruction covering sibling sections
}

// Generator is the boundary to the external text-generation collaborator.
// Implementations must honor ctx cancellation; the engine treats every call
// as fallible and substitutes placeholders on failure.
type Generator interface {
	GenerateSection(ctx context.Context, req SectionRequest) (string, error)
}

// Document is the finished report. WordCount covers Body only; the
// citations block is excluded from all word arithmetic.
type Document struct {
	Body           string `json:"body"`
	CitationsBlock string `json:"citations_block"`
	WordCount      int    `json:"word_count"`
}

// WarningCode classifies non-fatal quality signals reported alongside a
// finished document.
type WarningCode string

const (
	WarnUnderLength        WarningCode = "under_length"
	WarnOverLengthTruncate WarningCode = "over_length_truncated"
	WarnSectionFailed      WarningCode = "section_generation_failed"
	WarnExpansionDiscarded WarningCode = "expansion_discarded"
)

// Warning is a non-fatal quality signal. Warnings never abort a run; a
// report is always produced once outlining succeeds.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// Result is the output of one synthesis run: the document plus run metadata
// the caller can use to retry, accept, or alert.
type Result struct {
	Document        Document  `json:"document"`
	Warnings        []Warning `json:"warnings,omitempty"`
	SectionsPlanned int       `json:"sections_planned"`
	SectionsFailed  int       `json:"sections_failed"`
	ExpansionRounds int       `json:"expansion_rounds"`
	UniqueSources   int       `json:"unique_sources"`
	DuplicatesCut   int       `json:"duplicates_removed"`
}

// OutlineError means no outline satisfying the profile's section-count
// constraints could be produced. It is the only fatal synthesis error.
type OutlineError struct {
	Reason string
}

func (e *OutlineError) Error() string {
	return fmt.Sprintf("outline error: %s", e.Reason)
}
