package synthesis

import (
	"strings"

	"github.com/intellisearch/synthesizer/internal/util"
)

const (
	// Sentences shorter than this many words are never dedup candidates;
	// dropping "In summary:" style connectives hurts more than it helps.
	minDedupWords = 6

	// A candidate is dropped when this share of its distinct words already
	// appeared in an earlier kept sentence.
	dedupOverlapThreshold = 0.70
)

// Deduplicate removes sentences that are near-duplicates of earlier
// sentences in the body. Independently generated sections tend to restate
// the same facts; this pass keeps the first occurrence and drops the rest.
//
// Structural lines (headings, bullets, tables, blanks) pass through
// untouched, surviving sentences keep their original order, and the pass
// never adds text. The overlap test is lexical only: the same fact phrased
// very differently will not be caught.
func Deduplicate(body string) (string, int) {
	if strings.TrimSpace(body) == "" {
		return body, 0
	}

	var kept []map[string]struct{}
	removed := 0
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		if util.IsStructuralLine(line) {
			out = append(out, line)
			continue
		}

		sentences := util.SplitSentences(line)
		survivors := make([]string, 0, len(sentences))
		for _, s := range sentences {
			words := util.DistinctWords(s)
			if util.WordCount(s) >= minDedupWords && isNearDuplicate(words, kept) {
				removed++
				continue
			}
			survivors = append(survivors, s)
			kept = append(kept, words)
		}
		if len(survivors) == 0 {
			// Whole line was redundant; drop it rather than leave an
			// empty prose line behind.
			continue
		}
		out = append(out, strings.Join(survivors, " "))
	}

	return strings.Join(out, "\n"), removed
}

func isNearDuplicate(words map[string]struct{}, kept []map[string]struct{}) bool {
	for _, prev := range kept {
		if util.OverlapRatio(words, prev) >= dedupOverlapThreshold {
			return true
		}
	}
	return false
}
