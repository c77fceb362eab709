package util

import (
	"strings"
	"unicode"
)

// WordCount returns the number of whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// IsStructuralLine reports whether a line is a structural markdown unit
// (heading, list bullet, table row, blank) rather than prose. Structural
// lines are never split into sentences and never deduplicated.
func IsStructuralLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	switch trimmed[0] {
	case '#', '-', '*', '+', '|', '>':
		return true
	}
	// Numbered list items: "1. " / "12) "
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	if i > 0 && i < len(trimmed) && (trimmed[i] == '.' || trimmed[i] == ')') {
		if i+1 == len(trimmed) || trimmed[i+1] == ' ' {
			return true
		}
	}
	return false
}

// SplitSentences splits a prose paragraph into sentence-like units on
// terminal punctuation (. ! ?), keeping the terminator attached to its
// sentence. Abbreviation detection is intentionally not attempted.
func SplitSentences(paragraph string) []string {
	var sentences []string
	runes := []rune(paragraph)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// Swallow runs of terminators ("..." / "?!") and a closing quote.
		end := i
		for end+1 < len(runes) && (isTerminal(runes[end+1]) || runes[end+1] == '"' || runes[end+1] == '\'') {
			end++
		}
		// Only break when followed by whitespace or end of text.
		if end+1 < len(runes) && !unicode.IsSpace(runes[end+1]) {
			i = end
			continue
		}
		s := strings.TrimSpace(string(runes[start : end+1]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = end + 1
		i = end
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// EndsWithTerminal reports whether s ends with a sentence-terminal
// character, ignoring trailing whitespace and closing quotes.
func EndsWithTerminal(s string) bool {
	runes := []rune(strings.TrimSpace(s))
	for i := len(runes) - 1; i >= 0; i-- {
		switch {
		case runes[i] == '"' || runes[i] == '\'':
			continue
		case isTerminal(runes[i]):
			return true
		default:
			return false
		}
	}
	return false
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// DistinctWords returns the lowercased set of distinct words in s with
// surrounding punctuation stripped.
func DistinctWords(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(s) {
		w := strings.ToLower(strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		}))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// OverlapRatio returns |a ∩ b| divided by the size of the smaller set.
// Returns 0 when either set is empty.
func OverlapRatio(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for w := range small {
		if _, ok := large[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

// TruncateString truncates s to maxLen runes and appends "..." if truncated
// (UTF-8 safe). If preserveWords is true, truncates at the last space before
// maxLen when possible.
func TruncateString(s string, maxLen int, preserveWords bool) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."[:maxLen]
	}
	cut := maxLen - 3
	if preserveWords {
		if idx := lastSpaceBeforeRune(s, cut); idx > 0 {
			cut = idx
		}
	}
	return string(runes[:cut]) + "..."
}

// lastSpaceBeforeRune finds the last space before pos (in rune count, UTF-8 safe)
func lastSpaceBeforeRune(s string, pos int) int {
	runes := []rune(s)
	if pos > len(runes) {
		pos = len(runes)
	}
	for i := pos - 1; i >= 0; i-- {
		if runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}
