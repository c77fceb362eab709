package synthesis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/intellisearch/synthesizer/internal/profiles"
	"github.com/intellisearch/synthesizer/internal/util"
)

// controllerState is the word-budget controller's explicit state machine.
// Expansion is append-only and bounded: an earlier design that replaced the
// report wholesale on every expansion pass amplified restatement instead of
// fixing it, so the bound and the append-only transition are invariants.
type controllerState int

const (
	stateValidating controllerState = iota
	stateExpanding
	stateTruncating
	stateFinal
)

const (
	// expansionOverlapThreshold rejects an expansion whose opening mostly
	// restates the report's own opening.
	expansionOverlapThreshold = 0.60
	// openingWindowWords is how much of each text the restatement check
	// compares.
	openingWindowWords = 80
)

// budgetOutcome reports what the controller did to the body.
type budgetOutcome struct {
	Body            string
	Warnings        []Warning
	ExpansionRounds int
}

// budgetController drives a body through Validating / Expanding /
// Truncating until Final, enforcing the profile's word-count contract.
type budgetController struct {
	profile profiles.ReportProfile
	gen     Generator
	logger  *zap.Logger
}

// run takes the concatenated section bodies and returns the frozen body.
// pool is the full tagged chunk pool, handed to expansion requests so added
// content stays grounded in the same evidence.
func (c *budgetController) run(ctx context.Context, body, topic string, pool []TaggedChunk) budgetOutcome {
	out := budgetOutcome{Body: body}
	state := stateValidating

	for state != stateFinal {
		switch state {
		case stateValidating:
			wc := util.WordCount(out.Body)
			switch {
			case wc > c.profile.MaxWords:
				state = stateTruncating
			case wc < c.profile.SoftFloor() && out.ExpansionRounds < c.profile.MaxExpansionRounds:
				state = stateExpanding
			default:
				if wc < c.profile.MinWords {
					out.Warnings = append(out.Warnings, Warning{
						Code: WarnUnderLength,
						Message: fmt.Sprintf("report is %d words, below the %d-word minimum for %s reports",
							wc, c.profile.MinWords, c.profile.Name),
					})
					c.logger.Warn("Accepting under-length report",
						zap.Int("word_count", wc),
						zap.Int("min_words", c.profile.MinWords),
						zap.Int("expansion_rounds", out.ExpansionRounds),
					)
				}
				state = stateFinal
			}

		case stateExpanding:
			out.ExpansionRounds++
			addition, warn := c.expand(ctx, out.Body, topic, pool)
			if warn != nil {
				out.Warnings = append(out.Warnings, *warn)
			}
			if addition != "" {
				// Append-only: prior work is never replaced.
				out.Body = out.Body + "\n\n" + addition
			}
			state = stateValidating

		case stateTruncating:
			before := util.WordCount(out.Body)
			out.Body = truncateAtSentence(out.Body, c.profile.MaxWords)
			out.Warnings = append(out.Warnings, Warning{
				Code: WarnOverLengthTruncate,
				Message: fmt.Sprintf("report truncated from %d to %d words at a sentence boundary",
					before, util.WordCount(out.Body)),
			})
			c.logger.Warn("Truncated over-length report",
				zap.Int("before_words", before),
				zap.Int("max_words", c.profile.MaxWords),
			)
			state = stateFinal
		}
	}

	return out
}

// expand requests additional unique content from the generator. The
// returned addition is discarded when it mostly restates the report's
// opening, since amplifying repetition is worse than staying short.
func (c *budgetController) expand(ctx context.Context, body, topic string, pool []TaggedChunk) (string, *Warning) {
	deficit := c.profile.MinWords - util.WordCount(body)
	if deficit < 50 {
		deficit = 50
	}

	opening := openingWords(body, openingWindowWords)
	req := SectionRequest{
		Topic:       topic,
		Title:       "Additional Findings",
		TargetWords: deficit,
		Chunks:      pool,
		Directive: "Provide additional unique findings not yet covered by the report. " +
			"Do not restate or summarize existing content. The report currently opens with: " +
			util.TruncateString(opening, 400, true),
	}

	addition, err := c.gen.GenerateSection(ctx, req)
	if err != nil {
		c.logger.Warn("Expansion round failed", zap.Error(err))
		return "", &Warning{
			Code:    WarnExpansionDiscarded,
			Message: fmt.Sprintf("expansion round failed: %v", err),
		}
	}

	addition = strings.TrimSpace(addition)
	if addition == "" {
		return "", &Warning{Code: WarnExpansionDiscarded, Message: "expansion round returned no content"}
	}

	addOpening := openingWords(addition, openingWindowWords)
	overlap := util.OverlapRatio(util.DistinctWords(addOpening), util.DistinctWords(opening))
	if overlap >= expansionOverlapThreshold {
		c.logger.Warn("Discarding expansion that restates the report opening",
			zap.Float64("overlap", overlap),
		)
		return "", &Warning{
			Code:    WarnExpansionDiscarded,
			Message: fmt.Sprintf("expansion discarded: %.0f%% overlap with existing opening", overlap*100),
		}
	}

	return addition, nil
}

// openingWords returns the first n words of prose in text, skipping
// structural lines.
func openingWords(text string, n int) string {
	var words []string
	for _, line := range strings.Split(text, "\n") {
		if util.IsStructuralLine(line) {
			continue
		}
		words = append(words, strings.Fields(line)...)
		if len(words) >= n {
			break
		}
	}
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// truncateAtSentence trims body to the last whole sentence at or before
// maxWords. Headings and bullets count toward the total but are never the
// cut point; trailing structural lines after the cut are dropped so the
// output always ends on a sentence-terminal character.
func truncateAtSentence(body string, maxWords int) string {
	if util.WordCount(body) <= maxWords {
		return body
	}

	var out []string
	words := 0
	for _, line := range strings.Split(body, "\n") {
		lineWords := util.WordCount(line)
		if util.IsStructuralLine(line) {
			if words+lineWords > maxWords {
				break
			}
			words += lineWords
			out = append(out, line)
			continue
		}

		var keptSentences []string
		stop := false
		for _, s := range util.SplitSentences(line) {
			sw := util.WordCount(s)
			if words+sw > maxWords {
				stop = true
				break
			}
			words += sw
			keptSentences = append(keptSentences, s)
		}
		if len(keptSentences) > 0 {
			out = append(out, strings.Join(keptSentences, " "))
		}
		if stop {
			break
		}
	}

	// Never end on a heading or bullet.
	for len(out) > 0 && !util.EndsWithTerminal(out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}
