package synthesis

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/intellisearch/synthesizer/internal/profiles"
)

// fallbackShape is a deterministic outline used when no valid external
// outline is supplied. Target words are absolute for the built-in profiles
// and rescaled when a custom profile's word bounds demand it.
type fallbackShape []OutlineItem

var (
	summaryShape = fallbackShape{
		{Title: "Executive Summary", TargetWords: 200},
		{Title: "Key Findings", TargetWords: 700},
		{Title: "Conclusions", TargetWords: 300},
	}
	analyticalShape = fallbackShape{
		{Title: "Introduction", TargetWords: 400},
		{Title: "Comprehensive Analysis", TargetWords: 1200},
		{Title: "Key Findings", TargetWords: 600},
		{Title: "Implications and Conclusions", TargetWords: 400},
	}
)

// PlanOutline produces section skeletons for a report. A proposed outline
// (typically LLM-suggested) is used when it passes validation; otherwise a
// deterministic fallback keyed on the profile's capacity applies. Returns
// *OutlineError when neither satisfies the profile's section-count bounds.
func PlanOutline(profile profiles.ReportProfile, proposed []OutlineItem, logger *zap.Logger) ([]*Section, error) {
	if items, ok := validateProposed(profile, proposed); ok {
		normalized := normalizeTargets(items, profile.NominalWords)
		return toSections(normalized), nil
	}
	if len(proposed) > 0 {
		logger.Warn("Proposed outline rejected, using deterministic fallback",
			zap.String("profile", profile.Name),
			zap.Int("proposed_sections", len(proposed)),
		)
	}

	shape := summaryShape
	if profile.MaxSections > 4 {
		shape = analyticalShape
	}
	if len(shape) < profile.MinSections || len(shape) > profile.MaxSections {
		return nil, &OutlineError{Reason: fmt.Sprintf(
			"fallback outline has %d sections, profile %q requires %d-%d",
			len(shape), profile.Name, profile.MinSections, profile.MaxSections)}
	}

	items := make([]OutlineItem, len(shape))
	copy(items, shape)
	if total := targetSum(items); total > profile.MaxWords {
		items = normalizeTargets(items, profile.MaxWords)
	} else if total < profile.MinWords {
		items = normalizeTargets(items, profile.MinWords)
	}
	return toSections(items), nil
}

// validateProposed returns the cleaned proposed outline and whether it is
// usable: non-empty titles, positive targets, count within profile bounds.
func validateProposed(profile profiles.ReportProfile, proposed []OutlineItem) ([]OutlineItem, bool) {
	if len(proposed) == 0 {
		return nil, false
	}
	if len(proposed) < profile.MinSections || len(proposed) > profile.MaxSections {
		return nil, false
	}
	items := make([]OutlineItem, 0, len(proposed))
	for _, it := range proposed {
		title := strings.TrimSpace(it.Title)
		if title == "" || it.TargetWords <= 0 {
			return nil, false
		}
		items = append(items, OutlineItem{Title: title, TargetWords: it.TargetWords})
	}
	return items, true
}

// normalizeTargets rescales target words so their sum equals total while
// preserving each section's relative share. Rounding drift lands on the
// largest section so the sum is exact.
func normalizeTargets(items []OutlineItem, total int) []OutlineItem {
	sum := targetSum(items)
	if sum == 0 || total <= 0 {
		return items
	}
	out := make([]OutlineItem, len(items))
	scaled := 0
	largest := 0
	for i, it := range items {
		w := int(math.Round(float64(it.TargetWords) * float64(total) / float64(sum)))
		if w < 1 {
			w = 1
		}
		out[i] = OutlineItem{Title: it.Title, TargetWords: w}
		scaled += w
		if it.TargetWords > items[largest].TargetWords {
			largest = i
		}
	}
	if drift := total - scaled; drift != 0 && out[largest].TargetWords+drift > 0 {
		out[largest].TargetWords += drift
	}
	return out
}

func targetSum(items []OutlineItem) int {
	sum := 0
	for _, it := range items {
		sum += it.TargetWords
	}
	return sum
}

func toSections(items []OutlineItem) []*Section {
	sections := make([]*Section, len(items))
	for i, it := range items {
		sections[i] = &Section{Title: it.Title, TargetWords: it.TargetWords}
	}
	return sections
}
