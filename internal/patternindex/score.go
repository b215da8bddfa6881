package patternindex

import (
	"strings"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

// keywordOverlap scores a pattern against already-lowercased query words:
// tag exact match weighs 2, title/content substring match weigh 1 each,
// normalized by the per-word maximum (4) and capped at 1.0.
func keywordOverlap(p resolvetypes.Pattern, queryWords []string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	titleLower := strings.ToLower(p.Title)
	contentLower := strings.ToLower(p.Content)
	tagSet := make(map[string]bool, len(p.Tags))
	for _, t := range p.Tags {
		tagSet[strings.ToLower(t)] = true
	}

	matches := 0
	for _, word := range queryWords {
		if tagSet[word] {
			matches += 2
		}
		if strings.Contains(titleLower, word) {
			matches++
		}
		if strings.Contains(contentLower, word) {
			matches++
		}
	}

	maxScore := len(queryWords) * 4
	return clamp01(float64(matches) / float64(maxScore))
}

// contextMatch checks the pattern's language/framework/domain metadata
// against the lowercased query text. Patterns with no context metadata at
// all get a neutral 0.5; otherwise the score is the fraction of present
// dimensions that the query text mentions.
func contextMatch(p resolvetypes.Pattern, queryLower string) float64 {
	matches, total := 0, 0

	if p.Language != "" {
		total++
		if strings.Contains(queryLower, strings.ToLower(p.Language)) {
			matches++
		}
	}
	if p.Framework != "" {
		total++
		if strings.Contains(queryLower, strings.ToLower(p.Framework)) {
			matches++
		}
	}
	if p.Domain != "" {
		total++
		if strings.Contains(queryLower, strings.ToLower(string(p.Domain))) {
			matches++
		}
	}

	if total == 0 {
		return 0.5
	}
	return float64(matches) / float64(total)
}

func tokenize(s string) []string {
	lower := strings.ToLower(s)
	return strings.Fields(lower)
}
