// Package domainrouter classifies a free-text problem description into one
// of the seven declared domains using a weighted-keyword scoring function.
// Classification is a pure function: no I/O, no suspension, safe to call
// from any goroutine without synchronization.
package domainrouter

import (
	"sort"
	"strings"
	"unicode"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

// SecondaryThreshold is the minimum score an alternative domain needs to be
// listed, per spec.md §4.1.
const SecondaryThreshold = 0.5

// ConfidenceThreshold is exposed for callers but, per spec, never alters
// primary-domain selection.
const ConfidenceThreshold = 0.7

// Router classifies problem descriptions into domains.
type Router struct{}

// New returns a Router. It holds no mutable state.
func New() *Router { return &Router{} }

// Classify scores description against every declared domain and returns a
// self-contained DomainClassification: the winning domain, its score, the
// full score map, the matched keywords behind the winning domain, and the
// alternative domains above the secondary threshold. Ties for the primary
// domain are broken by resolvetypes.Domains' declaration order (the first
// maximum wins), never by map iteration.
func (r *Router) Classify(description string) resolvetypes.DomainClassification {
	tokens := tokenize(description)
	scores := make(map[resolvetypes.Domain]float64, len(resolvetypes.Domains))

	var best resolvetypes.Domain
	bestScore := -1.0

	for _, d := range resolvetypes.Domains {
		s := score(d, tokens)
		scores[d] = s
		if s > bestScore {
			bestScore = s
			best = d
		}
	}

	return resolvetypes.DomainClassification{
		Domain:          best,
		Confidence:      bestScore,
		Scores:          scores,
		MatchedKeywords: matchedKeywords(best, tokens),
		Alternatives:    alternatives(best, scores),
	}
}

// alternatives returns every domain other than primary whose score exceeds
// SecondaryThreshold, sorted by descending score (ties broken by
// declaration order, via a stable sort over resolvetypes.Domains).
func alternatives(primary resolvetypes.Domain, scores map[resolvetypes.Domain]float64) []resolvetypes.AlternativeDomain {
	var out []resolvetypes.AlternativeDomain
	for _, d := range resolvetypes.Domains {
		if d == primary {
			continue
		}
		if s, ok := scores[d]; ok && s > SecondaryThreshold {
			out = append(out, resolvetypes.AlternativeDomain{Domain: d, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func score(domain resolvetypes.Domain, tokens []string) float64 {
	weights := keywordWeights[domain]
	if len(tokens) == 0 || len(weights) == 0 {
		return 0
	}

	var matchedWeight float64
	for _, t := range tokens {
		if w, ok := weights[t]; ok {
			matchedWeight += w
		}
	}

	normalizer := avgWeight(domain) * float64(len(tokens))
	if normalizer <= 0 {
		return 0
	}

	s := matchedWeight / normalizer
	if s > 1.0 {
		s = 1.0
	}
	return s
}

func matchedKeywords(domain resolvetypes.Domain, tokens []string) []string {
	weights := keywordWeights[domain]
	var out []string
	seen := make(map[string]bool)
	for _, t := range tokens {
		if _, ok := weights[t]; ok && !seen[t] {
			out = append(out, t)
			seen[t] = true
		}
	}
	return out
}

// tokenize lowercases description and splits on any rune that is neither a
// letter, a digit, nor '-', discarding tokens of length <= 2.
func tokenize(description string) []string {
	lower := strings.ToLower(description)
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 2 {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
	}
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
