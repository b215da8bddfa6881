package patternindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
	"github.com/google/uuid"
)

// PatternMatch is one ranked result of SearchByIntent.
type PatternMatch struct {
	Pattern      resolvetypes.Pattern
	Relevance    float64
	Reasoning    string
	ContextBoost *float64
}

// Statistics summarizes the index's holdings.
type Statistics struct {
	TotalPatterns  int
	TotalUsage     int
	CachedPatterns int
	MostUsedID     string
}

// Index is the Pattern Index (C8): an in-memory pattern catalogue backed by
// a pluggable embedding + vector-store pair for semantic search, with
// keyword/context scoring always available even when no embedder is
// configured.
type Index struct {
	mu       sync.RWMutex
	patterns map[string]resolvetypes.Pattern
	usage    map[string]int

	embedder EmbeddingDriver // optional
	vectors  VectorStoreDriver
	boost    *boostEvaluator
	rebuildDir string
}

// Option configures an Index at construction.
type Option func(*Index)

// WithEmbedding wires an embedding driver and vector store into the index,
// enabling real semantic-similarity scoring instead of the neutral default.
func WithEmbedding(embedder EmbeddingDriver, store VectorStoreDriver) Option {
	return func(idx *Index) {
		idx.embedder = embedder
		idx.vectors = store
	}
}

// WithRebuildDir sets the directory Rebuild scans for pattern files.
func WithRebuildDir(dir string) Option {
	return func(idx *Index) { idx.rebuildDir = dir }
}

// WithBoostFormula overrides the default context-boost expr program.
func WithBoostFormula(formula string) Option {
	return func(idx *Index) {
		be, err := newBoostEvaluator(formula)
		if err == nil {
			idx.boost = be
		}
	}
}

// New returns an empty Index.
func New(opts ...Option) (*Index, error) {
	boost, err := newBoostEvaluator("")
	if err != nil {
		return nil, err
	}
	idx := &Index{
		patterns: make(map[string]resolvetypes.Pattern),
		usage:    make(map[string]int),
		boost:    boost,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// AddPattern inserts pattern, assigning an id and timestamps if absent, and
// embeds it into the vector store when one is configured.
func (idx *Index) AddPattern(ctx context.Context, p resolvetypes.Pattern) (resolvetypes.Pattern, error) {
	if strings.TrimSpace(p.Title) == "" && strings.TrimSpace(p.Content) == "" {
		return resolvetypes.Pattern{}, resolvetypes.NewInvalidArgument("pattern must have a title or content")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.ModifiedAt = now

	idx.mu.Lock()
	idx.patterns[p.ID] = p
	idx.mu.Unlock()

	if idx.embedder != nil && idx.vectors != nil {
		if err := idx.embedOne(ctx, p); err != nil {
			return p, resolvetypes.NewStorage("patternindex: embed pattern", err)
		}
	}
	return p, nil
}

func (idx *Index) embedOne(ctx context.Context, p resolvetypes.Pattern) error {
	text := p.Title + "\n" + p.Content
	vectors, err := idx.embedder.Embed(ctx, []string{text})
	if err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}
	return idx.vectors.Upsert(ctx, []VectorDoc{{ID: p.ID, Content: text, Vector: vectors[0]}})
}

// Rebuild clears the in-memory pattern set and repopulates it by scanning
// WithRebuildDir's directory: one pattern per regular file, title from the
// filename stem, content from the file body, language guessed from the
// extension.
func (idx *Index) Rebuild(ctx context.Context) error {
	if idx.rebuildDir == "" {
		return resolvetypes.NewInvalidArgument("patternindex: no rebuild directory configured")
	}

	entries, err := os.ReadDir(idx.rebuildDir)
	if err != nil {
		return resolvetypes.NewStorage("patternindex: read rebuild directory", err)
	}

	fresh := make(map[string]resolvetypes.Pattern)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(idx.rebuildDir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return resolvetypes.NewStorage(fmt.Sprintf("patternindex: read %s", path), err)
		}
		ext := filepath.Ext(entry.Name())
		stem := strings.TrimSuffix(entry.Name(), ext)
		p := resolvetypes.Pattern{
			ID:        uuid.NewString(),
			Title:     stem,
			Content:   string(content),
			Language:  languageForExt(ext),
			CreatedAt: time.Now(),
		}
		p.ModifiedAt = p.CreatedAt
		fresh[p.ID] = p
	}

	idx.mu.Lock()
	idx.patterns = fresh
	idx.mu.Unlock()

	if idx.embedder != nil && idx.vectors != nil {
		for _, p := range fresh {
			if err := idx.embedOne(ctx, p); err != nil {
				return resolvetypes.NewStorage("patternindex: embed during rebuild", err)
			}
		}
	}
	return nil
}

func languageForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".py":
		return "python"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	default:
		return ""
	}
}

// SearchByIntent ranks every pattern against query, optionally applying a
// context boost. It is always safe to call with a nil matchCtx.
func (idx *Index) SearchByIntent(ctx context.Context, query string, matchCtx *resolvetypes.MatchContext) ([]PatternMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, resolvetypes.NewInvalidArgument("search query must not be empty")
	}

	idx.mu.RLock()
	patterns := make([]resolvetypes.Pattern, 0, len(idx.patterns))
	for _, p := range idx.patterns {
		patterns = append(patterns, p)
	}
	usage := make(map[string]int, len(idx.usage))
	for k, v := range idx.usage {
		usage[k] = v
	}
	idx.mu.RUnlock()

	if len(patterns) == 0 {
		return nil, resolvetypes.NewNotFound("pattern index is empty")
	}

	queryLower := strings.ToLower(query)
	queryWords := tokenize(query)

	semanticByID, err := idx.semanticScores(ctx, query, len(patterns))
	if err != nil {
		return nil, resolvetypes.NewStorage("patternindex: semantic search", err)
	}

	var maxUsage int
	for _, c := range usage {
		if c > maxUsage {
			maxUsage = c
		}
	}

	results := make([]PatternMatch, 0, len(patterns))
	for _, p := range patterns {
		b := breakdown{
			keywordOverlap:     keywordOverlap(p, queryWords),
			contextMatch:       contextMatch(p, queryLower),
			semanticSimilarity: 0.5,
			historicalSuccess:  0.5,
			recency:            recencyScore(p, matchCtx),
			userPreference:     preferenceScore(p, matchCtx),
			teamUsage:          usageScore(usage[p.ID], maxUsage),
			globalUsage:        usageScore(usage[p.ID], maxUsage),
			securityScore:      1.0,
			codeQuality:        0.8,
		}
		if score, ok := semanticByID[p.ID]; ok {
			b.semanticSimilarity = score
		}

		relevance := b.totalScore()
		reasoning := fmt.Sprintf("keyword=%.2f context=%.2f semantic=%.2f", b.keywordOverlap, b.contextMatch, b.semanticSimilarity)

		match := PatternMatch{Pattern: p, Relevance: relevance, Reasoning: reasoning}

		if matchCtx != nil {
			env := boostEnv{
				DomainMatch:     boolFloat(matchCtx.Domain != "" && p.Domain == matchCtx.Domain),
				FrameworkMatch:  boolFloat(matchCtx.Framework != "" && strings.EqualFold(matchCtx.Framework, p.Framework)),
				PreferenceScore: preferenceScore(p, matchCtx),
				Recency:         recencyScore(p, matchCtx),
			}
			boostVal, err := idx.boost.evaluate(env)
			if err != nil {
				return nil, resolvetypes.NewProtocol("patternindex: context boost", err)
			}
			match.ContextBoost = &boostVal
			match.Relevance = clamp01(match.Relevance + boostVal)
			match.Reasoning += fmt.Sprintf(" boost=%.2f", boostVal)
		}

		results = append(results, match)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Relevance > results[j].Relevance })
	return results, nil
}

// BestMatches adapts SearchByIntent for callers (the Ether tier) that
// only need the ranked patterns themselves, not the full PatternMatch
// breakdown. Returns an empty slice, not an error, when the index holds
// no patterns yet — Ether degrades gracefully to a direct DHT key
// lookup in that case.
func (idx *Index) BestMatches(ctx context.Context, query string) ([]resolvetypes.Pattern, error) {
	matches, err := idx.SearchByIntent(ctx, query, nil)
	if err != nil {
		if kind, ok := resolvetypes.KindOf(err); ok && kind == resolvetypes.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	out := make([]resolvetypes.Pattern, len(matches))
	for i, m := range matches {
		out[i] = m.Pattern
	}
	return out, nil
}

func (idx *Index) semanticScores(ctx context.Context, query string, limit int) (map[string]float64, error) {
	if idx.embedder == nil || idx.vectors == nil {
		return nil, nil
	}
	vectors, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		return nil, err
	}
	hits, err := idx.vectors.Search(ctx, vectors[0], limit)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		out[h.Doc.ID] = clamp01(h.Score)
	}
	return out, nil
}

func recencyScore(p resolvetypes.Pattern, matchCtx *resolvetypes.MatchContext) float64 {
	if matchCtx != nil {
		for _, id := range matchCtx.RecentPatternIDs {
			if id == p.ID {
				return 1.0
			}
		}
	}
	if p.CreatedAt.IsZero() {
		return 0.5
	}
	age := time.Since(p.CreatedAt)
	const halfLife = 30 * 24 * time.Hour
	if age <= 0 {
		return 1.0
	}
	decay := 1.0 / (1.0 + float64(age)/float64(halfLife))
	return clamp01(decay)
}

func preferenceScore(p resolvetypes.Pattern, matchCtx *resolvetypes.MatchContext) float64 {
	if matchCtx == nil || matchCtx.Preferences == nil {
		return 0.5
	}
	if v, ok := matchCtx.Preferences[p.ID]; ok {
		return clamp01(v)
	}
	return 0.5
}

func usageScore(count, max int) float64 {
	if max == 0 {
		return 0.5
	}
	return clamp01(float64(count) / float64(max))
}

func boolFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// RecordUsage increments a pattern's usage count and feeds confidence into
// its recorded quality signal (kept as usage count only; confidence is
// accepted for interface symmetry with the calibrator's expectations).
func (idx *Index) RecordUsage(ctx context.Context, patternID string, confidence float64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.patterns[patternID]; !ok {
		return resolvetypes.NewNotFound("pattern " + patternID + " not found")
	}
	idx.usage[patternID]++
	return nil
}

// Statistics summarizes the index.
func (idx *Index) Statistics(ctx context.Context) (Statistics, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := Statistics{TotalPatterns: len(idx.patterns)}
	var mostUsedCount int
	for id, count := range idx.usage {
		stats.TotalUsage += count
		if count > mostUsedCount {
			mostUsedCount = count
			stats.MostUsedID = id
		}
	}
	if idx.vectors != nil {
		if n, err := idx.vectors.Count(ctx); err == nil {
			stats.CachedPatterns = n
		}
	}
	return stats, nil
}
