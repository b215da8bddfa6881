package patternindex_test

import (
	"context"
	"testing"

	"github.com/fathomly/resolver-engine/internal/patternindex"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

func newIndex(t *testing.T) *patternindex.Index {
	t.Helper()
	idx, err := patternindex.New()
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	return idx
}

func TestAddPatternAssignsIDAndTimestamps(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	p, err := idx.AddPattern(ctx, resolvetypes.Pattern{Title: "Rust error handling", Content: "Use Result<T, E>", Tags: []string{"rust", "error-handling"}, Language: "rust"})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == "" {
		t.Fatal("want generated id")
	}
	if p.CreatedAt.IsZero() {
		t.Fatal("want created_at set")
	}
}

func TestSearchByIntentRanksRelevantPatternFirst(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	mustAdd(t, idx, resolvetypes.Pattern{Title: "Rust error handling", Content: "Use Result<T, E> for fallible operations", Tags: []string{"rust", "error-handling"}, Language: "rust"})
	mustAdd(t, idx, resolvetypes.Pattern{Title: "Python exception handling", Content: "Use try/except for errors", Tags: []string{"python", "exceptions"}, Language: "python"})

	results, err := idx.SearchByIntent(ctx, "how do I handle errors in rust", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	if results[0].Pattern.Language != "rust" {
		t.Fatalf("want rust pattern ranked first, got %q", results[0].Pattern.Title)
	}
}

func TestSearchByIntentEmptyQueryRejected(t *testing.T) {
	idx := newIndex(t)
	mustAdd(t, idx, resolvetypes.Pattern{Title: "x", Content: "y"})
	if _, err := idx.SearchByIntent(context.Background(), "", nil); err == nil {
		t.Fatal("want error for empty query")
	}
}

func TestSearchByIntentEmptyIndexIsNotFound(t *testing.T) {
	idx := newIndex(t)
	_, err := idx.SearchByIntent(context.Background(), "anything", nil)
	if err == nil {
		t.Fatal("want error for empty index")
	}
	if kind, _ := resolvetypes.KindOf(err); kind != resolvetypes.KindNotFound {
		t.Fatalf("want KindNotFound, got %v", kind)
	}
}

func TestContextBoostAppliedWhenContextGiven(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	p := mustAdd(t, idx, resolvetypes.Pattern{Title: "Rust async patterns", Content: "tokio runtime basics", Domain: resolvetypes.Infrastructure, Framework: "tokio"})

	mc := &resolvetypes.MatchContext{Domain: resolvetypes.Infrastructure, Framework: "tokio"}
	results, err := idx.SearchByIntent(ctx, "rust async", mc)
	if err != nil {
		t.Fatal(err)
	}
	var found *patternindex.PatternMatch
	for i := range results {
		if results[i].Pattern.ID == p.ID {
			found = &results[i]
		}
	}
	if found == nil {
		t.Fatal("pattern missing from results")
	}
	if found.ContextBoost == nil || *found.ContextBoost <= 0 {
		t.Fatalf("want positive context boost, got %+v", found.ContextBoost)
	}
	if *found.ContextBoost > 0.3 {
		t.Fatalf("boost must not exceed 0.3, got %f", *found.ContextBoost)
	}
}

func TestRecordUsageAndStatistics(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	p := mustAdd(t, idx, resolvetypes.Pattern{Title: "x", Content: "y"})

	if err := idx.RecordUsage(ctx, p.ID, 0.9); err != nil {
		t.Fatal(err)
	}
	if err := idx.RecordUsage(ctx, p.ID, 0.8); err != nil {
		t.Fatal(err)
	}

	stats, err := idx.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalPatterns != 1 {
		t.Fatalf("want 1 pattern, got %d", stats.TotalPatterns)
	}
	if stats.TotalUsage != 2 {
		t.Fatalf("want usage 2, got %d", stats.TotalUsage)
	}
	if stats.MostUsedID != p.ID {
		t.Fatalf("want most used id %s, got %s", p.ID, stats.MostUsedID)
	}
}

func TestRecordUsageUnknownPatternNotFound(t *testing.T) {
	idx := newIndex(t)
	err := idx.RecordUsage(context.Background(), "missing", 0.5)
	if err == nil {
		t.Fatal("want not-found error")
	}
	if kind, _ := resolvetypes.KindOf(err); kind != resolvetypes.KindNotFound {
		t.Fatalf("want KindNotFound, got %v", kind)
	}
}

func mustAdd(t *testing.T, idx *patternindex.Index, p resolvetypes.Pattern) resolvetypes.Pattern {
	t.Helper()
	out, err := idx.AddPattern(context.Background(), p)
	if err != nil {
		t.Fatalf("add pattern: %v", err)
	}
	return out
}
