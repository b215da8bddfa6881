package knowledge_test

import (
	"context"
	"testing"
	"time"

	"github.com/fathomly/resolver-engine/internal/knowledge"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

func TestInsertAndGetByID(t *testing.T) {
	m := knowledge.NewMemory()
	ctx := context.Background()
	d := resolvetypes.Discovery{
		ID: "d1", Type: resolvetypes.DiscoveryBugPattern, Content: "off-by-one in loop bound",
		Agent: "quality-agent", Domain: resolvetypes.Quality, Timestamp: time.Now(),
		Tags: []string{"loop", "bounds"}, Files: []string{"a.go"},
	}
	if err := m.Insert(ctx, d); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetByID(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Content != d.Content {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestMarkValidatedIdempotent(t *testing.T) {
	m := knowledge.NewMemory()
	ctx := context.Background()
	d := resolvetypes.Discovery{ID: "d1", Content: "x", Agent: "a", Timestamp: time.Now()}
	mustInsert(t, m, d)

	if err := m.MarkValidated(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if err := m.IncrementReferences(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	beforeCount, _ := m.GetByID(ctx, "d1")

	if err := m.MarkValidated(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	after, _ := m.GetByID(ctx, "d1")

	if !after.Validated {
		t.Fatal("want validated true after second call")
	}
	if after.ReferenceCount != beforeCount.ReferenceCount {
		t.Fatalf("mark_validated must not change reference_count: before=%d after=%d", beforeCount.ReferenceCount, after.ReferenceCount)
	}
}

func TestQueryFiltersByTagOR(t *testing.T) {
	m := knowledge.NewMemory()
	ctx := context.Background()
	mustInsert(t, m, resolvetypes.Discovery{ID: "a", Content: "x", Agent: "a", Tags: []string{"perf"}, Timestamp: time.Now()})
	mustInsert(t, m, resolvetypes.Discovery{ID: "b", Content: "x", Agent: "a", Tags: []string{"security"}, Timestamp: time.Now()})
	mustInsert(t, m, resolvetypes.Discovery{ID: "c", Content: "x", Agent: "a", Tags: []string{"style"}, Timestamp: time.Now()})

	results, err := m.Query(ctx, knowledge.Filter{Tags: []string{"perf", "security"}, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
}

func TestQueryRespectsLimit(t *testing.T) {
	m := knowledge.NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustInsert(t, m, resolvetypes.Discovery{ID: string(rune('a' + i)), Content: "x", Agent: "a", Timestamp: time.Now()})
	}
	results, err := m.Query(ctx, knowledge.Filter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
}

func mustInsert(t *testing.T, m *knowledge.Memory, d resolvetypes.Discovery) {
	t.Helper()
	if err := m.Insert(context.Background(), d); err != nil {
		t.Fatalf("insert: %v", err)
	}
}
