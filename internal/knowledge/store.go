// Package knowledge implements the Shared Knowledge Store (C7): an
// indexed, append-mostly store of Discoveries with a composable filter
// query surface.
package knowledge

import (
	"context"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

// Filter narrows Query to a subset of discoveries. Every field is
// optional; Tags is OR'd (a discovery matches if it has any listed tag).
// Limit is mandatory and always applied.
type Filter struct {
	Type     resolvetypes.DiscoveryType
	Severity string
	Domain   resolvetypes.Domain
	Tags     []string
	Agent    string
	FilePath string
	Limit    int
}

// Statistics summarizes the store's contents.
type Statistics struct {
	Total     int
	Validated int
	Tags      int // count of distinct tags across all discoveries
	SizeBytes int64
}

// Store is the persistence-agnostic contract; Postgres and in-memory
// variants both satisfy it.
type Store interface {
	Insert(ctx context.Context, d resolvetypes.Discovery) error
	GetByID(ctx context.Context, id string) (*resolvetypes.Discovery, error)
	Query(ctx context.Context, f Filter) ([]resolvetypes.Discovery, error)
	IncrementReferences(ctx context.Context, id string) error
	MarkValidated(ctx context.Context, id string) error
	Statistics(ctx context.Context) (Statistics, error)
}

func matchesFilter(d resolvetypes.Discovery, f Filter) bool {
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.Severity != "" && d.Severity != f.Severity {
		return false
	}
	if f.Domain != "" && d.Domain != f.Domain {
		return false
	}
	if f.Agent != "" && d.Agent != f.Agent {
		return false
	}
	if f.FilePath != "" && !containsString(d.Files, f.FilePath) {
		return false
	}
	if len(f.Tags) > 0 && !anyTagMatches(d.Tags, f.Tags) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func anyTagMatches(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}
