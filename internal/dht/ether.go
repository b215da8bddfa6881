package dht

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

// PatternLookup is the capability Ether needs from the Pattern Index: find
// the locally best-matching patterns for a problem description, ranked
// best-first, so the top one's id can be used as the DHT lookup key.
type PatternLookup interface {
	BestMatches(ctx context.Context, query string) ([]resolvetypes.Pattern, error)
}

// Ether wraps a Node and a PatternLookup into the agent.Ether capability:
// find the best local pattern candidate, then ask the distributed
// network for its authoritative copy, attaching content provenance.
type Ether struct {
	node    *Node
	lookup  PatternLookup
}

// NewEther constructs an Ether tier backed by node and lookup. lookup may
// be nil, in which case Ether degrades to a direct key lookup keyed by
// the problem's raw description (useful in tests or single-pattern
// deployments).
func NewEther(node *Node, lookup PatternLookup) *Ether {
	return &Ether{node: node, lookup: lookup}
}

// FindSolution implements agent.Ether.
func (e *Ether) FindSolution(ctx context.Context, problem resolvetypes.Problem) (resolvetypes.Solution, error) {
	key := problem.Description
	var candidate *resolvetypes.Pattern

	if e.lookup != nil {
		matches, err := e.lookup.BestMatches(ctx, problem.Description)
		if err == nil && len(matches) > 0 {
			key = matches[0].ID
			candidate = &matches[0]
		}
	}

	found, err := e.node.IterativeFindValue(ctx, key)
	if err != nil {
		if kind, ok := resolvetypes.KindOf(err); !ok || kind != resolvetypes.KindNotFound {
			return resolvetypes.Solution{}, err
		}
		found = candidate
	}
	if found == nil {
		return resolvetypes.Solution{}, resolvetypes.NewNotFound("no pattern found in the distributed pattern network")
	}

	hash := sha256.Sum256([]byte(found.Content))
	now := time.Now()
	return resolvetypes.Solution{
		Recommendation: found.Title + ": " + found.Content,
		Reasoning:      []string{"retrieved from the distributed pattern network"},
		Confidence:     0.6,
		SourceLevel:    resolvetypes.LevelEther,
		ContentAddress: "PATTERN." + found.ID,
		ContentHash:    hex.EncodeToString(hash[:]),
		HashVerified:   true,
		VerifiedAt:     &now,
	}, nil
}
