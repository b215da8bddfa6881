package agent_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/fathomly/resolver-engine/internal/agent"
	"github.com/fathomly/resolver-engine/internal/escalation"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

func TestLocalTierHit(t *testing.T) {
	a := agent.New(resolvetypes.Quality, nil, nil)
	a.RecordSolve(
		resolvetypes.Problem{Description: "Unit testing strategy"},
		resolvetypes.Solution{Recommendation: "Write unit tests for every function", SourceLevel: resolvetypes.LevelLocal, Confidence: 0.9},
	)

	e := escalation.New()
	sol, _ := a.Solve(context.Background(), e, resolvetypes.Problem{Description: "How do I write unit tests?"})

	if sol.SourceLevel != resolvetypes.LevelLocal {
		t.Fatalf("want Local, got %s", sol.SourceLevel)
	}
	if sol.Confidence < 0.8 {
		t.Fatalf("want confidence >= 0.8, got %f", sol.Confidence)
	}
	if !contains(sol.Recommendation, "Write unit tests for every function") {
		t.Fatalf("recommendation missing expected text: %q", sol.Recommendation)
	}
}

func TestHouseTierFallback(t *testing.T) {
	a := agent.New(resolvetypes.Quality, nil, nil)
	e := escalation.New()
	sol, _ := a.Solve(context.Background(), e, resolvetypes.Problem{Description: "Need help with unit test strategy"})

	if sol.SourceLevel != resolvetypes.LevelHouse {
		t.Fatalf("want House, got %s", sol.SourceLevel)
	}
	if sol.Confidence < 0.7 {
		t.Fatalf("want confidence >= 0.7, got %f", sol.Confidence)
	}
	if !contains(sol.Recommendation, "unit test") {
		t.Fatalf("recommendation missing 'unit test': %q", sol.Recommendation)
	}
}

func TestSessionFIFOEviction(t *testing.T) {
	a := agent.New(resolvetypes.Quality, nil, nil)
	for i := 0; i < 25; i++ {
		a.RecordSolve(
			resolvetypes.Problem{Description: fmt.Sprintf("problem-%d", i)},
			resolvetypes.Solution{SourceLevel: resolvetypes.LevelLocal, Confidence: 0.9},
		)
	}

	if got := a.SessionHistoryLen(); got != 20 {
		t.Fatalf("want session history length 20, got %d", got)
	}
	if got := a.DecisionHistoryLen(); got != 25 {
		t.Fatalf("want decision history length 25, got %d", got)
	}
	if got := a.OldestSessionDescription(0); got != "problem-5" {
		t.Fatalf("want oldest surviving session entry 'problem-5', got %q", got)
	}
}

func TestMentorTierNoCollaborator(t *testing.T) {
	a := agent.New(resolvetypes.Quality, nil, nil)
	sol := a.QueryMentor(context.Background(), resolvetypes.Problem{Description: "x"})
	if sol.Confidence != 0 || sol.SourceLevel != resolvetypes.LevelMentor {
		t.Fatalf("want zero-confidence Mentor Solution, got %+v", sol)
	}
}

func TestEtherTierNoCollaborator(t *testing.T) {
	a := agent.New(resolvetypes.Quality, nil, nil)
	sol := a.QueryEther(context.Background(), resolvetypes.Problem{Description: "x"})
	if sol.Confidence != 0 || sol.SourceLevel != resolvetypes.LevelEther {
		t.Fatalf("want zero-confidence Ether Solution, got %+v", sol)
	}
}

func TestMentorAndEtherSolutionsNotRecorded(t *testing.T) {
	a := agent.New(resolvetypes.Quality, nil, nil)
	a.RecordSolve(resolvetypes.Problem{Description: "p"}, resolvetypes.Solution{SourceLevel: resolvetypes.LevelMentor, Confidence: 0.9})
	a.RecordSolve(resolvetypes.Problem{Description: "p2"}, resolvetypes.Solution{SourceLevel: resolvetypes.LevelEther, Confidence: 0.9})
	if got := a.SessionHistoryLen(); got != 0 {
		t.Fatalf("want Mentor/Ether solutions not recorded, got session length %d", got)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
