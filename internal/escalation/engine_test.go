package escalation_test

import (
	"context"
	"testing"
	"time"

	"github.com/fathomly/resolver-engine/internal/escalation"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

// stubSolver returns a fixed confidence per tier, for exercising the
// escalation ladder's stop/continue decisions deterministically.
type stubSolver struct {
	confidences map[resolvetypes.SearchLevel]float64
	calls       []resolvetypes.SearchLevel
}

func (s *stubSolver) solve(level resolvetypes.SearchLevel) resolvetypes.Solution {
	s.calls = append(s.calls, level)
	return resolvetypes.Solution{
		Confidence:  s.confidences[level],
		SourceLevel: level,
	}
}

func (s *stubSolver) MatchLocal(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution {
	return s.solve(resolvetypes.LevelLocal)
}
func (s *stubSolver) MatchLongTerm(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution {
	return s.solve(resolvetypes.LevelLongTerm)
}
func (s *stubSolver) MatchHouse(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution {
	return s.solve(resolvetypes.LevelHouse)
}
func (s *stubSolver) QueryMentor(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution {
	return s.solve(resolvetypes.LevelMentor)
}
func (s *stubSolver) QueryEther(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution {
	return s.solve(resolvetypes.LevelEther)
}

func TestSolveStopsAtLocalWhenConfident(t *testing.T) {
	e := escalation.New()
	s := &stubSolver{confidences: map[resolvetypes.SearchLevel]float64{
		resolvetypes.LevelLocal: 0.95,
	}}
	sol, _ := e.Solve(context.Background(), s, resolvetypes.Problem{Description: "x"})
	if sol.SourceLevel != resolvetypes.LevelLocal {
		t.Fatalf("want Local, got %s", sol.SourceLevel)
	}
	if len(s.calls) != 1 {
		t.Fatalf("want exactly 1 tier call, got %d: %v", len(s.calls), s.calls)
	}
}

func TestSolveEscalatesThroughAllTiers(t *testing.T) {
	e := escalation.New()
	s := &stubSolver{confidences: map[resolvetypes.SearchLevel]float64{
		resolvetypes.LevelLocal:    0.1,
		resolvetypes.LevelLongTerm: 0.2,
		resolvetypes.LevelHouse:    0.3,
		resolvetypes.LevelMentor:   0.4,
		resolvetypes.LevelEther:    0.6,
	}}
	sol, _ := e.Solve(context.Background(), s, resolvetypes.Problem{Description: "x"})
	if sol.SourceLevel != resolvetypes.LevelEther {
		t.Fatalf("want Ether as final level, got %s", sol.SourceLevel)
	}
	want := []resolvetypes.SearchLevel{
		resolvetypes.LevelLocal, resolvetypes.LevelLongTerm, resolvetypes.LevelHouse,
		resolvetypes.LevelMentor, resolvetypes.LevelEther,
	}
	if len(s.calls) != len(want) {
		t.Fatalf("want %d calls, got %d", len(want), len(s.calls))
	}
	for i, lvl := range want {
		if s.calls[i] != lvl {
			t.Fatalf("call %d: want %s, got %s", i, lvl, s.calls[i])
		}
	}
}

func TestSolveReturnsBestOnExhaustion(t *testing.T) {
	e := escalation.New()
	s := &stubSolver{confidences: map[resolvetypes.SearchLevel]float64{
		resolvetypes.LevelLocal:    0.2,
		resolvetypes.LevelLongTerm: 0.5,
		resolvetypes.LevelHouse:    0.3,
		resolvetypes.LevelMentor:   0.1,
		resolvetypes.LevelEther:    0.4,
	}}
	sol, _ := e.Solve(context.Background(), s, resolvetypes.Problem{Description: "x"})
	if sol.SourceLevel != resolvetypes.LevelEther {
		t.Fatalf("ties/final broken by latest-tier-wins among non-winners only if equal; want Ether (last), got %s", sol.SourceLevel)
	}
}

func TestSolveTracksPath(t *testing.T) {
	e := escalation.WithConfig(0.85, 5, true)
	s := &stubSolver{confidences: map[resolvetypes.SearchLevel]float64{
		resolvetypes.LevelLocal: 0.95,
	}}
	_, path := e.Solve(context.Background(), s, resolvetypes.Problem{Description: "x"})
	if path == nil {
		t.Fatal("want non-nil path when tracking enabled")
	}
	if len(path.LevelsAttempted) != 1 || path.LevelsAttempted[0] != resolvetypes.LevelLocal {
		t.Fatalf("unexpected levels attempted: %v", path.LevelsAttempted)
	}
	if !path.ThresholdMet {
		t.Fatal("want ThresholdMet true")
	}
}

func TestShouldEscalate(t *testing.T) {
	e := escalation.New()
	if !e.ShouldEscalate(0.5, 1) {
		t.Fatal("want escalate: below threshold, below max level")
	}
	if e.ShouldEscalate(0.9, 1) {
		t.Fatal("want no escalate: above threshold")
	}
	if e.ShouldEscalate(0.1, 5) {
		t.Fatal("want no escalate: at max level")
	}
}

func TestNextLevelRespectsMaxLevel(t *testing.T) {
	e := escalation.WithConfig(0.85, 2, false)
	if _, ok := e.NextLevel(resolvetypes.LevelLocal); !ok {
		t.Fatal("want a next level from Local when MaxLevel=2")
	}
	if _, ok := e.NextLevel(resolvetypes.LevelLongTerm); ok {
		t.Fatal("want no next level once MaxLevel reached")
	}
}

func TestTimeoutForLevelDefaults(t *testing.T) {
	e := escalation.New()
	if e.TimeoutForLevel(resolvetypes.LevelLocal) != 50*time.Millisecond {
		t.Fatalf("want 50ms for Local, got %s", e.TimeoutForLevel(resolvetypes.LevelLocal))
	}
	if e.TimeoutForLevel(resolvetypes.LevelMentor) != 100*time.Millisecond {
		t.Fatalf("want 100ms for Mentor, got %s", e.TimeoutForLevel(resolvetypes.LevelMentor))
	}
}

func TestTierTimeoutYieldsZeroConfidence(t *testing.T) {
	e := escalation.WithConfig(0.85, 1, false)
	e.LevelTimeouts[0] = 5 * time.Millisecond
	s := &slowSolver{delay: 50 * time.Millisecond}
	sol, _ := e.Solve(context.Background(), s, resolvetypes.Problem{Description: "x"})
	if sol.Confidence != 0 {
		t.Fatalf("want zero confidence on timeout, got %f", sol.Confidence)
	}
	if sol.SourceLevel != resolvetypes.LevelLocal {
		t.Fatalf("want source level Local even on timeout, got %s", sol.SourceLevel)
	}
}

type slowSolver struct{ delay time.Duration }

func (s *slowSolver) MatchLocal(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution {
	time.Sleep(s.delay)
	return resolvetypes.Solution{Confidence: 0.99, SourceLevel: resolvetypes.LevelLocal}
}
func (s *slowSolver) MatchLongTerm(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution {
	return resolvetypes.Solution{}
}
func (s *slowSolver) MatchHouse(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution {
	return resolvetypes.Solution{}
}
func (s *slowSolver) QueryMentor(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution {
	return resolvetypes.Solution{}
}
func (s *slowSolver) QueryEther(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution {
	return resolvetypes.Solution{}
}
