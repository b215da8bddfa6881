// Package escalation drives a Domain Agent through its tiered solve,
// escalating to the next tier whenever the previous one's confidence falls
// short of the configured threshold.
package escalation

import (
	"context"
	"time"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
	"github.com/rs/zerolog/log"
)

// Solver is the capability an Engine needs from a Domain Agent: one method
// per tier, each wrapped by the engine in its own deadline.
type Solver interface {
	MatchLocal(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution
	MatchLongTerm(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution
	MatchHouse(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution
	QueryMentor(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution
	QueryEther(ctx context.Context, p resolvetypes.Problem) resolvetypes.Solution
}

// defaultTimeouts are the per-level deadlines in ladder order: Local,
// LongTerm, House, Mentor, Ether.
var defaultTimeouts = []time.Duration{
	50 * time.Millisecond,
	50 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	100 * time.Millisecond,
}

// Engine configures and runs the tiered escalation ladder.
type Engine struct {
	ConfidenceThreshold float64
	MaxLevel            int // 1..5
	LevelTimeouts       []time.Duration
	EnableTracking      bool
}

// New returns an Engine with the spec's defaults: threshold 0.85, all five
// levels enabled, tracking off.
func New() *Engine {
	timeouts := make([]time.Duration, len(defaultTimeouts))
	copy(timeouts, defaultTimeouts)
	return &Engine{
		ConfidenceThreshold: 0.85,
		MaxLevel:            5,
		LevelTimeouts:       timeouts,
		EnableTracking:      false,
	}
}

// WithConfig returns an Engine with explicit threshold, max level (clamped
// to 1..5), and tracking flag, keeping the default per-level timeouts.
func WithConfig(threshold float64, maxLevel int, tracking bool) *Engine {
	e := New()
	e.ConfidenceThreshold = threshold
	if maxLevel < 1 {
		maxLevel = 1
	}
	if maxLevel > 5 {
		maxLevel = 5
	}
	e.MaxLevel = maxLevel
	e.EnableTracking = tracking
	return e
}

// ShouldEscalate reports whether confidence is short of threshold and
// currentLevel has not yet reached MaxLevel. A total, side-effect-free
// function of its inputs.
func (e *Engine) ShouldEscalate(confidence float64, currentLevel int) bool {
	return confidence < e.ConfidenceThreshold && currentLevel < e.MaxLevel
}

// NextLevel returns the tier after current, honoring MaxLevel; ok is false
// once current has reached MaxLevel or is unrecognized.
func (e *Engine) NextLevel(current resolvetypes.SearchLevel) (next resolvetypes.SearchLevel, ok bool) {
	n := resolvetypes.LevelNumber(current)
	if n == 0 || n >= e.MaxLevel {
		return "", false
	}
	return resolvetypes.NextLevel(current)
}

// TimeoutForLevel returns the configured deadline for level, or the last
// configured timeout if level is beyond the configured list (defensive;
// should not happen for level <= MaxLevel).
func (e *Engine) TimeoutForLevel(level resolvetypes.SearchLevel) time.Duration {
	n := resolvetypes.LevelNumber(level)
	if n == 0 {
		return 0
	}
	idx := n - 1
	if idx >= len(e.LevelTimeouts) {
		idx = len(e.LevelTimeouts) - 1
	}
	return e.LevelTimeouts[idx]
}

// Solve runs problem through s's tiers in ladder order, up to MaxLevel,
// returning the first Solution that meets ConfidenceThreshold, or the best
// one observed (ties broken by latest-tier-wins) once tiers are exhausted.
// If EnableTracking is set, a populated EscalationPath is also returned.
func (e *Engine) Solve(ctx context.Context, s Solver, problem resolvetypes.Problem) (resolvetypes.Solution, *resolvetypes.EscalationPath) {
	var path *resolvetypes.EscalationPath
	if e.EnableTracking {
		path = resolvetypes.NewEscalationPath()
	}

	var best resolvetypes.Solution
	haveBest := false
	level := resolvetypes.LevelLocal

	for i := 0; i < e.MaxLevel; i++ {
		start := time.Now()
		sol := e.invokeTier(ctx, s, level, problem)
		elapsed := time.Since(start)
		sol.Confidence = resolvetypes.Clamp(sol.Confidence)
		sol.SourceLevel = level

		if path != nil {
			path.RecordAttempt(level, sol.Confidence, elapsed)
		}

		// Ties broken by latest-tier-wins: >= keeps the newest best.
		if !haveBest || sol.Confidence >= best.Confidence {
			best = sol
			haveBest = true
		}

		if sol.Confidence >= e.ConfidenceThreshold {
			if path != nil {
				path.Finalize(level, true)
			}
			return best, path
		}

		next, ok := e.NextLevel(level)
		if !ok {
			break
		}
		level = next
	}

	if path != nil {
		path.Finalize(level, false)
	}
	return best, path
}

func (e *Engine) invokeTier(ctx context.Context, s Solver, level resolvetypes.SearchLevel, problem resolvetypes.Problem) resolvetypes.Solution {
	timeout := e.TimeoutForLevel(level)
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		sol resolvetypes.Solution
	}
	ch := make(chan result, 1)

	go func() {
		var sol resolvetypes.Solution
		switch level {
		case resolvetypes.LevelLocal:
			sol = s.MatchLocal(tctx, problem)
		case resolvetypes.LevelLongTerm:
			sol = s.MatchLongTerm(tctx, problem)
		case resolvetypes.LevelHouse:
			sol = s.MatchHouse(tctx, problem)
		case resolvetypes.LevelMentor:
			sol = s.QueryMentor(tctx, problem)
		case resolvetypes.LevelEther:
			sol = s.QueryEther(tctx, problem)
		}
		ch <- result{sol}
	}()

	select {
	case r := <-ch:
		return r.sol
	case <-tctx.Done():
		log.Debug().Str("level", string(level)).Dur("timeout", timeout).Msg("tier timed out")
		return resolvetypes.Solution{Confidence: 0, SourceLevel: level}
	}
}
