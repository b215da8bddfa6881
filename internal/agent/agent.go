// Package agent implements the Domain Agent (C4): a single concrete type,
// data-driven per domain, that satisfies escalation.Solver. Rather than a
// class hierarchy with one type per domain, specialization comes from the
// seed pattern library and keyword table each instance is constructed with
// — the same "one concrete type, capability checked at the edges" shape
// the control plane uses for its provider drivers.
package agent

import (
	"context"
	"strings"
	"sync"

	"github.com/fathomly/resolver-engine/internal/escalation"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

// SessionCapacity is the default bound on an agent's session history (S in
// spec.md §4.3).
const SessionCapacity = 20

// Mentor is the capability an Agent needs from the Agent Network to answer
// its Mentor tier: route this problem to a peer agent.
type Mentor interface {
	MentorQuery(ctx context.Context, requestingDomain resolvetypes.Domain, problem resolvetypes.Problem) (resolvetypes.Solution, error)
}

// Ether is the capability an Agent needs from the distributed pattern
// network to answer its Ether tier.
type Ether interface {
	FindSolution(ctx context.Context, problem resolvetypes.Problem) (resolvetypes.Solution, error)
}

type historyEntry struct {
	problem  resolvetypes.Problem
	solution resolvetypes.Solution
}

// Agent is one domain's resolver: session + decision history, a seed
// pattern library, a keyword table, and handles onto the network and DHT
// for its Mentor and Ether tiers.
type Agent struct {
	domain              resolvetypes.Domain
	confidenceThreshold float64 // 0 means "use the engine's default"

	mu              sync.Mutex
	sessionHistory  []historyEntry
	decisionHistory []historyEntry

	patterns []pattern
	keywords []string

	mentor Mentor
	ether  Ether
}

// New constructs an Agent for domain, wired to mentor and ether
// collaborators. Either may be nil; the corresponding tier then degrades
// to a zero-confidence Solution rather than erroring, per spec.md §4.3.
func New(domain resolvetypes.Domain, mentor Mentor, ether Ether) *Agent {
	return &Agent{
		domain:   domain,
		patterns: seedPatterns[domain],
		keywords: domainKeywords[domain],
		mentor:   mentor,
		ether:    ether,
	}
}

// Domain returns the agent's owning domain.
func (a *Agent) Domain() resolvetypes.Domain { return a.domain }

// Solve runs problem through e's escalation ladder against this agent,
// then records the outcome into session/decision history when it was
// produced by this agent's own tiers (Local/LongTerm/House).
func (a *Agent) Solve(ctx context.Context, e *escalation.Engine, problem resolvetypes.Problem) (resolvetypes.Solution, *resolvetypes.EscalationPath) {
	sol, path := e.Solve(ctx, a, problem)
	a.RecordSolve(problem, sol)
	return sol, path
}

// SetConfidenceThreshold overrides the engine-default threshold for this
// agent specifically. A value of 0 restores "use the engine default".
func (a *Agent) SetConfidenceThreshold(t float64) { a.confidenceThreshold = t }

// ConfidenceThreshold returns the agent's override, or 0.85 if unset.
func (a *Agent) ConfidenceThreshold() float64 {
	if a.confidenceThreshold > 0 {
		return a.confidenceThreshold
	}
	return 0.85
}

// RecordSolve appends (problem, solution) to both histories when the
// solution's source_level is Local, LongTerm, or House — i.e. was
// produced by this agent itself. Solutions whose source_level is Mentor
// or Ether are received from elsewhere and are not recorded here, per the
// recording policy in spec.md §4.3.
func (a *Agent) RecordSolve(problem resolvetypes.Problem, solution resolvetypes.Solution) {
	switch solution.SourceLevel {
	case resolvetypes.LevelLocal, resolvetypes.LevelLongTerm, resolvetypes.LevelHouse:
	default:
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := historyEntry{problem: problem, solution: solution}
	a.decisionHistory = append(a.decisionHistory, entry)

	a.sessionHistory = append(a.sessionHistory, entry)
	if len(a.sessionHistory) > SessionCapacity {
		excess := len(a.sessionHistory) - SessionCapacity
		a.sessionHistory = a.sessionHistory[excess:]
	}
}

// SessionHistoryLen and DecisionHistoryLen exist for tests (S4: FIFO
// eviction bookkeeping).
func (a *Agent) SessionHistoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessionHistory)
}

func (a *Agent) DecisionHistoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.decisionHistory)
}

// OldestSessionDescription returns the description of the i-th oldest
// surviving session entry, for S4-style assertions.
func (a *Agent) OldestSessionDescription(i int) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= len(a.sessionHistory) {
		return ""
	}
	return a.sessionHistory[i].problem.Description
}

// ── Tier 1: Local ────────────────────────────────────────────────────

// MatchLocal scans the session history newest-to-oldest for a
// case-insensitive, either-direction substring match against problem's
// description.
func (a *Agent) MatchLocal(ctx context.Context, problem resolvetypes.Problem) resolvetypes.Solution {
	a.mu.Lock()
	history := make([]historyEntry, len(a.sessionHistory))
	copy(history, a.sessionHistory)
	a.mu.Unlock()

	if len(history) == 0 {
		return resolvetypes.Solution{
			Recommendation: "no session history yet for this agent",
			Reasoning:      []string{"empty local history"},
			Confidence:     0,
			SourceLevel:    resolvetypes.LevelLocal,
		}
	}

	needle := strings.ToLower(problem.Description)
	for i := len(history) - 1; i >= 0; i-- {
		past := strings.ToLower(history[i].problem.Description)
		if strings.Contains(needle, past) || strings.Contains(past, needle) {
			return resolvetypes.Solution{
				Recommendation: "recent: " + history[i].solution.Recommendation,
				Reasoning:      []string{"matched a recent session-history entry by substring containment"},
				Confidence:     0.93,
				SourceLevel:    resolvetypes.LevelLocal,
			}
		}
	}

	return resolvetypes.Solution{
		Recommendation: "no matching recent session found",
		Reasoning:      []string{"session history present but no containment match"},
		Confidence:     0.3,
		SourceLevel:    resolvetypes.LevelLocal,
	}
}

// ── Tier 2: Long-term ────────────────────────────────────────────────

// MatchLongTerm scans the unbounded decision history for the best
// similarity match: containment scores 0.7/0.8, otherwise word-overlap
// ratio.
func (a *Agent) MatchLongTerm(ctx context.Context, problem resolvetypes.Problem) resolvetypes.Solution {
	a.mu.Lock()
	history := make([]historyEntry, len(a.decisionHistory))
	copy(history, a.decisionHistory)
	a.mu.Unlock()

	needle := strings.ToLower(problem.Description)
	needleTokens := strings.Fields(needle)

	bestSim := -1.0
	var bestEntry historyEntry
	found := false

	for _, e := range history {
		past := strings.ToLower(e.problem.Description)
		var sim float64
		switch {
		case strings.Contains(past, needle):
			sim = 0.8
		case strings.Contains(needle, past):
			sim = 0.7
		default:
			sim = wordOverlap(needleTokens, past)
		}
		if sim > bestSim {
			bestSim = sim
			bestEntry = e
			found = true
		}
	}

	if found && bestSim > 0.5 {
		confidence := 0.4
		if c := bestSim * 0.8; c > confidence {
			confidence = c
		}
		return resolvetypes.Solution{
			Recommendation: bestEntry.solution.Recommendation,
			Reasoning:      []string{"best long-term similarity match from decision history"},
			Confidence:     resolvetypes.Clamp(confidence),
			SourceLevel:    resolvetypes.LevelLongTerm,
		}
	}

	return resolvetypes.Solution{
		Recommendation: "no strong historical match; consider a domain-generic approach",
		Reasoning:      []string{"decision history present but no similarity above threshold"},
		Confidence:     0.45,
		SourceLevel:    resolvetypes.LevelLongTerm,
	}
}

func wordOverlap(needleTokens []string, past string) float64 {
	if len(needleTokens) == 0 {
		return 0
	}
	pastSet := make(map[string]bool)
	for _, t := range strings.Fields(past) {
		pastSet[t] = true
	}
	var shared int
	for _, t := range needleTokens {
		if pastSet[t] {
			shared++
		}
	}
	return float64(shared) / float64(max(1, len(needleTokens)))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ── Tier 3: House ────────────────────────────────────────────────────

// MatchHouse searches the domain's seed pattern library: a pattern
// matches if the lowercased problem description contains the lowercased
// title or one of its whitespace-separated sub-tokens.
func (a *Agent) MatchHouse(ctx context.Context, problem resolvetypes.Problem) resolvetypes.Solution {
	needle := strings.ToLower(problem.Description)

	for _, p := range a.patterns {
		title := strings.ToLower(p.title)
		if strings.Contains(needle, title) || titleTokenMatches(needle, title) {
			conf := resolvetypes.Clamp(p.baseConfidence * a.agentKeywordConfidence(problem))
			return resolvetypes.Solution{
				Recommendation: p.title + ": " + p.description,
				Reasoning:      []string{"matched a seed house pattern by title/token containment"},
				Confidence:     conf,
				SourceLevel:    resolvetypes.LevelHouse,
			}
		}
	}

	if len(a.patterns) > 0 {
		p := a.patterns[0]
		return resolvetypes.Solution{
			Recommendation: p.title + ": " + p.description,
			Reasoning:      []string{"generic match: no pattern title matched, falling back to the first seed pattern"},
			Confidence:     0.5,
			SourceLevel:    resolvetypes.LevelHouse,
		}
	}

	return resolvetypes.Solution{
		Recommendation: "no seed patterns configured for this domain",
		Reasoning:      []string{"empty pattern library"},
		Confidence:     0,
		SourceLevel:    resolvetypes.LevelHouse,
	}
}

func titleTokenMatches(needle, title string) bool {
	for _, tok := range strings.Fields(title) {
		if len(tok) > 2 && strings.Contains(needle, tok) {
			return true
		}
	}
	return false
}

// agentKeywordConfidence implements the per-domain keyword-presence bonus:
// base 0.3 + 0.2 per matched keyword (capped at +0.6), +0.15 if the
// problem's domain hints include this agent's domain, clamped to [0,1].
func (a *Agent) agentKeywordConfidence(problem resolvetypes.Problem) float64 {
	needle := strings.ToLower(problem.Description)

	matched := 0
	for _, kw := range a.keywords {
		if strings.Contains(needle, kw) {
			matched++
		}
	}
	bonus := 0.2 * float64(matched)
	if bonus > 0.6 {
		bonus = 0.6
	}

	conf := 0.3 + bonus
	for _, hint := range problem.DomainHints {
		if hint == a.domain {
			conf += 0.15
			break
		}
	}

	return resolvetypes.Clamp(conf)
}

// ── Tier 4: Mentor ───────────────────────────────────────────────────

// QueryMentor asks the Agent Network to route problem to a peer agent. If
// no mentor collaborator is wired, or the network reports no eligible
// peer, a zero-confidence Solution attributed to Mentor is returned — not
// an error, per spec.md §4.3.
func (a *Agent) QueryMentor(ctx context.Context, problem resolvetypes.Problem) resolvetypes.Solution {
	if a.mentor == nil {
		return resolvetypes.Solution{SourceLevel: resolvetypes.LevelMentor}
	}
	sol, err := a.mentor.MentorQuery(ctx, a.domain, problem)
	if err != nil {
		return resolvetypes.Solution{SourceLevel: resolvetypes.LevelMentor}
	}
	sol.SourceLevel = resolvetypes.LevelMentor
	return sol
}

// ── Tier 5: Ether ────────────────────────────────────────────────────

// QueryEther asks the distributed pattern network for a matching pattern.
func (a *Agent) QueryEther(ctx context.Context, problem resolvetypes.Problem) resolvetypes.Solution {
	if a.ether == nil {
		return resolvetypes.Solution{SourceLevel: resolvetypes.LevelEther}
	}
	sol, err := a.ether.FindSolution(ctx, problem)
	if err != nil {
		return resolvetypes.Solution{SourceLevel: resolvetypes.LevelEther}
	}
	sol.SourceLevel = resolvetypes.LevelEther
	return sol
}
