// Package network implements the Agent Network (C5): a concurrent
// Domain → Agent map plus mentor-query routing between peer agents.
package network

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathomly/resolver-engine/internal/agent"
	"github.com/fathomly/resolver-engine/internal/domainrouter"
	"github.com/fathomly/resolver-engine/internal/escalation"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
	"github.com/rs/zerolog/log"
)

// peerMaxLevel bounds a mentor query's internal escalation to the
// Local/LongTerm/House tiers only: a peer answering a mentor query must
// not itself escalate to Mentor or Ether, or two agents could ping-pong
// mentor queries indefinitely. This is the network's answer to spec.md
// §9's call to break the agent/network cyclic reference without a
// mutable-borrow violation: the peer is asked a bounded question, not
// handed a weak back-reference to recurse through.
const peerMaxLevel = 3

// Network holds one agent per domain and routes problems and mentor
// queries between them.
type Network struct {
	router *domainrouter.Router

	mu     sync.RWMutex
	agents map[resolvetypes.Domain]*agent.Agent

	routeEngine *escalation.Engine
	peerEngine  *escalation.Engine
}

// New returns an empty Network. Agents must be registered with Register
// before Route or MentorQuery can reach them.
func New() *Network {
	return &Network{
		router:      domainrouter.New(),
		agents:      make(map[resolvetypes.Domain]*agent.Agent),
		routeEngine: escalation.New(),
		peerEngine:  escalation.WithConfig(0.85, peerMaxLevel, false),
	}
}

// Register adds agent a under its own domain. Returns an InvalidArgument
// error if that domain already has a registered agent — the Go port
// replaces the original's panic-on-duplicate with an ordinary error
// result, per spec.md invariant 4.
func (n *Network) Register(a *agent.Agent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.agents[a.Domain()]; exists {
		return resolvetypes.NewInvalidArgument("agent already registered for domain " + string(a.Domain()))
	}
	n.agents[a.Domain()] = a
	log.Debug().Str("domain", string(a.Domain())).Msg("agent registered")
	return nil
}

// Lookup returns the agent registered for domain, if any. The returned
// pointer is safe to use concurrently with other readers and with
// Register: the map lookup itself is the only critical section.
func (n *Network) Lookup(domain resolvetypes.Domain) (*agent.Agent, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	a, ok := n.agents[domain]
	return a, ok
}

// AgentCount returns the number of registered agents.
func (n *Network) AgentCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.agents)
}

// Route classifies problem, looks up the primary domain's agent, and runs
// that agent's full escalation ladder (which may itself call back into
// Route via MentorQuery for its Mentor tier).
func (n *Network) Route(ctx context.Context, problem resolvetypes.Problem) (resolvetypes.Solution, error) {
	c := n.router.Classify(problem.Description)
	a, ok := n.Lookup(c.Domain)
	if !ok {
		return resolvetypes.Solution{}, resolvetypes.NewAgentUnavailable("no agent registered for domain " + string(c.Domain))
	}
	sol, _ := a.Solve(ctx, n.routeEngine, problem)
	return sol, nil
}

// MentorQuery implements agent.Mentor: it classifies problem, and if the
// classification equals requestingDomain, tries the first alternative
// domain that both differs from requestingDomain and has a registered
// agent. It never routes back to requestingDomain. The peer agent answers
// using only its Local/LongTerm/House tiers (see peerMaxLevel), so mentor
// queries cannot cycle between agents. The returned Solution is attributed
// to the Mentor tier.
func (n *Network) MentorQuery(ctx context.Context, requestingDomain resolvetypes.Domain, problem resolvetypes.Problem) (resolvetypes.Solution, error) {
	c := n.router.Classify(problem.Description)

	target := c.Domain
	if target == requestingDomain {
		target = ""
		for _, alt := range c.Alternatives {
			if alt.Domain == requestingDomain {
				continue
			}
			if _, ok := n.Lookup(alt.Domain); ok {
				target = alt.Domain
				break
			}
		}
		if target == "" {
			return resolvetypes.Solution{}, resolvetypes.NewAgentUnavailable("no eligible peer domain for mentor query from " + string(requestingDomain))
		}
	}

	if target == requestingDomain {
		return resolvetypes.Solution{}, resolvetypes.NewAgentUnavailable("refusing to route mentor query back to its origin domain")
	}

	peer, ok := n.Lookup(target)
	if !ok {
		return resolvetypes.Solution{}, resolvetypes.NewAgentUnavailable("no agent registered for peer domain " + string(target))
	}

	sol, _ := peer.Solve(ctx, n.peerEngine, problem)
	sol.SourceLevel = resolvetypes.LevelMentor
	return sol, nil
}

// Connection wraps one peer call with a timeout and an exponential
// backoff retry policy (100ms * 2^retry, per spec.md §4.4), delegated to
// github.com/cenkalti/backoff/v4 instead of a hand-rolled sleep loop.
type Connection struct {
	Timeout    time.Duration
	MaxRetries int

	retryCount int
}

// NewConnection returns a Connection with the spec defaults: 5s timeout,
// 5 max retries.
func NewConnection() *Connection {
	return &Connection{Timeout: 5 * time.Second, MaxRetries: 5}
}

// Reset clears the retry count between unrelated peer calls.
func (c *Connection) Reset() { c.retryCount = 0 }

// Call runs fn under Timeout, retrying on error up to MaxRetries times
// with a 100ms*2^retry backoff between attempts. After retries are
// exhausted, a resolvetypes TimeoutError is returned whose message
// carries the last error's text, whatever kind of failure that was.
func (c *Connection) Call(ctx context.Context, fn func(ctx context.Context) (resolvetypes.Solution, error)) (resolvetypes.Solution, error) {
	c.Reset()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.Multiplier = 2
	bo.RandomizationFactor = 0 // deterministic 100ms*2^retry schedule, no jitter
	bo.MaxElapsedTime = 0      // bounded by MaxRetries, not wall time

	var lastErr error
	for c.retryCount <= c.MaxRetries {
		cctx, cancel := context.WithTimeout(ctx, c.Timeout)
		sol, err := fn(cctx)
		cancel()

		if err == nil {
			return sol, nil
		}
		lastErr = err

		if c.retryCount >= c.MaxRetries {
			break
		}

		wait := bo.NextBackOff()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return resolvetypes.Solution{}, resolvetypes.NewTimeout("connection cancelled during backoff", c.Timeout)
		}
		c.retryCount++
	}

	return resolvetypes.Solution{}, resolvetypes.NewTimeout(
		"peer call exhausted retries after "+strconv.Itoa(c.MaxRetries)+" retries: "+errString(lastErr),
		c.Timeout,
	)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
