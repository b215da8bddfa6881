// Package engine wires the resolution pipeline's components (C1-C9) into
// one cohesive unit: a Network of domain Agents, a Calibrator, a Shared
// Knowledge Store, a Pattern Index, and — when configured — a
// Distributed Pattern Network node backing the outermost Ether tier.
package engine

import (
	"context"
	"time"

	"github.com/fathomly/resolver-engine/internal/agent"
	"github.com/fathomly/resolver-engine/internal/calibrator"
	"github.com/fathomly/resolver-engine/internal/dht"
	"github.com/fathomly/resolver-engine/internal/knowledge"
	"github.com/fathomly/resolver-engine/internal/network"
	"github.com/fathomly/resolver-engine/internal/patternindex"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
	"github.com/rs/zerolog/log"
)

// Engine is the single entry point the HTTP facade and any other caller
// drives: one Network of domain agents, backed by the Calibrator,
// Knowledge Store, Pattern Index, and (optionally) a DHT node.
type Engine struct {
	Network    *network.Network
	Calibrator calibrator.Calibrator
	Knowledge  knowledge.Store
	Patterns   *patternindex.Index
	DHT        *dht.Node
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithCalibrator overrides the default in-memory calibrator.
func WithCalibrator(c calibrator.Calibrator) Option {
	return func(e *Engine) { e.Calibrator = c }
}

// WithKnowledge overrides the default in-memory knowledge store.
func WithKnowledge(s knowledge.Store) Option {
	return func(e *Engine) { e.Knowledge = s }
}

// WithPatterns overrides the default pattern index.
func WithPatterns(idx *patternindex.Index) Option {
	return func(e *Engine) { e.Patterns = idx }
}

// WithDHT attaches a distributed pattern network node, wiring every
// domain agent's Ether tier to it. Seeding the routing table from peer
// addresses is done separately, by Bootstrap.
func WithDHT(node *dht.Node) Option {
	return func(e *Engine) { e.DHT = node }
}

// New builds an Engine with one Agent registered per declared domain,
// each wired to the shared Network for its Mentor tier and to the DHT
// (if configured) for its Ether tier.
func New(opts ...Option) (*Engine, error) {
	idx, err := patternindex.New()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Network:    network.New(),
		Calibrator: calibrator.NewMemory(),
		Knowledge:  knowledge.NewMemory(),
		Patterns:   idx,
	}
	for _, opt := range opts {
		opt(e)
	}

	// Built as a plain agent.Ether interface, left nil (not a nil *dht.Ether
	// boxed in a non-nil interface) when no DHT node is configured.
	var ether agent.Ether
	if e.DHT != nil {
		ether = dht.NewEther(e.DHT, e.Patterns)
	}

	for _, domain := range resolvetypes.Domains {
		a := agent.New(domain, e.Network, ether)
		if err := e.Network.Register(a); err != nil {
			return nil, err
		}
	}

	log.Info().Int("domains", len(resolvetypes.Domains)).Bool("dht_enabled", e.DHT != nil).Msg("resolution engine initialized")
	return e, nil
}

// Solve classifies and resolves problem through the agent network's full
// escalation ladder.
func (e *Engine) Solve(ctx context.Context, problem resolvetypes.Problem) (resolvetypes.Solution, error) {
	return e.Network.Route(ctx, problem)
}

// RecordCalibration records one observed (claimed, actual) pair.
func (e *Engine) RecordCalibration(ctx context.Context, claimed float64, actual bool, content, task, agentName string, domain resolvetypes.Domain, factors map[string]string) (string, error) {
	return e.Calibrator.Record(ctx, claimed, actual, content, task, agentName, domain, factors)
}

// CalibrationStatistics reports accuracy/Brier/calibration-error for the
// given filter.
func (e *Engine) CalibrationStatistics(ctx context.Context, f calibrator.Filter) (resolvetypes.CalibrationStatistics, error) {
	return e.Calibrator.Statistics(ctx, f)
}

// AdjustmentFactor returns the confidence-adjustment multiplier for the
// given filter.
func (e *Engine) AdjustmentFactor(ctx context.Context, f calibrator.Filter) (float64, error) {
	return e.Calibrator.AdjustmentFactor(ctx, f)
}

// InsertDiscovery adds a new piece of shared knowledge.
func (e *Engine) InsertDiscovery(ctx context.Context, d resolvetypes.Discovery) error {
	return e.Knowledge.Insert(ctx, d)
}

// GetDiscovery looks up a discovery by id.
func (e *Engine) GetDiscovery(ctx context.Context, id string) (*resolvetypes.Discovery, error) {
	return e.Knowledge.GetByID(ctx, id)
}

// QueryDiscoveries runs a filtered query over the knowledge store.
func (e *Engine) QueryDiscoveries(ctx context.Context, f knowledge.Filter) ([]resolvetypes.Discovery, error) {
	return e.Knowledge.Query(ctx, f)
}

// IncrementDiscoveryReferences bumps a discovery's reference count.
func (e *Engine) IncrementDiscoveryReferences(ctx context.Context, id string) error {
	return e.Knowledge.IncrementReferences(ctx, id)
}

// MarkDiscoveryValidated flips a discovery's validated flag.
func (e *Engine) MarkDiscoveryValidated(ctx context.Context, id string) error {
	return e.Knowledge.MarkValidated(ctx, id)
}

// KnowledgeStatistics summarizes the knowledge store's contents.
func (e *Engine) KnowledgeStatistics(ctx context.Context) (knowledge.Statistics, error) {
	return e.Knowledge.Statistics(ctx)
}

// SearchPatterns ranks patterns against a free-text query.
func (e *Engine) SearchPatterns(ctx context.Context, query string, matchCtx *resolvetypes.MatchContext) ([]patternindex.PatternMatch, error) {
	return e.Patterns.SearchByIntent(ctx, query, matchCtx)
}

// AddPattern inserts a new pattern into the index, and — when a DHT node
// is configured — replicates it to the K nodes closest to its key.
func (e *Engine) AddPattern(ctx context.Context, p resolvetypes.Pattern) (resolvetypes.Pattern, error) {
	out, err := e.Patterns.AddPattern(ctx, p)
	if err != nil {
		return out, err
	}
	if e.DHT != nil {
		if _, err := e.DHT.Replicate(ctx, out.ID, out, 0); err != nil {
			log.Warn().Err(err).Str("pattern_id", out.ID).Msg("pattern replication failed")
		}
	}
	return out, nil
}

// RebuildPatterns reindexes from the pattern index's configured source
// directory.
func (e *Engine) RebuildPatterns(ctx context.Context) error {
	return e.Patterns.Rebuild(ctx)
}

// RecordPatternUsage increments a pattern's usage count.
func (e *Engine) RecordPatternUsage(ctx context.Context, patternID string, confidence float64) error {
	return e.Patterns.RecordUsage(ctx, patternID, confidence)
}

// PatternStatistics summarizes the pattern index.
func (e *Engine) PatternStatistics(ctx context.Context) (patternindex.Statistics, error) {
	return e.Patterns.Statistics(ctx)
}

// Bootstrap pings each address in peers and adds the responding nodes to
// the DHT's routing table. A no-op if no DHT node is configured.
func (e *Engine) Bootstrap(ctx context.Context, peers []string) {
	if e.DHT == nil {
		return
	}
	for _, addr := range peers {
		pctx, cancel := context.WithTimeout(ctx, dht.RPCTimeout)
		info, err := e.DHT.Ping(pctx, resolvetypes.NodeInfo{Address: addr, LastSeen: time.Now()})
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("peer", addr).Msg("dht bootstrap ping failed")
			continue
		}
		e.DHT.Routing.AddNode(info)
		log.Info().Str("peer", addr).Msg("dht bootstrap peer added")
	}
}
