package dht

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
	"golang.org/x/sync/errgroup"
)

// candidateSet tracks nodes seen during an iterative lookup, sorted by
// ascending XOR distance to target, with a queried/not-queried flag per
// entry.
type candidateSet struct {
	mu      sync.Mutex
	target  resolvetypes.NodeID
	seen    map[resolvetypes.NodeID]bool
	ordered []resolvetypes.NodeInfo
	queried map[resolvetypes.NodeID]bool
}

func newCandidateSet(target resolvetypes.NodeID, seed []resolvetypes.NodeInfo) *candidateSet {
	cs := &candidateSet{
		target:  target,
		seen:    make(map[resolvetypes.NodeID]bool),
		queried: make(map[resolvetypes.NodeID]bool),
	}
	cs.addLocked(seed)
	return cs
}

func (cs *candidateSet) addLocked(nodes []resolvetypes.NodeInfo) {
	for _, n := range nodes {
		if cs.seen[n.ID] {
			continue
		}
		cs.seen[n.ID] = true
		cs.ordered = append(cs.ordered, n)
	}
	sort.Slice(cs.ordered, func(i, j int) bool {
		return less(Distance(cs.ordered[i].ID, cs.target), Distance(cs.ordered[j].ID, cs.target))
	})
}

func (cs *candidateSet) add(nodes []resolvetypes.NodeInfo) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.addLocked(nodes)
}

// nextBatch returns up to alpha not-yet-queried candidates, closest
// first, and marks them queried.
func (cs *candidateSet) nextBatch(alpha int) []resolvetypes.NodeInfo {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	var batch []resolvetypes.NodeInfo
	for _, n := range cs.ordered {
		if len(batch) >= alpha {
			break
		}
		if cs.queried[n.ID] {
			continue
		}
		cs.queried[n.ID] = true
		batch = append(batch, n)
	}
	return batch
}

func (cs *candidateSet) closest(n int) []resolvetypes.NodeInfo {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.ordered) > n {
		return append([]resolvetypes.NodeInfo(nil), cs.ordered[:n]...)
	}
	return append([]resolvetypes.NodeInfo(nil), cs.ordered...)
}

// IterativeFindNode runs the Kademlia node lookup: starting from the
// Alpha closest known candidates, fire FIND_NODE at Alpha unqueried
// candidates per round in parallel, merge results, and stop once a round
// adds no closer node than the current closest K.
func (n *Node) IterativeFindNode(ctx context.Context, target resolvetypes.NodeID) []resolvetypes.NodeInfo {
	seed := n.Routing.FindClosest(target, K)
	cs := newCandidateSet(target, seed)

	for {
		batch := cs.nextBatch(Alpha)
		if len(batch) == 0 {
			break
		}

		before := cs.closest(K)
		g, gctx := errgroup.WithContext(ctx)
		for _, peer := range batch {
			peer := peer
			g.Go(func() error {
				rctx, cancel := context.WithTimeout(gctx, RPCTimeout)
				defer cancel()
				nodes, err := n.FindNode(rctx, peer, target)
				if err != nil {
					return nil // unresponsive peer: drop, not fatal to the lookup
				}
				cs.add(nodes)
				return nil
			})
		}
		_ = g.Wait()

		after := cs.closest(K)
		if !progressed(before, after, target) {
			break
		}
	}

	return cs.closest(K)
}

// IterativeFindValue runs the Kademlia value lookup: same fan-out as
// IterativeFindNode, but terminates early the moment any queried peer
// returns Found.
func (n *Node) IterativeFindValue(ctx context.Context, patternID string) (*resolvetypes.Pattern, error) {
	target := keyToNodeID(patternID)
	if p, ok := n.lookupPattern(patternID); ok {
		return &p, nil
	}

	seed := n.Routing.FindClosest(target, K)
	cs := newCandidateSet(target, seed)

	type found struct {
		pattern *resolvetypes.Pattern
	}
	foundCh := make(chan found, 1)

	for {
		batch := cs.nextBatch(Alpha)
		if len(batch) == 0 {
			break
		}

		before := cs.closest(K)
		g, gctx := errgroup.WithContext(ctx)
		for _, peer := range batch {
			peer := peer
			g.Go(func() error {
				rctx, cancel := context.WithTimeout(gctx, RPCTimeout)
				defer cancel()
				pattern, closer, err := n.FindValue(rctx, peer, patternID)
				if err != nil {
					return nil
				}
				if pattern != nil {
					select {
					case foundCh <- found{pattern}:
					default:
					}
					return nil
				}
				cs.add(closer)
				return nil
			})
		}
		_ = g.Wait()

		select {
		case f := <-foundCh:
			return f.pattern, nil
		default:
		}

		after := cs.closest(K)
		if !progressed(before, after, target) {
			break
		}
	}

	select {
	case f := <-foundCh:
		return f.pattern, nil
	default:
	}
	return nil, resolvetypes.NewNotFound("pattern " + patternID + " not found in the distributed pattern network")
}

func progressed(before, after []resolvetypes.NodeInfo, target resolvetypes.NodeID) bool {
	if len(after) == 0 {
		return false
	}
	if len(before) == 0 {
		return true
	}
	prev := make(map[resolvetypes.NodeID]bool, len(before))
	for _, b := range before {
		prev[b.ID] = true
	}
	for _, a := range after {
		if !prev[a.ID] {
			return true
		}
	}
	return false
}

// Replicate stores pattern under patternID on the K nodes closest to its
// derived key, fanned out in parallel. Per spec, "at least one" success
// suffices; individual STORE failures do not abort the others.
func (n *Node) Replicate(ctx context.Context, patternID string, pattern resolvetypes.Pattern, ttl time.Duration) (int, error) {
	target := keyToNodeID(patternID)
	n.StoreLocal(patternID, pattern, ttl)

	targets := n.IterativeFindNode(ctx, target)
	if len(targets) == 0 {
		return 1, nil // only the local copy exists; not an error by itself
	}

	var mu sync.Mutex
	successes := 1 // local store counts
	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range targets {
		peer := peer
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, RPCTimeout)
			defer cancel()
			if err := n.Store(rctx, peer, patternID, pattern, ttl); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return successes, nil
}
