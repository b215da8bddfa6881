// Package dht implements the Distributed Pattern Network (C9): a
// Kademlia-style routing table, a UDP RPC protocol (PING/FIND_NODE/
// STORE/FIND_VALUE), and an iterative lookup that finds and replicates
// patterns by XOR distance to a 256-bit node id.
package dht

import (
	"sort"
	"sync"
	"time"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

// K is the Kademlia bucket capacity and STORE replication factor.
const K = 20

// Alpha is the iterative-lookup fan-out.
const Alpha = 3

// RPCTimeout is the default deadline for a single outbound RPC.
const RPCTimeout = 5 * time.Second

// Distance returns the XOR distance between two ids, compared
// lexicographically as an unsigned integer by its caller.
func Distance(a, b resolvetypes.NodeID) resolvetypes.NodeID {
	var out resolvetypes.NodeID
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// less reports whether distance d1 is strictly less than d2, comparing
// byte-by-byte from the most significant end.
func less(d1, d2 resolvetypes.NodeID) bool {
	for i := range d1 {
		if d1[i] != d2[i] {
			return d1[i] < d2[i]
		}
	}
	return false
}

// leadingCommonBits returns the number of leading bits a and b share,
// used as the bucket index: a node at bucket i differs from local_id
// first at bit i.
func leadingCommonBits(a, b resolvetypes.NodeID) int {
	bits := 0
	for i := range a {
		x := a[i] ^ b[i]
		if x == 0 {
			bits += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if x&mask != 0 {
				return bits
			}
			bits++
		}
	}
	return bits
}

// Pinger checks whether a node is still alive; the routing table calls it
// only when a bucket is full and needs to decide whether to evict its
// least-recently-seen entry.
type Pinger func(info resolvetypes.NodeInfo) bool

// RoutingTable holds one k-bucket per bit of the local id (256 buckets).
// Each bucket keeps its entries in least-recently-seen-first order; the
// head is the eviction candidate.
type RoutingTable struct {
	mu      sync.Mutex
	localID resolvetypes.NodeID
	buckets [256][]resolvetypes.NodeInfo
	pinger  Pinger
}

// NewRoutingTable returns an empty table for localID. pinger may be nil,
// in which case a full bucket simply refuses new nodes (liveness cannot
// be checked, so the existing entry is kept).
func NewRoutingTable(localID resolvetypes.NodeID, pinger Pinger) *RoutingTable {
	return &RoutingTable{localID: localID, pinger: pinger}
}

// AddNode observes node, updating its bucket per the routing-table
// algorithm: move-to-tail if present, append if room, else ping the
// bucket head and evict it on failure.
func (rt *RoutingTable) AddNode(node resolvetypes.NodeInfo) {
	if node.ID == rt.localID {
		return
	}
	idx := leadingCommonBits(rt.localID, node.ID)
	if idx >= len(rt.buckets) {
		idx = len(rt.buckets) - 1
	}

	rt.mu.Lock()
	bucket := rt.buckets[idx]
	for i, n := range bucket {
		if n.ID == node.ID {
			bucket = append(bucket[:i], bucket[i+1:]...)
			bucket = append(bucket, node)
			rt.buckets[idx] = bucket
			rt.mu.Unlock()
			return
		}
	}
	if len(bucket) < K {
		rt.buckets[idx] = append(bucket, node)
		rt.mu.Unlock()
		return
	}
	head := bucket[0]
	pinger := rt.pinger
	rt.mu.Unlock()

	if pinger != nil && !pinger(head) {
		rt.mu.Lock()
		bucket = rt.buckets[idx]
		if len(bucket) > 0 && bucket[0].ID == head.ID {
			bucket = append(bucket[1:], node)
			rt.buckets[idx] = bucket
		}
		rt.mu.Unlock()
	}
}

// FindClosest returns up to n nodes from the entire table with minimum
// XOR distance to target, global across buckets.
func (rt *RoutingTable) FindClosest(target resolvetypes.NodeID, n int) []resolvetypes.NodeInfo {
	rt.mu.Lock()
	var all []resolvetypes.NodeInfo
	for _, bucket := range rt.buckets {
		all = append(all, bucket...)
	}
	rt.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return less(Distance(all[i].ID, target), Distance(all[j].ID, target))
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Count returns the total number of nodes tracked across every bucket.
func (rt *RoutingTable) Count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := 0
	for _, b := range rt.buckets {
		n += len(b)
	}
	return n
}
