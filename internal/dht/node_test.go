package dht

import (
	"context"
	"testing"
	"time"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

func startNode(t *testing.T) *Node {
	t.Helper()
	n, err := NewNode("127.0.0.1:0")
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go n.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		n.Close()
	})
	return n
}

func TestPingRoundTrip(t *testing.T) {
	a := startNode(t)
	b := startNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	info, err := a.Ping(ctx, b.Info())
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != b.ID() {
		t.Fatalf("pong identified wrong node: got %x want %x", info.ID, b.ID())
	}
}

func TestFindNodeReturnsKnownPeers(t *testing.T) {
	a := startNode(t)
	b := startNode(t)
	c := startNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// A ping registers its sender in the recipient's routing table: a and c
	// both ping b, so b knows both.
	if _, err := a.Ping(ctx, b.Info()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Ping(ctx, b.Info()); err != nil {
		t.Fatal(err)
	}

	nodes, err := a.FindNode(ctx, b.Info(), c.ID())
	if err != nil {
		t.Fatal(err)
	}
	var sawC bool
	for _, n := range nodes {
		if n.ID == c.ID() {
			sawC = true
		}
	}
	if !sawC {
		t.Fatalf("expected b's FIND_NODE response to include c, got %+v", nodes)
	}
}

func TestStoreAndFindValueDirect(t *testing.T) {
	a := startNode(t)
	b := startNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	p := resolvetypes.Pattern{ID: "p1", Title: "retry with backoff", Content: "use exponential backoff"}
	if err := a.Store(ctx, b.Info(), "p1", p, 0); err != nil {
		t.Fatal(err)
	}

	found, closer, err := a.FindValue(ctx, b.Info(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil {
		t.Fatalf("expected pattern to be found, got closer nodes %+v", closer)
	}
	if found.Title != p.Title {
		t.Fatalf("want title %q, got %q", p.Title, found.Title)
	}
}

func TestFindValueNotFoundReturnsCloserNodes(t *testing.T) {
	a := startNode(t)
	b := startNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	found, _, err := a.FindValue(ctx, b.Info(), "missing-pattern")
	if err != nil {
		t.Fatal(err)
	}
	if found != nil {
		t.Fatalf("expected no pattern, got %+v", found)
	}
}

func TestIterativeFindValueAcrossHops(t *testing.T) {
	a := startNode(t)
	b := startNode(t)
	c := startNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// a knows b; b knows c; the pattern lives only on c.
	if _, err := a.Ping(ctx, b.Info()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Ping(ctx, b.Info()); err != nil {
		t.Fatal(err)
	}
	a.Routing.AddNode(b.Info())

	p := resolvetypes.Pattern{ID: "p2", Title: "circuit breaker", Content: "trip after N failures"}
	c.StoreLocal("p2", p, 0)

	found, err := a.IterativeFindValue(ctx, "p2")
	if err != nil {
		t.Fatalf("iterative find value: %v", err)
	}
	if found == nil || found.Title != p.Title {
		t.Fatalf("want pattern %q, got %+v", p.Title, found)
	}
}

func TestReplicateStoresLocallyEvenWithNoPeers(t *testing.T) {
	a := startNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	p := resolvetypes.Pattern{ID: "solo", Title: "solo pattern"}
	n, err := a.Replicate(ctx, "solo", p, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("want 1 successful store (local only), got %d", n)
	}
	if _, ok := a.lookupPattern("solo"); !ok {
		t.Fatal("expected pattern to be stored locally")
	}
}

func TestRoutingTableBucketCapacityAndEviction(t *testing.T) {
	var local resolvetypes.NodeID
	rt := NewRoutingTable(local, func(resolvetypes.NodeInfo) bool { return false }) // pinger always says dead

	// All of these share bucket 0 (first bit differs) by setting bit 7 of byte 0.
	mkID := func(b byte) resolvetypes.NodeID {
		var id resolvetypes.NodeID
		id[0] = 0x80 | b
		return id
	}

	for i := 0; i < K; i++ {
		rt.AddNode(resolvetypes.NodeInfo{ID: mkID(byte(i)), Address: "x"})
	}
	if rt.Count() != K {
		t.Fatalf("want %d nodes, got %d", K, rt.Count())
	}

	// One more should evict the head (since pinger reports it dead).
	evictor := mkID(byte(K))
	rt.AddNode(resolvetypes.NodeInfo{ID: evictor, Address: "y"})
	if rt.Count() != K {
		t.Fatalf("want bucket capped at %d, got %d", K, rt.Count())
	}

	closest := rt.FindClosest(evictor, K)
	var sawEvictor bool
	for _, n := range closest {
		if n.ID == evictor {
			sawEvictor = true
		}
	}
	if !sawEvictor {
		t.Fatal("expected newly added node to have evicted the dead head")
	}
}
