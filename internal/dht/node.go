package dht

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxFrameSize = 16 * 1024

type storedPattern struct {
	pattern   resolvetypes.Pattern
	expiresAt time.Time // zero means permanent
}

// Node is one participant in the distributed pattern network: a UDP
// socket shared by the outbound client and the inbound server, a routing
// table, and a local key-value pattern store. Combining client and
// server onto one socket mirrors the RPC protocol's own design decision
// to keep routing-table and storage state shared rather than duplicated.
type Node struct {
	id      resolvetypes.NodeID
	addr    string
	conn    *net.UDPConn
	Routing *RoutingTable

	storeMu sync.Mutex
	storage map[string]storedPattern

	pending   sync.Map // request_id -> chan frame
	closeOnce sync.Once
	done      chan struct{}
}

// NewNode generates a random 256-bit id and binds a UDP socket at addr
// (e.g. "127.0.0.1:0" for an ephemeral port).
func NewNode(addr string) (*Node, error) {
	var id resolvetypes.NodeID
	if _, err := rand.Read(id[:]); err != nil {
		return nil, resolvetypes.NewProtocol("dht: generate node id", err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, resolvetypes.NewNetwork("dht: resolve listen address", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, resolvetypes.NewNetwork("dht: bind udp socket", err)
	}

	n := &Node{
		id:      id,
		addr:    conn.LocalAddr().String(),
		conn:    conn,
		storage: make(map[string]storedPattern),
		done:    make(chan struct{}),
	}
	n.Routing = NewRoutingTable(id, n.pingSync)
	return n, nil
}

// ID returns the node's identifier.
func (n *Node) ID() resolvetypes.NodeID { return n.id }

// Addr returns the local UDP address the node is bound to.
func (n *Node) Addr() string { return n.addr }

// Info returns this node as a wire-visible NodeInfo.
func (n *Node) Info() resolvetypes.NodeInfo {
	return resolvetypes.NodeInfo{ID: n.id, Address: n.addr, LastSeen: time.Now()}
}

// Serve runs the inbound receive loop until ctx is cancelled or Close is
// called. Malformed frames and socket read errors are logged and do not
// terminate the loop, per the protocol's "keep serving" requirement.
func (n *Node) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		n.Close()
	}()

	buf := make([]byte, maxFrameSize)
	for {
		size, raddr, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-n.done:
				return
			default:
			}
			log.Warn().Err(err).Msg("dht: udp read error")
			continue
		}
		payload := make([]byte, size)
		copy(payload, buf[:size])
		go n.handle(payload, raddr)
	}
}

// Close releases the socket. Safe to call more than once.
func (n *Node) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.done)
		err = n.conn.Close()
	})
	return err
}

func (n *Node) handle(raw []byte, raddr *net.UDPAddr) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		log.Warn().Err(err).Msg("dht: malformed frame")
		return
	}

	switch f.Type {
	case typePong, typeFindNodeResponse, typeStoreResponse, typeFindValueResponse:
		n.deliver(f)
		return
	}

	resp, ok := n.dispatch(f, raddr.String())
	if !ok {
		return
	}
	out, err := json.Marshal(resp)
	if err != nil {
		log.Warn().Err(err).Msg("dht: marshal response")
		return
	}
	if _, err := n.conn.WriteToUDP(out, raddr); err != nil {
		log.Warn().Err(err).Str("peer", raddr.String()).Msg("dht: send response")
	}
}

func (n *Node) deliver(f frame) {
	var requestID string
	switch f.Type {
	case typePong:
		var p pongResponse
		json.Unmarshal(f.Payload, &p)
		requestID = p.RequestID
	case typeFindNodeResponse:
		var p findNodeResponse
		json.Unmarshal(f.Payload, &p)
		requestID = p.RequestID
	case typeStoreResponse:
		var p storeResponse
		json.Unmarshal(f.Payload, &p)
		requestID = p.RequestID
	case typeFindValueResponse:
		var p findValueResponse
		json.Unmarshal(f.Payload, &p)
		requestID = p.RequestID
	}
	if ch, ok := n.pending.LoadAndDelete(requestID); ok {
		ch.(chan frame) <- f
	}
}

// dispatch routes one inbound request to its handler, adding the sender
// to the routing table first as every RPC handler must.
func (n *Node) dispatch(f frame, senderAddr string) (frame, bool) {
	switch f.Type {
	case typePing:
		var req pingRequest
		json.Unmarshal(f.Payload, &req)
		n.observe(req.SenderID, req.SenderAddr)
		return n.encode(typePong, pongResponse{RequestID: req.RequestID, NodeID: n.id, NodeAddr: n.addr}), true

	case typeFindNode:
		var req findNodeRequest
		json.Unmarshal(f.Payload, &req)
		n.observe(req.SenderID, req.SenderAddr)
		nodes := n.Routing.FindClosest(req.TargetID, K)
		return n.encode(typeFindNodeResponse, findNodeResponse{RequestID: req.RequestID, NodeID: n.id, Nodes: nodes}), true

	case typeStore:
		var req storeRequest
		json.Unmarshal(f.Payload, &req)
		n.observe(req.SenderID, req.SenderAddr)
		n.storePattern(req.PatternID, req.Pattern, req.TTLSeconds)
		return n.encode(typeStoreResponse, storeResponse{RequestID: req.RequestID, NodeID: n.id, Success: true}), true

	case typeFindValue:
		var req findValueRequest
		json.Unmarshal(f.Payload, &req)
		n.observe(req.SenderID, req.SenderAddr)
		if p, ok := n.lookupPattern(req.PatternID); ok {
			return n.encode(typeFindValueResponse, findValueResponse{
				RequestID: req.RequestID, NodeID: n.id,
				Result: findValueResult{Status: "found", Pattern: &p},
			}), true
		}
		target := keyToNodeID(req.PatternID)
		closer := n.Routing.FindClosest(target, K)
		return n.encode(typeFindValueResponse, findValueResponse{
			RequestID: req.RequestID, NodeID: n.id,
			Result: findValueResult{Status: "not_found", CloserNodes: closer},
		}), true
	}
	return frame{}, false
}

func (n *Node) observe(id resolvetypes.NodeID, addr string) {
	if addr == "" {
		return
	}
	n.Routing.AddNode(resolvetypes.NodeInfo{ID: id, Address: addr, LastSeen: time.Now()})
}

func (n *Node) encode(t messageType, payload interface{}) frame {
	raw, _ := json.Marshal(payload)
	return frame{Type: t, Payload: raw}
}

func (n *Node) storePattern(id string, p resolvetypes.Pattern, ttlSeconds int64) {
	var expires time.Time
	if ttlSeconds > 0 {
		expires = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	n.storeMu.Lock()
	n.storage[id] = storedPattern{pattern: p, expiresAt: expires}
	n.storeMu.Unlock()
}

func (n *Node) lookupPattern(id string) (resolvetypes.Pattern, bool) {
	n.storeMu.Lock()
	defer n.storeMu.Unlock()
	sp, ok := n.storage[id]
	if !ok {
		return resolvetypes.Pattern{}, false
	}
	if !sp.expiresAt.IsZero() && time.Now().After(sp.expiresAt) {
		delete(n.storage, id)
		return resolvetypes.Pattern{}, false
	}
	return sp.pattern, true
}

// keyToNodeID derives a routing key from a pattern id string via FNV-1a,
// spread across the 256-bit id space by writing the 64-bit hash into each
// 8-byte chunk and multiplying it by the FNV prime again before the next.
func keyToNodeID(s string) resolvetypes.NodeID {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	var h uint64 = offset64
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	var id resolvetypes.NodeID
	for i := 0; i < 32; i += 8 {
		for b := 0; b < 8; b++ {
			id[i+b] = byte(h >> (8 * b))
		}
		h *= prime64
	}
	return id
}

func (n *Node) pingSync(info resolvetypes.NodeInfo) bool {
	ctx, cancel := context.WithTimeout(context.Background(), RPCTimeout)
	defer cancel()
	_, err := n.Ping(ctx, info)
	return err == nil
}

// send transmits payload to addr and blocks until a correlated response
// frame arrives or ctx is done.
func (n *Node) send(ctx context.Context, addr string, t messageType, payload interface{}, requestID string) (frame, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return frame{}, resolvetypes.NewNetwork("dht: resolve peer address", err)
	}

	ch := make(chan frame, 1)
	n.pending.Store(requestID, ch)
	defer n.pending.Delete(requestID)

	out, err := json.Marshal(n.encode(t, payload))
	if err != nil {
		return frame{}, resolvetypes.NewProtocol("dht: marshal request", err)
	}
	if len(out) > maxFrameSize {
		return frame{}, resolvetypes.NewProtocol("dht: frame exceeds 16KiB", nil)
	}
	if _, err := n.conn.WriteToUDP(out, udpAddr); err != nil {
		return frame{}, resolvetypes.NewNetwork("dht: send request", err)
	}

	select {
	case f := <-ch:
		return f, nil
	case <-ctx.Done():
		return frame{}, resolvetypes.NewTimeout(fmt.Sprintf("dht: %s to %s", t, addr), RPCTimeout)
	}
}

// Ping sends a liveness check to peer and returns the round-trip error,
// if any.
func (n *Node) Ping(ctx context.Context, peer resolvetypes.NodeInfo) (resolvetypes.NodeInfo, error) {
	reqID := uuid.NewString()
	f, err := n.send(ctx, peer.Address, typePing, pingRequest{RequestID: reqID, SenderID: n.id, SenderAddr: n.addr}, reqID)
	if err != nil {
		return resolvetypes.NodeInfo{}, err
	}
	var pong pongResponse
	if err := json.Unmarshal(f.Payload, &pong); err != nil {
		return resolvetypes.NodeInfo{}, resolvetypes.NewProtocol("dht: decode PONG", err)
	}
	if pong.RequestID != reqID {
		return resolvetypes.NodeInfo{}, resolvetypes.NewProtocol("dht: PONG request_id mismatch", nil)
	}
	return resolvetypes.NodeInfo{ID: pong.NodeID, Address: pong.NodeAddr, LastSeen: time.Now()}, nil
}

// FindNode asks peer for the K nodes closest to target.
func (n *Node) FindNode(ctx context.Context, peer resolvetypes.NodeInfo, target resolvetypes.NodeID) ([]resolvetypes.NodeInfo, error) {
	reqID := uuid.NewString()
	f, err := n.send(ctx, peer.Address, typeFindNode, findNodeRequest{
		RequestID: reqID, SenderID: n.id, SenderAddr: n.addr, TargetID: target,
	}, reqID)
	if err != nil {
		return nil, err
	}
	var resp findNodeResponse
	if err := json.Unmarshal(f.Payload, &resp); err != nil {
		return nil, resolvetypes.NewProtocol("dht: decode FIND_NODE_RESPONSE", err)
	}
	if resp.RequestID != reqID {
		return nil, resolvetypes.NewProtocol("dht: FIND_NODE_RESPONSE request_id mismatch", nil)
	}
	return resp.Nodes, nil
}

// Store asks peer to replicate pattern under patternID with the given
// ttl (0 = permanent).
func (n *Node) Store(ctx context.Context, peer resolvetypes.NodeInfo, patternID string, pattern resolvetypes.Pattern, ttl time.Duration) error {
	reqID := uuid.NewString()
	f, err := n.send(ctx, peer.Address, typeStore, storeRequest{
		RequestID: reqID, SenderID: n.id, SenderAddr: n.addr,
		PatternID: patternID, Pattern: pattern, TTLSeconds: int64(ttl.Seconds()),
	}, reqID)
	if err != nil {
		return err
	}
	var resp storeResponse
	if err := json.Unmarshal(f.Payload, &resp); err != nil {
		return resolvetypes.NewProtocol("dht: decode STORE_RESPONSE", err)
	}
	if !resp.Success {
		return resolvetypes.NewProtocol("dht: store rejected: "+resp.Error, nil)
	}
	return nil
}

// FindValue asks peer for patternID: either the pattern itself, or the
// closer nodes it knows about.
func (n *Node) FindValue(ctx context.Context, peer resolvetypes.NodeInfo, patternID string) (*resolvetypes.Pattern, []resolvetypes.NodeInfo, error) {
	reqID := uuid.NewString()
	f, err := n.send(ctx, peer.Address, typeFindValue, findValueRequest{
		RequestID: reqID, SenderID: n.id, SenderAddr: n.addr, PatternID: patternID,
	}, reqID)
	if err != nil {
		return nil, nil, err
	}
	var resp findValueResponse
	if err := json.Unmarshal(f.Payload, &resp); err != nil {
		return nil, nil, resolvetypes.NewProtocol("dht: decode FIND_VALUE_RESPONSE", err)
	}
	if resp.RequestID != reqID {
		return nil, nil, resolvetypes.NewProtocol("dht: FIND_VALUE_RESPONSE request_id mismatch", nil)
	}
	if resp.Result.Status == "found" {
		return resp.Result.Pattern, nil, nil
	}
	return nil, resp.Result.CloserNodes, nil
}

// StoreLocal inserts pattern directly into this node's own storage,
// bypassing the wire protocol — used by Replicate for the local copy and
// by tests to seed a node.
func (n *Node) StoreLocal(patternID string, pattern resolvetypes.Pattern, ttl time.Duration) {
	n.storePattern(patternID, pattern, int64(ttl.Seconds()))
}
