package dht

import (
	"encoding/json"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

// messageType is the frame's tagged-union discriminator, matching the
// wire vocabulary byte-for-byte (SCREAMING_SNAKE_CASE).
type messageType string

const (
	typePing             messageType = "PING"
	typePong             messageType = "PONG"
	typeFindNode         messageType = "FIND_NODE"
	typeFindNodeResponse messageType = "FIND_NODE_RESPONSE"
	typeStore            messageType = "STORE"
	typeStoreResponse    messageType = "STORE_RESPONSE"
	typeFindValue        messageType = "FIND_VALUE"
	typeFindValueResponse messageType = "FIND_VALUE_RESPONSE"
)

// frame is the envelope every message is wrapped in. Payload carries one
// of the *Request/*Response structs below, JSON-marshaled (the spec
// permits JSON framing for test harnesses; this implementation uses it
// uniformly since the UDP datagram boundary already supplies the
// length-prefix the spec calls optional).
type frame struct {
	Type    messageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type pingRequest struct {
	RequestID  string             `json:"request_id"`
	SenderID   resolvetypes.NodeID `json:"sender_id"`
	SenderAddr string             `json:"sender_addr"`
}

type pongResponse struct {
	RequestID string             `json:"request_id"`
	NodeID    resolvetypes.NodeID `json:"node_id"`
	NodeAddr  string             `json:"node_addr"`
}

type findNodeRequest struct {
	RequestID  string             `json:"request_id"`
	SenderID   resolvetypes.NodeID `json:"sender_id"`
	SenderAddr string             `json:"sender_addr"`
	TargetID   resolvetypes.NodeID `json:"target_id"`
}

type findNodeResponse struct {
	RequestID string                   `json:"request_id"`
	NodeID    resolvetypes.NodeID       `json:"node_id"`
	Nodes     []resolvetypes.NodeInfo `json:"nodes"`
}

type storeRequest struct {
	RequestID  string              `json:"request_id"`
	SenderID   resolvetypes.NodeID `json:"sender_id"`
	SenderAddr string              `json:"sender_addr"`
	PatternID  string              `json:"pattern_id"`
	Pattern    resolvetypes.Pattern `json:"pattern"`
	TTLSeconds int64               `json:"ttl_seconds"`
}

type storeResponse struct {
	RequestID string             `json:"request_id"`
	NodeID    resolvetypes.NodeID `json:"node_id"`
	Success   bool               `json:"success"`
	Error     string             `json:"error,omitempty"`
}

type findValueRequest struct {
	RequestID  string             `json:"request_id"`
	SenderID   resolvetypes.NodeID `json:"sender_id"`
	SenderAddr string             `json:"sender_addr"`
	PatternID  string             `json:"pattern_id"`
}

type findValueResult struct {
	Status      string                  `json:"status"` // "found" | "not_found"
	Pattern     *resolvetypes.Pattern   `json:"pattern,omitempty"`
	CloserNodes []resolvetypes.NodeInfo `json:"closer_nodes,omitempty"`
}

type findValueResponse struct {
	RequestID string             `json:"request_id"`
	NodeID    resolvetypes.NodeID `json:"node_id"`
	Result    findValueResult    `json:"result"`
}
