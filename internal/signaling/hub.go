// Package signaling pairs two peers through short-lived numeric codes and
// relays opaque negotiation messages between them. The hub never interprets
// relayed payloads; peers use the channel to exchange transfer ids,
// manifests and session negotiation end to end.
package signaling

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/dropwire/dropwire/internal/errdefs"
	"github.com/dropwire/dropwire/internal/manifest"
)

// Roles recognized on the pairing channel.
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// Pairing code lifecycle: waiting until both roles connect, then paired.
// A code never reverts to waiting.
const (
	StatusWaiting = "waiting"
	StatusPaired  = "paired"
)

// Frame types the hub itself emits. Anything else on the wire is an
// application frame relayed verbatim.
const (
	FrameConnected        = "connected"
	FramePeerConnected    = "peer_connected"
	FramePeerDisconnected = "peer_disconnected"
	FrameError            = "error"
)

// Frame is a hub-emitted control message. The manifest rides along only on
// the receiver's peer_connected notification.
type Frame struct {
	Type     string             `json:"type"`
	Role     string             `json:"role,omitempty"`
	PeerRole string             `json:"peer_role,omitempty"`
	PairCode string             `json:"pair_code,omitempty"`
	Message  string             `json:"message,omitempty"`
	Manifest *manifest.Manifest `json:"manifest,omitempty"`
}

// Conn is the write side of a peer connection. Implementations must be
// safe for concurrent writes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// PairInfo is the public view of a pairing code.
type PairInfo struct {
	PairCode   string             `json:"pair_code"`
	TransferID string             `json:"transfer_id"`
	Manifest   *manifest.Manifest `json:"manifest"`
	Status     string             `json:"status"`
	ExpiresIn  int64              `json:"expires_in"`
}

// Stats summarizes hub state.
type Stats struct {
	ActivePairs       int `json:"active_pairs"`
	TotalPairCodes    int `json:"total_pair_codes"`
	ActiveConnections int `json:"active_connections"`
}

type pairEntry struct {
	transferID string
	manifest   *manifest.Manifest
	createdAt  time.Time
	status     string
}

type room struct {
	conns map[string]Conn
}

// Hub owns the pairing-code and room tables. All mutations go through one
// mutex; writes to peer connections always happen outside it so a slow or
// dead peer never stalls unrelated rooms.
type Hub struct {
	mu    sync.Mutex
	codes map[string]*pairEntry
	rooms map[string]*room

	codeLen int
	ttl     time.Duration

	now  func() time.Time
	rand *rand.Rand
}

// NewHub creates a hub issuing codes of codeLen digits that expire after ttl.
func NewHub(codeLen int, ttl time.Duration) *Hub {
	return &Hub{
		codes:   make(map[string]*pairEntry),
		rooms:   make(map[string]*room),
		codeLen: codeLen,
		ttl:     ttl,
		now:     time.Now,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// purgeExpiredLocked drops codes past their TTL and their rooms. Expiry is
// opportunistic: it runs on issue, info and stats lookups, not on a timer,
// so a stale code may linger in storage but is never served once looked up.
func (h *Hub) purgeExpiredLocked() {
	cutoff := h.now().Add(-h.ttl)
	for code, entry := range h.codes {
		if entry.createdAt.Before(cutoff) {
			delete(h.codes, code)
			delete(h.rooms, code)
		}
	}
}

func (h *Hub) generateCodeLocked() string {
	for {
		digits := make([]byte, h.codeLen)
		for i := range digits {
			digits[i] = byte('0' + h.rand.Intn(10))
		}
		code := string(digits)
		// Uniqueness only matters among currently live codes; the purge
		// above already removed expired ones.
		if _, taken := h.codes[code]; !taken {
			return code
		}
	}
}

// IssuePairCode mints a unique live code for a transfer and returns it with
// the full TTL.
func (h *Hub) IssuePairCode(transferID string, m *manifest.Manifest) (code string, expiresIn time.Duration, err error) {
	if transferID == "" || m == nil {
		return "", 0, errdefs.InvalidInput("transfer id and manifest are required")
	}
	if err := m.Validate(); err != nil {
		return "", 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.purgeExpiredLocked()
	code = h.generateCodeLocked()
	h.codes[code] = &pairEntry{
		transferID: transferID,
		manifest:   m,
		createdAt:  h.now(),
		status:     StatusWaiting,
	}
	return code, h.ttl, nil
}

// Info resolves a pairing code to its transfer metadata and remaining TTL.
func (h *Hub) Info(code string) (*PairInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.purgeExpiredLocked()
	entry, ok := h.codes[code]
	if !ok {
		return nil, errdefs.NotFound(errdefs.ReasonPairCodeUnknown, "pair code %s not found or expired", code)
	}

	remaining := h.ttl - h.now().Sub(entry.createdAt)
	if remaining < 0 {
		remaining = 0
	}
	return &PairInfo{
		PairCode:   code,
		TransferID: entry.transferID,
		Manifest:   entry.manifest,
		Status:     entry.status,
		ExpiresIn:  int64(remaining.Seconds()),
	}, nil
}

// Connect registers conn under role in the code's room. An unknown or
// expired code, or an unrecognized role, gets an error frame and a closed
// connection. A reconnect on the same role replaces the previous
// connection. When the opposite role is already present the code flips to
// paired and both sides get peer_connected; the receiver's frame carries
// the manifest so it need not re-fetch it.
func (h *Hub) Connect(code, role string, conn Conn) error {
	if role != RoleSender && role != RoleReceiver {
		failConn(conn, "Invalid role. Must be 'sender' or 'receiver'")
		return errdefs.InvalidInput("unrecognized role %q", role)
	}

	h.mu.Lock()
	h.purgeExpiredLocked()
	entry, ok := h.codes[code]
	if !ok {
		h.mu.Unlock()
		failConn(conn, "Invalid or expired pair code")
		return errdefs.NotFound(errdefs.ReasonPairCodeUnknown, "pair code %s not found or expired", code)
	}

	rm := h.rooms[code]
	if rm == nil {
		rm = &room{conns: make(map[string]Conn)}
		h.rooms[code] = rm
	}
	rm.conns[role] = conn

	peer := rm.conns[opposite(role)]
	var peerManifest *manifest.Manifest
	if peer != nil {
		entry.status = StatusPaired
		peerManifest = entry.manifest
	}
	h.mu.Unlock()

	// Sends happen outside the lock; a stuck peer must not block the tables.
	conn.WriteJSON(Frame{Type: FrameConnected, Role: role, PairCode: code})

	if peer != nil {
		sendPeerConnected := func(target Conn, targetRole string) {
			frame := Frame{Type: FramePeerConnected, PeerRole: opposite(targetRole)}
			if targetRole == RoleReceiver {
				frame.Manifest = peerManifest
			}
			target.WriteJSON(frame)
		}
		if role == RoleSender {
			sendPeerConnected(conn, RoleSender)
			sendPeerConnected(peer, RoleReceiver)
		} else {
			sendPeerConnected(peer, RoleSender)
			sendPeerConnected(conn, RoleReceiver)
		}
	}
	return nil
}

// Relay forwards a raw payload verbatim to the opposite role. When the peer
// is absent, or its connection turns out dead mid-write, the sender gets a
// "peer not connected" error frame instead.
func (h *Hub) Relay(code, role string, message json.RawMessage) {
	h.mu.Lock()
	var peer, self Conn
	if rm := h.rooms[code]; rm != nil {
		peer = rm.conns[opposite(role)]
		self = rm.conns[role]
	}
	h.mu.Unlock()

	if peer != nil {
		if err := peer.WriteJSON(message); err == nil {
			return
		}
	}
	if self != nil {
		self.WriteJSON(Frame{Type: FrameError, Message: "Peer not connected"})
	}
}

// Disconnect removes role's connection from the room, notifies a surviving
// peer, and drops the room entry the moment it is empty.
func (h *Hub) Disconnect(code, role string) {
	h.mu.Lock()
	var peer Conn
	if rm := h.rooms[code]; rm != nil {
		delete(rm.conns, role)
		peer = rm.conns[opposite(role)]
		if len(rm.conns) == 0 {
			delete(h.rooms, code)
		}
	}
	h.mu.Unlock()

	if peer != nil {
		peer.WriteJSON(Frame{Type: FramePeerDisconnected, PeerRole: role})
	}
}

// Stats reports live pairing activity.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.purgeExpiredLocked()
	connections := 0
	for _, rm := range h.rooms {
		connections += len(rm.conns)
	}
	return Stats{
		ActivePairs:       len(h.rooms),
		TotalPairCodes:    len(h.codes),
		ActiveConnections: connections,
	}
}

func opposite(role string) string {
	if role == RoleSender {
		return RoleReceiver
	}
	return RoleSender
}

func failConn(conn Conn, msg string) {
	conn.WriteJSON(Frame{Type: FrameError, Message: msg})
	conn.Close()
}
