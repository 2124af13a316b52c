package ws

import "sync"

// RegisteredPeer pairs a peer with its identity in a snapshot.
type RegisteredPeer struct {
	Peer Peer
	Info ConnInfo
}

// Registry is the single source of truth for who is listening in which
// room. One instance is created at process start and injected into every
// session; tests construct isolated instances.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int]map[Peer]ConnInfo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[int]map[Peer]ConnInfo)}
}

// Register adds a peer to a room. Registering an already-present peer
// replaces its identity record; the peer still occupies one slot.
func (r *Registry) Register(roomID int, p Peer, info ConnInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.rooms[roomID]
	if !ok {
		peers = make(map[Peer]ConnInfo)
		r.rooms[roomID] = peers
	}
	peers[p] = info
}

// TryRegister adds the peer only while the room holds fewer than limit
// live connections; a nil limit never blocks. The check and the insert
// share one critical section so concurrent connects cannot overshoot a
// room's cap. Re-registering a present peer replaces its identity
// without consuming a slot.
func (r *Registry) TryRegister(roomID int, p Peer, info ConnInfo, limit *int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.rooms[roomID]
	if !ok {
		peers = make(map[Peer]ConnInfo)
		r.rooms[roomID] = peers
	}
	if _, present := peers[p]; !present && limit != nil && len(peers) >= *limit {
		if len(peers) == 0 {
			delete(r.rooms, roomID)
		}
		return false
	}
	peers[p] = info
	return true
}

// Unregister removes a peer from a room, reporting whether it was
// present so presence-left runs exactly once per connection. Absent
// peers are a no-op.
func (r *Registry) Unregister(roomID int, p Peer) (ConnInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.rooms[roomID]
	if !ok {
		return ConnInfo{}, false
	}
	info, present := peers[p]
	if !present {
		return ConnInfo{}, false
	}
	delete(peers, p)
	if len(peers) == 0 {
		delete(r.rooms, roomID)
	}
	return info, true
}

// Snapshot returns a point-in-time copy of the room's peers so
// broadcasts never iterate the live set.
func (r *Registry) Snapshot(roomID int) []RegisteredPeer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := r.rooms[roomID]
	out := make([]RegisteredPeer, 0, len(peers))
	for p, info := range peers {
		out = append(out, RegisteredPeer{Peer: p, Info: info})
	}
	return out
}

// Count reports the number of live connections in a room.
func (r *Registry) Count(roomID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}
