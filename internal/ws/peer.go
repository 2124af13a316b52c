package ws

import "time"

// Peer is one live connection as seen by the registry and broadcaster.
// The production implementation is *Client; tests substitute fakes.
type Peer interface {
	// Send queues a serialized event for delivery. A non-nil error marks
	// the peer dead and triggers eviction.
	Send(payload []byte) error
	Close()
}

// ConnInfo identifies the user and request behind a registered peer.
type ConnInfo struct {
	ConnID      string
	UserID      int
	Username    string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
