package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"club-chat-service/internal/models"
	"club-chat-service/internal/observability"
)

const (
	wsKind       = "room"
	wsRoutingKey = "ws_events.rooms"
)

// Broadcaster delivers one already-constructed event to every registered
// peer of a room, evicting peers that fail to accept the send.
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster constructs a Broadcaster over a registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast serializes the event once and sends it to a snapshot of the
// room's peers, skipping exclude. A failed send evicts that peer; the
// pass still completes for the remaining peers.
func (b *Broadcaster) Broadcast(roomID int, event any, exclude Peer) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}
	observability.IncWSBroadcast()

	for _, rp := range b.registry.Snapshot(roomID) {
		if rp.Peer == exclude {
			continue
		}
		if err := rp.Peer.Send(payload); err != nil {
			log.Printf("websocket send error: %v", err)
			b.evict(roomID, rp.Peer, err)
		}
	}
}

// evict removes a dead peer and announces its departure. Unregister
// reports presence so a racing session teardown runs this at most once.
func (b *Broadcaster) evict(roomID int, p Peer, cause error) {
	info, ok := b.registry.Unregister(roomID, p)
	if !ok {
		return
	}
	p.Close()

	observability.DecWSActive(wsKind)
	observability.IncWSEvent(wsKind, "ws_error")
	_ = observability.PublishEvent(context.Background(), wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   observability.WSEventPayload(wsKind, roomID, "ws_error", info.ConnID, time.Since(info.ConnectedAt).Milliseconds(), cause.Error(), info.UserID, info.DeviceID, info.IP),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))

	b.Broadcast(roomID, models.PresenceEvent{
		Type:     "user_left",
		RoomID:   roomID,
		UserID:   info.UserID,
		Username: info.Username,
	}, nil)
}
