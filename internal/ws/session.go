package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"club-chat-service/internal/auth"
	"club-chat-service/internal/gate"
	"club-chat-service/internal/models"
	"club-chat-service/internal/observability"
	"club-chat-service/internal/repositories"
	"club-chat-service/internal/telemetry"
)

// RoomWebSocketHandler owns the websocket endpoint for chat rooms.
type RoomWebSocketHandler struct {
	registry    *Registry
	broadcaster *Broadcaster
	rooms       repositories.RoomRepository
	memberships repositories.MembershipRepository
	messages    repositories.MessageRepository
	reactions   repositories.ReactionRepository
	gate        *gate.Gate
	verifier    *auth.Verifier
	audit       *telemetry.AuditEmitter
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(
	registry *Registry,
	broadcaster *Broadcaster,
	rooms repositories.RoomRepository,
	memberships repositories.MembershipRepository,
	messages repositories.MessageRepository,
	reactions repositories.ReactionRepository,
	g *gate.Gate,
	verifier *auth.Verifier,
	audit *telemetry.AuditEmitter,
) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{
		registry:    registry,
		broadcaster: broadcaster,
		rooms:       rooms,
		memberships: memberships,
		messages:    messages,
		reactions:   reactions,
		gate:        g,
		verifier:    verifier,
		audit:       audit,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates and authorizes the connect, upgrades the
// transport and hands the connection to a session loop. Rejections
// happen before the upgrade so nothing is ever registered for them.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	ctx, span := otel.Tracer("club-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	meta := observability.ClientMetaFromRequest(c.Request)
	requestID := meta.RequestID
	claims, err := h.verifyRequest(c)
	if err != nil {
		h.audit.Emit(ctx, "WARN", fmt.Sprintf("ws auth rejected for room %d", roomID), requestID, nil)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	room, err := h.rooms.GetRoom(ctx, roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "room not found"})
		return
	}
	if !room.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "room is not active"})
		return
	}

	observe, err := h.gate.CanObserve(ctx, roomID, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !observe {
		h.auditUser(ctx, "WARN", fmt.Sprintf("ws membership rejected for room %d", roomID), requestID, claims.UserID)
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	// Fast path only; the cap is re-checked under the registry lock at
	// registration, after the upgrade.
	if room.MaxMembers != nil && h.registry.Count(roomID) >= *room.MaxMembers {
		c.JSON(http.StatusForbidden, gin.H{"error": "room is full"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      claims.UserID,
		Username:    claims.Username,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	if !h.registry.TryRegister(roomID, client, info, room.MaxMembers) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(4003, "room is full"),
			time.Now().Add(writeWait))
		client.Close()
		return
	}

	observability.IncWSActive(wsKind)
	observability.IncWSEvent(wsKind, "ws_connect")
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   observability.WSEventPayload(wsKind, roomID, "ws_connect", info.ConnID, 0, "", info.UserID, info.DeviceID, info.IP),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))

	h.broadcaster.Broadcast(roomID, models.PresenceEvent{
		Type:     "user_joined",
		RoomID:   roomID,
		UserID:   claims.UserID,
		Username: claims.Username,
	}, client)

	s := &session{
		room:        room,
		userID:      claims.UserID,
		username:    claims.Username,
		peer:        client,
		info:        info,
		registry:    h.registry,
		broadcaster: h.broadcaster,
		gate:        h.gate,
		memberships: h.memberships,
		messages:    h.messages,
		reactions:   h.reactions,
	}

	go client.WritePump()
	go s.run(context.WithoutCancel(ctx), client)
}

func (h *RoomWebSocketHandler) verifyRequest(c *gin.Context) (*auth.Claims, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}
	parts := strings.Split(token, " ")
	if len(parts) != 2 {
		return nil, auth.ErrInvalidToken
	}
	return h.verifier.Verify(parts[1])
}

func (h *RoomWebSocketHandler) auditUser(ctx context.Context, level, text, requestID string, userID int) {
	id := strconv.Itoa(userID)
	h.audit.Emit(ctx, level, text, requestID, &id)
}

// session owns one connection's lifecycle from registration to the
// presence-left broadcast.
type session struct {
	room        models.Room
	userID      int
	username    string
	peer        Peer
	info        ConnInfo
	registry    *Registry
	broadcaster *Broadcaster
	gate        *gate.Gate
	memberships repositories.MembershipRepository
	messages    repositories.MessageRepository
	reactions   repositories.ReactionRepository
}

// run is the blocking receive loop. Transport errors end the session;
// event-level errors are local replies and keep the connection open.
func (s *session) run(ctx context.Context, client *Client) {
	var closeReason string
	defer func() {
		s.teardown(ctx, closeReason)
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent(wsKind, "ws_error")
			}
			return
		}
		s.handleEvent(ctx, raw)
	}
}

// teardown unregisters and announces the departure exactly once; a peer
// already evicted by a broadcast pass skips the announcement.
func (s *session) teardown(ctx context.Context, reason string) {
	info, present := s.registry.Unregister(s.room.ID, s.peer)
	s.peer.Close()
	if !present {
		return
	}

	observability.DecWSActive(wsKind)
	observability.IncWSEvent(wsKind, "ws_disconnect")
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_disconnect",
		Payload:   observability.WSEventPayload(wsKind, s.room.ID, "ws_disconnect", info.ConnID, time.Since(info.ConnectedAt).Milliseconds(), reason, info.UserID, info.DeviceID, info.IP),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))

	s.broadcaster.Broadcast(s.room.ID, models.PresenceEvent{
		Type:     "user_left",
		RoomID:   s.room.ID,
		UserID:   s.userID,
		Username: s.username,
	}, nil)

	// The participant has seen everything delivered up to the disconnect.
	if err := s.memberships.TouchLastRead(ctx, s.room.ID, s.userID, time.Now()); err != nil {
		log.Printf("touch last_read failed: %v", err)
	}
}

// handleEvent dispatches one inbound event. Order per event is strict:
// validate, authorize, persist, broadcast.
func (s *session) handleEvent(ctx context.Context, raw []byte) {
	var env models.InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.sendError("Invalid JSON format")
		return
	}

	switch env.Type {
	case models.EventChatMessage:
		s.handleChatMessage(ctx, raw)
	case models.EventTyping:
		s.handleTyping(raw)
	case models.EventReaction:
		s.handleReaction(ctx, raw)
	case models.EventPing:
		s.sendEvent(models.PongEvent{Type: "pong"})
	default:
		s.sendError(fmt.Sprintf("Unknown message type: %s", env.Type))
	}
}

func (s *session) handleChatMessage(ctx context.Context, raw []byte) {
	var in models.ChatMessageIn
	if err := json.Unmarshal(raw, &in); err != nil {
		s.sendError("Invalid JSON format")
		return
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		s.sendError("Message content cannot be empty")
		return
	}

	post, err := s.gate.CanPost(ctx, s.room.ID, s.userID)
	if err != nil {
		s.sendError("Error processing message")
		return
	}
	if !post {
		s.sendError("You cannot post messages in this room")
		return
	}

	approved := !s.room.IsModerated
	msg, err := s.messages.CreateMessage(ctx, s.room.ID, s.userID, content, approved)
	if err != nil {
		log.Printf("store message failed: %v", err)
		s.sendError("Error processing message")
		return
	}

	event := models.NewMessageEvent{
		Type:    "new_message",
		Message: models.NewMessageView(msg, s.username),
	}
	if !approved {
		// Held for moderation: echo to the author only, no fan-out.
		s.sendEvent(event)
		return
	}
	s.broadcaster.Broadcast(s.room.ID, event, nil)
}

func (s *session) handleTyping(raw []byte) {
	var in models.TypingIn
	if err := json.Unmarshal(raw, &in); err != nil {
		s.sendError("Invalid JSON format")
		return
	}
	s.broadcaster.Broadcast(s.room.ID, models.TypingEvent{
		Type:     "typing",
		RoomID:   s.room.ID,
		UserID:   s.userID,
		IsTyping: in.IsTyping,
	}, s.peer)
}

func (s *session) handleReaction(ctx context.Context, raw []byte) {
	var in models.ReactionIn
	if err := json.Unmarshal(raw, &in); err != nil {
		s.sendError("Invalid JSON format")
		return
	}
	if in.MessageID == 0 || in.Emoji == "" {
		s.sendError("Missing message_id or emoji")
		return
	}

	// Reactions only target live messages of this room.
	msg, err := s.messages.GetMessage(ctx, in.MessageID)
	switch {
	case errors.Is(err, repositories.ErrMessageNotFound):
		s.sendError("Message not found")
		return
	case err != nil:
		log.Printf("load reaction target failed: %v", err)
		s.sendError("Error processing reaction")
		return
	}
	if msg.RoomID != s.room.ID || msg.IsDeleted {
		s.sendError("Message not found")
		return
	}

	switch in.Action {
	case models.ReactionActionAdd:
		reaction, err := s.reactions.AddReaction(ctx, in.MessageID, s.userID, in.Emoji)
		switch {
		case errors.Is(err, repositories.ErrDuplicateReaction):
			s.sendError("Reaction already exists")
			return
		case errors.Is(err, repositories.ErrMessageNotFound):
			s.sendError("Message not found")
			return
		case err != nil:
			log.Printf("add reaction failed: %v", err)
			s.sendError("Error processing reaction")
			return
		}
		s.broadcaster.Broadcast(s.room.ID, models.ReactionEvent{
			Type:       "reaction_added",
			MessageID:  in.MessageID,
			UserID:     s.userID,
			Emoji:      in.Emoji,
			ReactionID: reaction.ID,
		}, nil)

	case models.ReactionActionRemove:
		err := s.reactions.RemoveReaction(ctx, in.MessageID, s.userID, in.Emoji)
		switch {
		case errors.Is(err, repositories.ErrReactionNotFound):
			s.sendError("Reaction not found")
			return
		case err != nil:
			log.Printf("remove reaction failed: %v", err)
			s.sendError("Error processing reaction")
			return
		}
		s.broadcaster.Broadcast(s.room.ID, models.ReactionEvent{
			Type:      "reaction_removed",
			MessageID: in.MessageID,
			UserID:    s.userID,
			Emoji:     in.Emoji,
		}, nil)

	default:
		s.sendError("Invalid reaction action")
	}
}

func (s *session) sendEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	if err := s.peer.Send(payload); err != nil {
		log.Printf("websocket send error: %v", err)
	}
}

func (s *session) sendError(message string) {
	s.sendEvent(models.ErrorEvent{Type: "error", Message: message})
}
