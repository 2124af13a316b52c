package handlers

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"club-chat-service/internal/gate"
	"club-chat-service/internal/ws"
)

// PresenceHandler exposes who is currently connected to a room.
type PresenceHandler struct {
	registry *ws.Registry
	gate     *gate.Gate
}

// NewPresenceHandler builds a PresenceHandler.
func NewPresenceHandler(registry *ws.Registry, g *gate.Gate) *PresenceHandler {
	return &PresenceHandler{registry: registry, gate: g}
}

type onlineUser struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

// RoomPresence lists the distinct online users of a room. Multi-device
// users appear once.
func (h *PresenceHandler) RoomPresence(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	userID := c.GetInt("userID")
	observe, err := h.gate.CanObserve(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !observe {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	seen := map[int]onlineUser{}
	for _, rp := range h.registry.Snapshot(roomID) {
		seen[rp.Info.UserID] = onlineUser{UserID: rp.Info.UserID, Username: rp.Info.Username}
	}
	online := make([]onlineUser, 0, len(seen))
	for _, u := range seen {
		online = append(online, u)
	}
	sort.Slice(online, func(i, j int) bool { return online[i].UserID < online[j].UserID })

	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "online": online})
}
